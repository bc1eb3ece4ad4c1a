package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koc-community/tournament-system/collectors"
)

// CollectorHandler управляет интерактивными сессиями сообщений-карточек.
// Шлюз открывает сессию, когда рисует компоненты, и сверяется с ней при
// каждом нажатии.
type CollectorHandler struct {
	registry *collectors.Registry
}

func NewCollectorHandler(registry *collectors.Registry) *CollectorHandler {
	return &CollectorHandler{registry: registry}
}

func (h *CollectorHandler) Open(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MessageID string `json:"message_id"`
		Kind      string `json:"kind"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if input.MessageID == "" || input.Kind == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "message_id and kind are required")
		return
	}

	session := h.registry.Open(input.MessageID, input.Kind)
	writeJSON(w, http.StatusCreated, jsonResponse{"session": session}, nil)
}

func (h *CollectorHandler) Get(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	session, ok := h.registry.Get(messageID)
	if !ok {
		errorResponse(w, http.StatusNotFound, "record-not-found", "No live session for this message.")
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"session": session}, nil)
}

func (h *CollectorHandler) Touch(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if !h.registry.Touch(messageID) {
		errorResponse(w, http.StatusNotFound, "record-not-found", "No live session for this message.")
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"touched": true}, nil)
}

func (h *CollectorHandler) Close(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	h.registry.Close(messageID)
	writeJSON(w, http.StatusOK, jsonResponse{"closed": true}, nil)
}
