package handlers

import (
	"net/http"

	"github.com/koc-community/tournament-system/services"
)

type BrawlerHandler struct {
	brawlers *services.BrawlerService
}

func NewBrawlerHandler(brawlers *services.BrawlerService) *BrawlerHandler {
	return &BrawlerHandler{brawlers: brawlers}
}

// Resolve возвращает бравлера по discord id, регистрируя его при первом
// обращении через сервис сообщества.
func (h *BrawlerHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DiscordID string `json:"discord_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if input.DiscordID == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "discord_id is required")
		return
	}

	brawler, err := h.brawlers.ResolveOrCreate(r.Context(), input.DiscordID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"brawler": brawler}, nil)
}

// Get возвращает бравлера без создания.
func (h *BrawlerHandler) Get(w http.ResponseWriter, r *http.Request) {
	discordID := r.URL.Query().Get("discord_id")
	if discordID == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "discord_id is required")
		return
	}

	brawler, err := h.brawlers.GetByDiscordID(r.Context(), discordID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"brawler": brawler}, nil)
}
