package handlers

import (
	"net/http"

	"github.com/koc-community/tournament-system/statusboard"
)

type StatusBoardHandler struct {
	poller *statusboard.ServerStatusPoller
}

func NewStatusBoardHandler(poller *statusboard.ServerStatusPoller) *StatusBoardHandler {
	return &StatusBoardHandler{poller: poller}
}

// Servers отдаёт последний снимок игровых серверов. 404 до первого
// удачного опроса.
func (h *StatusBoardHandler) Servers(w http.ResponseWriter, r *http.Request) {
	snapshot := h.poller.Last()
	if snapshot == nil {
		errorResponse(w, http.StatusNotFound, "record-not-found", "Server status is not available yet.")
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"snapshot": snapshot}, nil)
}
