package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koc-community/tournament-system/services"
)

type TeamHandler struct {
	teams *services.TeamService
}

func NewTeamHandler(teams *services.TeamService) *TeamHandler {
	return &TeamHandler{teams: teams}
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DiscordID string `json:"discord_id"`
		Name      string `json:"name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if input.DiscordID == "" || strings.TrimSpace(input.Name) == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "discord_id and name are required")
		return
	}

	team, err := h.teams.CreateTeam(r.Context(), input.DiscordID, strings.TrimSpace(input.Name))
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"team": team}, nil)
}

func (h *TeamHandler) Mine(w http.ResponseWriter, r *http.Request) {
	discordID := r.URL.Query().Get("discord_id")
	if discordID == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "discord_id is required")
		return
	}

	team, err := h.teams.GetTeamForUser(r.Context(), discordID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil)
}

func (h *TeamHandler) ByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	team, err := h.teams.GetTeamByName(r.Context(), name)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil)
}

func (h *TeamHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DiscordID string `json:"discord_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	invite, err := h.teams.CreateInvite(r.Context(), input.DiscordID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"invite": invite}, nil)
}

func (h *TeamHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DiscordID string `json:"discord_id"`
		Token     string `json:"token"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	team, err := h.teams.AcceptInvite(r.Context(), input.DiscordID, input.Token)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil)
}

func (h *TeamHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DiscordID string `json:"discord_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.teams.LeaveTeam(r.Context(), input.DiscordID); err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"left": true}, nil)
}

func (h *TeamHandler) Disband(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DiscordID string `json:"discord_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.teams.DisbandTeam(r.Context(), input.DiscordID); err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"disbanded": true}, nil)
}

// UploadLogo принимает multipart-форму с полем logo. discord_id владельца
// приходит в query.
func (h *TeamHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	discordID := r.URL.Query().Get("discord_id")
	if discordID == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "discord_id is required")
		return
	}

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		badRequestResponse(w, err)
		return
	}
	file, header, err := r.FormFile("logo")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
	default:
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "logo must be a png, jpg or webp image")
		return
	}

	location, err := h.teams.UploadLogo(r.Context(), discordID, contentType, ext, file)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"logo_url": location}, nil)
}
