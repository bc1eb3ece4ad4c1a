package handlers

import (
	"net/http"
	"strings"

	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/services"
)

type TournamentHandler struct {
	tournaments *services.TournamentService
}

func NewTournamentHandler(tournaments *services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournaments: tournaments}
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		TeamSize    int    `json:"team_size"`
		ServerID    string `json:"server_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if strings.TrimSpace(input.Title) == "" || input.TeamSize < 1 || input.ServerID == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "title, team_size and server_id are required")
		return
	}

	t, err := h.tournaments.CreateTournament(r.Context(), strings.TrimSpace(input.Title), input.Description, input.TeamSize, input.ServerID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"tournament": t}, nil)
}

func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	t, err := h.tournaments.GetTournament(r.Context(), id)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": t}, nil)
}

func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []models.TournamentStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, models.TournamentStatus(strings.TrimSpace(s)))
		}
	}

	tournaments, err := h.tournaments.ListTournaments(r.Context(), statuses...)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil)
}

func (h *TournamentHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input struct {
		Status models.TournamentStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	t, err := h.tournaments.ChangeStatus(r.Context(), id, input.Status)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": t}, nil)
}

func (h *TournamentHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournaments.Archive(r.Context(), id); err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"archived": true}, nil)
}

func (h *TournamentHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input struct {
		DiscordID string `json:"discord_id"`
		// Members - discord id выбранного состава (командный формат).
		Members []string `json:"members"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	participant, err := h.tournaments.SignUp(r.Context(), id, input.DiscordID, input.Members)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"participant": participant}, nil)
}

func (h *TournamentHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input struct {
		DiscordID string `json:"discord_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournaments.Withdraw(r.Context(), id, input.DiscordID); err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"withdrawn": true}, nil)
}

func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	stage, err := h.tournaments.Start(r.Context(), id)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"stage": stage}, nil)
}

func (h *TournamentHandler) Bracket(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	stage, err := h.tournaments.GetBracket(r.Context(), id)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"stage": stage}, nil)
}

func (h *TournamentHandler) ActiveSignups(w http.ResponseWriter, r *http.Request) {
	discordID := r.URL.Query().Get("discord_id")
	if discordID == "" {
		errorResponse(w, http.StatusUnprocessableEntity, "bad-request", "discord_id is required")
		return
	}

	ids, err := h.tournaments.ListActiveSignups(r.Context(), discordID)
	if err != nil {
		serviceErrorResponse(w, err)
		return
	}
	if ids == nil {
		ids = []int{}
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament_ids": ids}, nil)
}

// SetMessages привязывает сообщения-доски турнира. nil в поле очищает
// ссылку.
func (h *TournamentHandler) SetMessages(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input struct {
		OrganizerMessageID *string `json:"organizer_message_id"`
		SignupMessageID    *string `json:"signup_message_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournaments.SetOrganizerMessageID(r.Context(), id, input.OrganizerMessageID); err != nil {
		serviceErrorResponse(w, err)
		return
	}
	if err := h.tournaments.SetSignupMessageID(r.Context(), id, input.SignupMessageID); err != nil {
		serviceErrorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"updated": true}, nil)
}
