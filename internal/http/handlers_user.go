package http

import (
	"fmt"
	"net/http"

	"shoplist/internal/core"
	"shoplist/internal/services"
)

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Currency string `json:"currency"`
}

type alertPreferencesRequest struct {
	InApp *bool `json:"in_app"`
	Push  *bool `json:"push"`
	Badge *bool `json:"badge"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.CreateUser(r.Context(), core.User{
		Name:     sanitizeInput(req.Name),
		Email:    sanitizeInput(req.Email),
		Currency: sanitizeInput(req.Currency),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/users/"+itoa(u.ID)).
		Body(newUserView(u)).
		Write(w)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newUserView(u)).Write(w)
}

// handleFindUser serves GET /users?email=.
func (s *Server) handleFindUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.FindByEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newUserView(u)).Write(w)
}

// ownUserID reads the {id} path value and hides other users' settings.
func ownUserID(r *http.Request, actor int64) (int64, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, err
	}
	if id != actor {
		return 0, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return id, nil
}

func (s *Server) handleGetAlertPreferences(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := ownUserID(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.users.AlertPreferences(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newAlertPreferencesView(p)).Write(w)
}

func (s *Server) handleUpdateAlertPreferences(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := ownUserID(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req alertPreferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.users.UpdateAlertPreferences(r.Context(), id, services.AlertPreferencesPatch{
		InApp: req.InApp,
		Push:  req.Push,
		Badge: req.Badge,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newAlertPreferencesView(p)).Write(w)
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.users.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(historyViews(rows)).Write(w)
}

func historyViews(rows []core.MonthlyHistory) []historyView {
	out := make([]historyView, 0, len(rows))
	for _, h := range rows {
		out = append(out, historyView{
			UserID:             h.UserID,
			Month:              h.Month,
			Total:              core.FormatAmount(h.Total),
			ItemCount:          h.ItemCount,
			AveragePerCategory: core.FormatAmount(h.AveragePerCategory),
			UpdatedAt:          h.UpdatedAt,
		})
	}
	return out
}
