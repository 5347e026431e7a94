package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
	"shoplist/internal/log"
	"shoplist/internal/services"
)

type createListRequest struct {
	Name   string      `json:"name"`
	Budget *jsonAmount `json:"budget"`
}

type updateListRequest struct {
	Name    *string     `json:"name"`
	Budget  *jsonAmount `json:"budget"`
	Version *int64      `json:"version"`
}

func writeList(w http.ResponseWriter, status int, l core.ShoppingList) {
	NewJSONResponse().Status(status).ETag(l.Version).Body(newListView(l)).Write(w)
}

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request, actor int64) {
	lists, err := s.lists.ListLists(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]listView, 0, len(lists))
	for _, l := range lists {
		out = append(out, newListView(l))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request, actor int64) {
	var req createListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	budget, err := amountOr("budget", req.Budget, decimal.Zero)
	if err != nil {
		writeError(w, r, err)
		return
	}

	l, err := s.lists.CreateList(r.Context(), actor, sanitizeInput(req.Name), budget)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/lists/"+itoa(l.ID)).
		ETag(l.Version).
		Body(newListView(l)).
		Write(w)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := s.lists.GetList(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	upd := services.ListUpdate{}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		upd.Name = &name
	}
	if upd.Budget, err = parseAmount("budget", req.Budget); err != nil {
		writeError(w, r, err)
		return
	}
	if upd.Version, err = expectedVersion(r, req.Version); err != nil {
		writeError(w, r, err)
		return
	}

	l, err := s.lists.UpdateList(r.Context(), actor, id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	version, err := expectedVersion(r, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.lists.DeleteList(r.Context(), actor, id, version); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "List deleted",
		log.FieldListID, id, log.FieldOperation, log.OpDelete)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListSummary(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.lists.Summary(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newSummaryView(sum)).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.lists.Categories(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{
			Category:   c.Name,
			Total:      core.FormatAmount(c.Amount),
			Percentage: core.FormatAmount(c.Percentage),
		})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := s.lists.Recompute(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := s.lists.Recommendations(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []string{}
	}
	NewJSONResponse().Body(msgs).Write(w)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snaps, err := s.lists.Snapshots(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]snapshotView, 0, len(snaps))
	for _, sn := range snaps {
		msgs := sn.Messages
		if msgs == nil {
			msgs = []string{}
		}
		out = append(out, snapshotView{
			ID:           sn.ID,
			ListID:       sn.ListID,
			ListVersion:  sn.ListVersion,
			Messages:     msgs,
			TotalUsed:    core.FormatAmount(sn.TotalUsed),
			BudgetUnused: core.FormatAmount(sn.BudgetUnused),
			CreatedAt:    sn.CreatedAt,
		})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	alerts, err := s.lists.Alerts(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertView{
			ID:            a.ID,
			ListID:        a.ListID,
			Level:         string(a.Level),
			Message:       a.Message,
			TotalAtMoment: core.FormatAmount(a.TotalAtMoment),
			Push:          a.Push,
			Badge:         a.Badge,
			CreatedAt:     a.CreatedAt,
		})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := s.lists.AcknowledgeAlert(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeItems(w, r, actor, id)
}

func (s *Server) writeItems(w http.ResponseWriter, r *http.Request, actor, listID int64) {
	items, err := s.lists.ListItems(r.Context(), actor, listID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newItemViews(items)).Write(w)
}
