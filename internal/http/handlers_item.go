package http

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"shoplist/internal/log"
	"shoplist/internal/services"
)

type createItemRequest struct {
	ListID            int64       `json:"list_id"`
	Name              string      `json:"name"`
	Category          string      `json:"category"`
	Quantity          *jsonAmount `json:"quantity"`
	Unit              string      `json:"unit"`
	UnitPrice         *jsonAmount `json:"unit_price"`
	Priority          string      `json:"priority"`
	Note              string      `json:"note"`
	Purchased         bool        `json:"purchased"`
	PurchasedQuantity *jsonAmount `json:"purchased_quantity"`
	PaidPrice         *jsonAmount `json:"paid_price"`
}

type updateItemRequest struct {
	Name              *string     `json:"name"`
	Category          *string     `json:"category"`
	Quantity          *jsonAmount `json:"quantity"`
	Unit              *string     `json:"unit"`
	UnitPrice         *jsonAmount `json:"unit_price"`
	Priority          *string     `json:"priority"`
	Note              *string     `json:"note"`
	Purchased         *bool       `json:"purchased"`
	PurchasedQuantity *jsonAmount `json:"purchased_quantity"`
	PaidPrice         *jsonAmount `json:"paid_price"`
	Version           *int64      `json:"version"`
}

func sanitized(p *string) *string {
	if p == nil {
		return nil
	}
	v := sanitizeInput(*p)
	return &v
}

func (req createItemRequest) toInput() (services.ItemInput, error) {
	in := services.ItemInput{
		ListID:    req.ListID,
		Name:      sanitizeInput(req.Name),
		Category:  sanitizeInput(req.Category),
		Unit:      sanitizeInput(req.Unit),
		Priority:  req.Priority,
		Note:      sanitizeInput(req.Note),
		Purchased: req.Purchased,
	}
	if req.ListID <= 0 {
		return in, invalidListID
	}

	var err error
	if in.Quantity, err = amountOr("quantity", req.Quantity, decimal.NewFromInt(1)); err != nil {
		return in, err
	}
	if in.UnitPrice, err = amountOr("unit_price", req.UnitPrice, decimal.Zero); err != nil {
		return in, err
	}
	if in.PurchasedQuantity, err = parseAmount("purchased_quantity", req.PurchasedQuantity); err != nil {
		return in, err
	}
	if in.PaidPrice, err = parseAmount("paid_price", req.PaidPrice); err != nil {
		return in, err
	}
	return in, nil
}

func (req updateItemRequest) toPatch() (services.ItemPatch, error) {
	p := services.ItemPatch{
		Name:      sanitized(req.Name),
		Category:  sanitized(req.Category),
		Unit:      sanitized(req.Unit),
		Priority:  req.Priority,
		Note:      sanitized(req.Note),
		Purchased: req.Purchased,
	}

	var err error
	if p.Quantity, err = parseAmount("quantity", req.Quantity); err != nil {
		return p, err
	}
	if p.UnitPrice, err = parseAmount("unit_price", req.UnitPrice); err != nil {
		return p, err
	}
	if p.PurchasedQuantity, err = parseAmount("purchased_quantity", req.PurchasedQuantity); err != nil {
		return p, err
	}
	if p.PaidPrice, err = parseAmount("paid_price", req.PaidPrice); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) handleListItemsByQuery(w http.ResponseWriter, r *http.Request, actor int64) {
	raw := strings.TrimSpace(r.URL.Query().Get("list_id"))
	if raw == "" {
		writeError(w, r, invalidListID)
		return
	}
	listID, err := positiveID("list_id", raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeItems(w, r, actor, listID)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request, actor int64) {
	var req createItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	it, err := s.lists.CreateItem(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/items/"+itoa(it.ID)).
		ETag(it.Version).
		Body(newItemView(it)).
		Write(w)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.lists.GetItem(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().ETag(it.Version).Body(newItemView(it)).Write(w)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, actor int64) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Version, err = expectedVersion(r, req.Version); err != nil {
		writeError(w, r, err)
		return
	}

	it, err := s.lists.UpdateItem(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().ETag(it.Version).Body(newItemView(it)).Write(w)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, actor int64) {
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
	if err := s.lists.DeleteItem(r.Context(), actor, id, version); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Item deleted",
		log.FieldItemID, id, log.FieldOperation, log.OpDelete)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
