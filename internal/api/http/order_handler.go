package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/lifecycle"
	"rentloop-backend/internal/service"
)

// OrderHandler serves the rental order JSON API.
type OrderHandler struct {
	orders     service.OrderService
	milestones service.MilestoneService
	penalties  service.PenaltyService
}

func NewOrderHandler(orders service.OrderService, milestones service.MilestoneService, penalties service.PenaltyService) *OrderHandler {
	return &OrderHandler{orders: orders, milestones: milestones, penalties: penalties}
}

type createOrderRequest struct {
	ListingID     string                 `json:"listing_id"`
	OwnerID       string                 `json:"owner_id"`
	Pricing       domain.PricingSnapshot `json:"pricing"`
	StartAt       *time.Time             `json:"start_at,omitempty"`
	EndAt         *time.Time             `json:"end_at,omitempty"`
	PaymentMethod domain.PaymentMethod   `json:"payment_method"`
	IsRecurring   bool                   `json:"is_recurring"`
}

type payMilestoneRequest struct {
	TransactionID string `json:"transaction_id"`
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

func currentUser(r *http.Request) string {
	id, _ := UserIDFromContext(r.Context())
	return id
}

// loadForParty returns the order only if userID is its renter or owner.
func (h *OrderHandler) loadForParty(ctx context.Context, orderID, userID string) (*domain.RentalOrder, error) {
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if lifecycle.RoleOf(order, userID) == domain.RoleNone {
		return nil, domain.ErrRoleMismatch
	}
	return order, nil
}

// CreateOrder places an order as the authenticated renter after the eligibility check.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	renterID := currentUser(r)
	if err := h.orders.CheckEligibility(r.Context(), renterID); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), domain.CreateOrderInput{
		ListingID:     req.ListingID,
		RenterID:      renterID,
		OwnerID:       req.OwnerID,
		Pricing:       req.Pricing,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		PaymentMethod: req.PaymentMethod,
		IsRecurring:   req.IsRecurring,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.loadForParty(r.Context(), mux.Vars(r)["id"], currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := domain.Action(vars["action"])
	if !knownAction(action) {
		writeError(w, domain.NewValidationError("action", "unknown action "+string(action)))
		return
	}

	var payload domain.ActionPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.orders.ExecuteAction(r.Context(), vars["id"], action, currentUser(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func knownAction(a domain.Action) bool {
	for _, known := range domain.AllActions {
		if a == known {
			return true
		}
	}
	return false
}

// ListReasons returns the reason codes a negative action accepts. Actions that take no
// reason return an empty list.
func (h *OrderHandler) ListReasons(w http.ResponseWriter, r *http.Request) {
	action := domain.Action(mux.Vars(r)["action"])
	if !knownAction(action) {
		writeError(w, domain.NewValidationError("action", "unknown action "+string(action)))
		return
	}
	reasons := lifecycle.ReasonOptions(action)
	if reasons == nil {
		reasons = []lifecycle.ReasonOption{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"action":  action,
		"reasons": reasons,
		"other":   lifecycle.ReasonOther,
	})
}

func (h *OrderHandler) ListActivityLog(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	if _, err := h.loadForParty(r.Context(), orderID, currentUser(r)); err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.orders.ListActivityLog(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *OrderHandler) GetAvailableActions(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	userID := currentUser(r)
	if _, err := h.loadForParty(r.Context(), orderID, userID); err != nil {
		writeError(w, err)
		return
	}
	actions, err := h.orders.GetAvailableActions(r.Context(), orderID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

func (h *OrderHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	if _, err := h.loadForParty(r.Context(), orderID, currentUser(r)); err != nil {
		writeError(w, err)
		return
	}
	milestones, err := h.milestones.ListMilestones(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"milestones": milestones})
}

func (h *OrderHandler) MarkReviewed(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.MarkReviewed(r.Context(), mux.Vars(r)["id"], currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) PayMilestone(w http.ResponseWriter, r *http.Request) {
	var req payMilestoneRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	milestone, err := h.milestones.PayMilestone(r.Context(), mux.Vars(r)["id"], currentUser(r), req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, milestone)
}

func (h *OrderHandler) GetMyPenalty(w http.ResponseWriter, r *http.Request) {
	penalty, err := h.penalties.GetPenalty(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, penalty)
}
