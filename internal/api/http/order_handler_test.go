package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "rentloop-backend/internal/api/http"
	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/repository/memory"
	"rentloop-backend/internal/security"
	"rentloop-backend/internal/service"
)

const (
	renterID = "renter-1"
	ownerID  = "owner-1"
	stranger = "stranger-1"
)

type apiFixture struct {
	server *httptest.Server
	tokens security.TokenManager
	orders service.OrderService
}

func newAPI(t *testing.T, opts httpapi.RouterOptions) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	policy := service.DefaultPolicy()

	executor := service.NewExecutor(store.OrderRepository, store.SettlementRepository, policy.MaxTransitionAttempts, nil)
	milestones := service.NewMilestoneService(store.OrderRepository, store.MilestoneRepository, store.SettlementRepository, policy, nil)
	penalties := service.NewPenaltyService(store.PenaltyRepository, policy, nil)
	orders := service.NewOrderService(store.OrderRepository, store.ActivityLogRepository, executor, milestones, penalties, policy, nil)

	tokens := security.NewTokenManager("http-test-secret-0123456789abcdefghij", "rentloop-auth", time.Hour)
	router := mux.NewRouter()
	httpapi.RegisterOrderRoutes(router, httpapi.NewOrderHandler(orders, milestones, penalties), tokens, opts)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &apiFixture{server: srv, tokens: tokens, orders: orders}
}

func defaultOptions() httpapi.RouterOptions {
	return httpapi.RouterOptions{RateLimitRPS: 1000, RateLimitBurst: 1000, IdempotencyTTL: time.Minute}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body interface{}, headers ...string) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		token, err := f.tokens.GenerateAccessToken(user, "", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: out.Bytes()}
}

type errorEnvelope struct {
	Error struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	} `json:"error"`
}

func errorOf(t *testing.T, r response) errorEnvelope {
	t.Helper()
	var e errorEnvelope
	require.NoError(t, json.Unmarshal(r.body, &e), string(r.body))
	return e
}

func orderOf(t *testing.T, r response) domain.RentalOrder {
	t.Helper()
	var o domain.RentalOrder
	require.NoError(t, json.Unmarshal(r.body, &o), string(r.body))
	return o
}

func createBody() map[string]interface{} {
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	return map[string]interface{}{
		"listing_id": "listing-1",
		"owner_id":   ownerID,
		"pricing": map[string]interface{}{
			"duration_type":    "daily",
			"unit_price":       "20",
			"total_price":      "60",
			"security_deposit": "30",
		},
		"start_at":       start,
		"end_at":         start.Add(72 * time.Hour),
		"payment_method": "bank",
	}
}

func (f *apiFixture) createOrder(t *testing.T) domain.RentalOrder {
	t.Helper()
	r := f.do(t, http.MethodPost, "/api/v1/orders", renterID, createBody())
	require.Equal(t, http.StatusCreated, r.status, string(r.body))
	return orderOf(t, r)
}

func TestHealthz(t *testing.T) {
	f := newAPI(t, defaultOptions())
	r := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, r.status)
}

func TestAuthRequired(t *testing.T) {
	f := newAPI(t, defaultOptions())

	r := f.do(t, http.MethodGet, "/api/v1/orders/abc", "", nil)
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, "unauthenticated", errorOf(t, r).Error.Code)

	r = f.do(t, http.MethodGet, "/api/v1/orders/abc", "", nil, "Authorization", "Bearer junk")
	assert.Equal(t, http.StatusUnauthorized, r.status)
}

func TestCreateOrder(t *testing.T) {
	f := newAPI(t, defaultOptions())

	o := f.createOrder(t)
	assert.Equal(t, renterID, o.RenterID, "renter comes from the token")
	assert.Equal(t, domain.OrderStatusPending, o.Status)

	t.Run("Validation error names the field", func(t *testing.T) {
		body := createBody()
		body["payment_method"] = "crypto"
		r := f.do(t, http.MethodPost, "/api/v1/orders", renterID, body)
		assert.Equal(t, http.StatusBadRequest, r.status)
		e := errorOf(t, r)
		assert.Equal(t, "validation_error", e.Error.Code)
		assert.Equal(t, "payment_method", e.Error.Field)
	})

	t.Run("Unknown field", func(t *testing.T) {
		body := createBody()
		body["renter_id"] = "someone-else"
		r := f.do(t, http.MethodPost, "/api/v1/orders", renterID, body)
		assert.Equal(t, http.StatusBadRequest, r.status)
	})
}

func TestCreateOrder_NotEligible(t *testing.T) {
	f := newAPI(t, defaultOptions())
	o := f.createOrder(t)

	steps := []struct {
		action string
		user   string
		body   interface{}
	}{
		{"accept", ownerID, nil},
		{"submit_handover", renterID, map[string]interface{}{"handover": map[string]interface{}{
			"amount_paid": "60", "deposit_paid": "30", "total_paid": "90", "payment_method": "cash",
		}}},
		{"approve_handover", ownerID, map[string]interface{}{"consent": true}},
	}
	for _, s := range steps {
		r := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/actions/"+s.action, s.user, s.body)
		require.Equal(t, http.StatusOK, r.status, "%s: %s", s.action, string(r.body))
	}

	r := f.do(t, http.MethodPost, "/api/v1/orders", renterID, createBody())
	assert.Equal(t, http.StatusUnprocessableEntity, r.status)
	assert.Equal(t, "not_eligible", errorOf(t, r).Error.Code)
}

func TestExecuteAction(t *testing.T) {
	f := newAPI(t, defaultOptions())
	o := f.createOrder(t)
	base := "/api/v1/orders/" + o.ID

	t.Run("Wrong role is forbidden", func(t *testing.T) {
		r := f.do(t, http.MethodPost, base+"/actions/accept", renterID, nil)
		assert.Equal(t, http.StatusForbidden, r.status)
		assert.Equal(t, "forbidden", errorOf(t, r).Error.Code)
	})

	t.Run("Stranger is a role mismatch", func(t *testing.T) {
		r := f.do(t, http.MethodPost, base+"/actions/accept", stranger, nil)
		assert.Equal(t, http.StatusForbidden, r.status)
		assert.Equal(t, "role_mismatch", errorOf(t, r).Error.Code)
	})

	t.Run("Unknown action", func(t *testing.T) {
		r := f.do(t, http.MethodPost, base+"/actions/teleport", ownerID, nil)
		assert.Equal(t, http.StatusBadRequest, r.status)
		assert.Equal(t, "action", errorOf(t, r).Error.Field)
	})

	t.Run("Missing reason", func(t *testing.T) {
		r := f.do(t, http.MethodPost, base+"/actions/reject", ownerID, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, r.status)
		assert.Equal(t, "reason_code", errorOf(t, r).Error.Field)
	})

	t.Run("Accept then invalid transition", func(t *testing.T) {
		r := f.do(t, http.MethodPost, base+"/actions/accept", ownerID, nil)
		require.Equal(t, http.StatusOK, r.status)
		assert.Equal(t, domain.OrderStatusAccepted, orderOf(t, r).Status)

		r = f.do(t, http.MethodPost, base+"/actions/accept", ownerID, nil)
		assert.Equal(t, http.StatusConflict, r.status)
		assert.Equal(t, "invalid_transition", errorOf(t, r).Error.Code)
	})

	t.Run("Unknown order", func(t *testing.T) {
		r := f.do(t, http.MethodPost, "/api/v1/orders/missing/actions/accept", ownerID, nil)
		assert.Equal(t, http.StatusNotFound, r.status)
		assert.Equal(t, "not_found", errorOf(t, r).Error.Code)
	})
}

func TestReadsRequireParty(t *testing.T) {
	f := newAPI(t, defaultOptions())
	o := f.createOrder(t)
	base := "/api/v1/orders/" + o.ID

	for _, path := range []string{base, base + "/activity", base + "/available-actions", base + "/milestones"} {
		r := f.do(t, http.MethodGet, path, stranger, nil)
		assert.Equal(t, http.StatusForbidden, r.status, path)

		r = f.do(t, http.MethodGet, path, ownerID, nil)
		assert.Equal(t, http.StatusOK, r.status, path)
	}

	r := f.do(t, http.MethodGet, base+"/available-actions", ownerID, nil)
	var body struct {
		Actions []domain.Action `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(r.body, &body))
	assert.ElementsMatch(t, []domain.Action{domain.ActionAccept, domain.ActionReject, domain.ActionDispute}, body.Actions)
}

func TestIdempotentReplay(t *testing.T) {
	f := newAPI(t, defaultOptions())
	o := f.createOrder(t)
	path := "/api/v1/orders/" + o.ID + "/actions/accept"

	first := f.do(t, http.MethodPost, path, ownerID, nil, httpapi.IdempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusOK, first.status)
	assert.Empty(t, first.header.Get("Idempotent-Replayed"))

	second := f.do(t, http.MethodPost, path, ownerID, nil, httpapi.IdempotencyKeyHeader, "key-1")
	assert.Equal(t, http.StatusOK, second.status)
	assert.Equal(t, "true", second.header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, string(first.body), string(second.body))

	// Without the key the retry reaches the state machine.
	third := f.do(t, http.MethodPost, path, ownerID, nil)
	assert.Equal(t, http.StatusConflict, third.status)

	log, err := f.orders.ListActivityLog(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestRateLimit(t *testing.T) {
	f := newAPI(t, httpapi.RouterOptions{RateLimitRPS: 0.001, RateLimitBurst: 2, IdempotencyTTL: time.Minute})

	for i := 0; i < 2; i++ {
		r := f.do(t, http.MethodGet, "/api/v1/users/me/penalty", renterID, nil)
		require.Equal(t, http.StatusOK, r.status)
	}
	r := f.do(t, http.MethodGet, "/api/v1/users/me/penalty", renterID, nil)
	assert.Equal(t, http.StatusTooManyRequests, r.status)
	assert.Equal(t, "rate_limited", errorOf(t, r).Error.Code)

	// Budgets are per user.
	r = f.do(t, http.MethodGet, "/api/v1/users/me/penalty", ownerID, nil)
	assert.Equal(t, http.StatusOK, r.status)
}

func TestPenaltyAfterCancel(t *testing.T) {
	f := newAPI(t, defaultOptions())
	o := f.createOrder(t)
	base := "/api/v1/orders/" + o.ID

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/actions/accept", ownerID, nil).status)
	r := f.do(t, http.MethodPost, base+"/actions/cancel", ownerID, map[string]interface{}{"reason_code": "schedule_conflict"})
	require.Equal(t, http.StatusOK, r.status, string(r.body))

	r = f.do(t, http.MethodGet, "/api/v1/users/me/penalty", ownerID, nil)
	require.Equal(t, http.StatusOK, r.status)
	var p domain.CancellationPenalty
	require.NoError(t, json.Unmarshal(r.body, &p))
	assert.Equal(t, 1, p.Count)
	assert.False(t, p.Flagged)
}

func TestRecurringOrderMilestonePayment(t *testing.T) {
	f := newAPI(t, defaultOptions())
	body := createBody()
	body["is_recurring"] = true
	body["pricing"] = map[string]interface{}{
		"duration_type": "monthly", "unit_price": "500", "total_price": "500", "security_deposit": "0",
	}
	r := f.do(t, http.MethodPost, "/api/v1/orders", renterID, body)
	require.Equal(t, http.StatusCreated, r.status, string(r.body))
	o := orderOf(t, r)

	r = f.do(t, http.MethodGet, "/api/v1/orders/"+o.ID+"/milestones", renterID, nil)
	require.Equal(t, http.StatusOK, r.status)
	var list struct {
		Milestones []domain.PaymentMilestone `json:"milestones"`
	}
	require.NoError(t, json.Unmarshal(r.body, &list))
	require.Len(t, list.Milestones, 12)
	first := list.Milestones[0].ID

	r = f.do(t, http.MethodPost, "/api/v1/milestones/"+first+"/pay", ownerID, map[string]string{"transaction_id": "TX-1"})
	assert.Equal(t, http.StatusForbidden, r.status)

	r = f.do(t, http.MethodPost, "/api/v1/milestones/"+first+"/pay", renterID, map[string]string{"transaction_id": "TX-1"})
	require.Equal(t, http.StatusOK, r.status, string(r.body))

	second := list.Milestones[1].ID
	r = f.do(t, http.MethodPost, "/api/v1/milestones/"+second+"/pay", renterID, map[string]string{"transaction_id": "TX-1"})
	assert.Equal(t, http.StatusConflict, r.status)
	assert.Equal(t, "duplicate_transaction", errorOf(t, r).Error.Code)
}

func TestMarkReviewed(t *testing.T) {
	f := newAPI(t, defaultOptions())
	o := f.createOrder(t)

	r := f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/reviews", renterID, nil)
	assert.Equal(t, http.StatusConflict, r.status, "only completed orders can be reviewed")

	r = f.do(t, http.MethodPost, "/api/v1/orders/"+o.ID+"/reviews", stranger, nil)
	assert.Equal(t, http.StatusForbidden, r.status)
}

func TestListReasons(t *testing.T) {
	f := newAPI(t, defaultOptions())

	t.Run("Catalogue for a negative action", func(t *testing.T) {
		r := f.do(t, http.MethodGet, "/api/v1/actions/reject_return/reasons", renterID, nil)
		require.Equal(t, http.StatusOK, r.status, string(r.body))

		var out struct {
			Action  string `json:"action"`
			Reasons []struct {
				Code  string `json:"code"`
				Label string `json:"label"`
			} `json:"reasons"`
			Other string `json:"other"`
		}
		require.NoError(t, json.Unmarshal(r.body, &out))
		assert.Equal(t, "reject_return", out.Action)
		assert.Equal(t, "other", out.Other)
		require.Len(t, out.Reasons, 5)
		assert.Equal(t, "item_damaged", out.Reasons[0].Code)
		assert.Equal(t, "other", out.Reasons[4].Code)
	})

	t.Run("Action without reasons", func(t *testing.T) {
		r := f.do(t, http.MethodGet, "/api/v1/actions/accept/reasons", renterID, nil)
		require.Equal(t, http.StatusOK, r.status)
		assert.JSONEq(t, `{"action":"accept","reasons":[],"other":"other"}`, string(r.body))
	})

	t.Run("Unknown action", func(t *testing.T) {
		r := f.do(t, http.MethodGet, "/api/v1/actions/teleport/reasons", renterID, nil)
		assert.Equal(t, http.StatusBadRequest, r.status)
		assert.Equal(t, "action", errorOf(t, r).Error.Field)
	})

	t.Run("Requires a token", func(t *testing.T) {
		r := f.do(t, http.MethodGet, "/api/v1/actions/cancel/reasons", "", nil)
		assert.Equal(t, http.StatusUnauthorized, r.status)
	})
}
