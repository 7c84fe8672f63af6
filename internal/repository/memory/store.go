package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/repository"
)

const (
	claimHandover  = "handover"
	claimMilestone = "milestone"
)

type claim struct {
	orderID string
	source  string
}

// Store keeps every collection behind one mutex so a transition write and its log append
// are a single critical section.
type Store struct {
	mu sync.Mutex

	orders      map[string]*domain.RentalOrder
	entries     []domain.ActivityLogEntry
	nextEntryID int64
	milestones  map[string]*domain.PaymentMilestone
	byOrder     map[string][]string
	claims      map[string]claim
	penalties   map[string]*domain.CancellationPenalty

	OrderRepository       repository.OrderRepository
	ActivityLogRepository repository.ActivityLogRepository
	MilestoneRepository   repository.MilestoneRepository
	SettlementRepository  repository.SettlementRepository
	PenaltyRepository     repository.PenaltyRepository
}

func NewStore() *Store {
	s := &Store{
		orders:     make(map[string]*domain.RentalOrder),
		milestones: make(map[string]*domain.PaymentMilestone),
		byOrder:    make(map[string][]string),
		claims:     make(map[string]claim),
		penalties:  make(map[string]*domain.CancellationPenalty),
	}
	s.OrderRepository = (*orderRepository)(s)
	s.ActivityLogRepository = (*activityLogRepository)(s)
	s.MilestoneRepository = (*milestoneRepository)(s)
	s.SettlementRepository = (*settlementRepository)(s)
	s.PenaltyRepository = (*penaltyRepository)(s)
	return s
}

type orderRepository Store

func (r *orderRepository) Create(ctx context.Context, order *domain.RentalOrder, milestones []domain.PaymentMilestone) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	for _, m := range milestones {
		if _, exists := s.milestones[m.ID]; exists {
			return fmt.Errorf("milestone %s already exists", m.ID)
		}
		if m.OrderID != order.ID {
			return fmt.Errorf("milestone %s belongs to order %s", m.ID, m.OrderID)
		}
	}

	s.orders[order.ID] = order.Clone()
	for i := range milestones {
		m := milestones[i]
		s.milestones[m.ID] = &m
		s.byOrder[order.ID] = append(s.byOrder[order.ID], m.ID)
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.RentalOrder, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

func (r *orderRepository) CompareAndSwapStatus(ctx context.Context, w repository.TransitionWrite) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[w.Order.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", w.Order.ID, domain.ErrNotFound)
	}
	if stored.Status != w.ExpectedStatus || stored.Version != w.ExpectedVersion {
		return domain.ErrConcurrentModification
	}
	if w.ClaimTransactionID != "" {
		if _, taken := s.claims[w.ClaimTransactionID]; taken {
			return domain.ErrDuplicateTransaction
		}
	}

	if w.ReleaseTransactionID != "" {
		if c, ok := s.claims[w.ReleaseTransactionID]; ok && c.orderID == stored.ID && c.source == claimHandover {
			delete(s.claims, w.ReleaseTransactionID)
		}
	}
	if w.ClaimTransactionID != "" {
		s.claims[w.ClaimTransactionID] = claim{orderID: stored.ID, source: claimHandover}
	}

	w.Order.Version = w.ExpectedVersion + 1
	next := w.Order.Clone()
	// review flags are owned by MarkReviewed
	next.HasRenterReview = stored.HasRenterReview
	next.HasOwnerReview = stored.HasOwnerReview
	next.IsArchived = stored.IsArchived
	s.orders[stored.ID] = next

	s.nextEntryID++
	w.Entry.ID = s.nextEntryID
	s.entries = append(s.entries, *w.Entry)
	return nil
}

func (r *orderRepository) ListStaleReturnPending(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.RentalOrder, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.RentalOrder
	for _, o := range s.orders {
		if o.Status != domain.OrderStatusReturnPending || o.Return.RequestedAt == nil {
			continue
		}
		if o.Return.RequestedAt.Before(requestedBefore) {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Return.RequestedAt.Before(*out[j].Return.RequestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *orderRepository) ListByRenter(ctx context.Context, renterID string, statuses []domain.OrderStatus) ([]domain.RentalOrder, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[domain.OrderStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []domain.RentalOrder
	for _, o := range s.orders {
		if o.RenterID != renterID {
			continue
		}
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *orderRepository) MarkReviewed(ctx context.Context, orderID string, role domain.Role, now time.Time) (*domain.RentalOrder, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if o.Status != domain.OrderStatusCompleted {
		return nil, &domain.TransitionError{Status: o.Status, Action: "review"}
	}
	switch role {
	case domain.RoleRenter:
		o.HasRenterReview = true
	case domain.RoleOwner:
		o.HasOwnerReview = true
	default:
		return nil, domain.ErrRoleMismatch
	}
	o.IsArchived = o.HasRenterReview && o.HasOwnerReview
	o.UpdatedAt = now
	return o.Clone(), nil
}

type activityLogRepository Store

func (r *activityLogRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ActivityLogEntry, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.ActivityLogEntry{}
	for _, e := range s.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *activityLogRepository) ListUnpublished(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ActivityLogEntry
	for _, e := range s.entries {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *activityLogRepository) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for i := range s.entries {
		if marked[s.entries[i].ID] && s.entries[i].PublishedAt == nil {
			t := at
			s.entries[i].PublishedAt = &t
		}
	}
	return nil
}

type milestoneRepository Store

func (r *milestoneRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentMilestone, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.PaymentMilestone{}
	for _, id := range s.byOrder[orderID] {
		out = append(out, *s.milestones[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *milestoneRepository) GetByID(ctx context.Context, id string) (*domain.PaymentMilestone, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.milestones[id]
	if !ok {
		return nil, fmt.Errorf("milestone %s: %w", id, domain.ErrNotFound)
	}
	c := *m
	return &c, nil
}

func (r *milestoneRepository) MarkPaid(ctx context.Context, milestoneID, transactionID string, paidAt time.Time) (*domain.PaymentMilestone, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.milestones[milestoneID]
	if !ok {
		return nil, fmt.Errorf("milestone %s: %w", milestoneID, domain.ErrNotFound)
	}
	if !m.Payable() {
		return nil, domain.ErrConcurrentModification
	}
	if _, taken := s.claims[transactionID]; taken {
		return nil, domain.ErrDuplicateTransaction
	}
	s.claims[transactionID] = claim{orderID: m.OrderID, source: claimMilestone}

	t := paidAt
	m.Status = domain.MilestoneStatusPaid
	m.PaidAt = &t
	m.TransactionID = transactionID
	c := *m
	return &c, nil
}

func (r *milestoneRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.milestones {
		if m.Status == domain.MilestoneStatusPending && m.DueDate.Before(now) {
			m.Status = domain.MilestoneStatusOverdue
			n++
		}
	}
	return n, nil
}

type settlementRepository Store

func (r *settlementRepository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.claims[transactionID]
	return ok, nil
}

type penaltyRepository Store

func (r *penaltyRepository) Get(ctx context.Context, userID string) (*domain.CancellationPenalty, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.penalties[userID]
	if !ok {
		return nil, fmt.Errorf("penalty for %s: %w", userID, domain.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (r *penaltyRepository) Update(ctx context.Context, userID string, now time.Time, fn func(p *domain.CancellationPenalty)) (*domain.CancellationPenalty, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.penalties[userID]
	if !ok {
		p = &domain.CancellationPenalty{UserID: userID, LastReset: now}
	}
	next := *p
	fn(&next)
	next.UpdatedAt = now
	s.penalties[userID] = &next
	c := next
	return &c, nil
}
