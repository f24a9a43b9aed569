package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticketbot/internal/messaging"
	"ticketbot/internal/models"
	"ticketbot/internal/redisclient"
	"ticketbot/internal/service"
	"ticketbot/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeInventory struct {
	event     *models.Event
	options   []models.TicketOption
	available map[string]int
	offerErr  error
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		event: &models.Event{ID: "ev-1", Title: "Lagos Jazz Night", Currency: "NGN", Status: models.EventStatusPublished},
		options: []models.TicketOption{
			{ID: "tt-regular", Name: "Regular", Price: decimal.NewFromInt(5000), Available: 40},
			{ID: "tt-vip", Name: "VIP", Price: decimal.NewFromInt(20000), Available: 5},
		},
		available: map[string]int{"tt-regular": 40, "tt-vip": 5},
	}
}

func (f *fakeInventory) OfferForEvent(ctx context.Context, eventID string) (*service.Offer, error) {
	if f.offerErr != nil {
		return nil, f.offerErr
	}
	if eventID != f.event.ID {
		return nil, service.ErrEventNotFound
	}
	return &service.Offer{Event: f.event, Options: append([]models.TicketOption(nil), f.options...)}, nil
}

func (f *fakeInventory) Available(ctx context.Context, ticketTypeID string) (int, error) {
	n, ok := f.available[ticketTypeID]
	if !ok {
		return 0, fmt.Errorf("ticket type %s: %w", ticketTypeID, store.ErrNotFound)
	}
	return n, nil
}

type fakeCheckout struct {
	requests []*service.CheckoutRequest
	orders   map[string]*models.Order
	err      error
}

func newFakeCheckout() *fakeCheckout {
	return &fakeCheckout{orders: map[string]*models.Order{}}
}

func (f *fakeCheckout) StartCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	id := fmt.Sprintf("order-%d", len(f.requests))
	f.orders[id] = &models.Order{ID: id, Status: models.OrderStatusPending, TotalAmount: req.Total}
	ref := service.PaymentReference(id)
	return &service.CheckoutResult{
		OrderID:          id,
		Reference:        ref,
		AccessToken:      "access-" + ref,
		AuthorizationURL: "https://checkout.example.com/" + ref,
	}, nil
}

func (f *fakeCheckout) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

type memSessions struct {
	mu       sync.Mutex
	bySender map[string]*models.Session
	// beforeSave runs once before the next save, simulating a concurrent writer
	beforeSave func(*models.Session)
	saveErr    error
}

func newMemSessions() *memSessions {
	return &memSessions{bySender: map[string]*models.Session{}}
}

func (m *memSessions) GetOrCreateSession(ctx context.Context, sender string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySender[sender]
	if !ok {
		s = &models.Session{ID: uuid.New().String(), Sender: sender, Stage: models.StageInitial}
		m.bySender[sender] = s
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) SaveSession(ctx context.Context, session *models.Session, expectedStage models.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	current := m.bySender[session.Sender]
	if hook := m.beforeSave; hook != nil {
		m.beforeSave = nil
		hook(current)
	}
	if current.Stage != expectedStage {
		return store.ErrStaleSession
	}
	cp := *session
	m.bySender[session.Sender] = &cp
	return nil
}

func (m *memSessions) get(sender string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.bySender[sender]
	return &cp
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	keys map[*redisclient.Lock]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}, keys: map[*redisclient.Lock]string{}}
}

func (l *memLocker) AcquireLockWait(ctx context.Context, name string, ttl, wait time.Duration) (*redisclient.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, redisclient.ErrLockNotAcquired
	}
	l.held[name] = true
	lock := &redisclient.Lock{}
	l.keys[lock] = name
	return lock, nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, lock *redisclient.Lock) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, l.keys[lock])
	delete(l.keys, lock)
	return nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDedup) ForgetIdempotencyKey(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

type recordingSender struct {
	mu     sync.Mutex
	texts  []string
	typing int
}

func (s *recordingSender) SendText(ctx context.Context, to, body string, previewURL bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, body)
	return nil
}

func (s *recordingSender) SetTyping(ctx context.Context, to, inboundMessageID string, state messaging.TypingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing++
	return nil
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}
