package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticketbot/internal/models"
	"ticketbot/internal/payment"
	"ticketbot/internal/redisclient"
	"ticketbot/internal/store"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for store.Store
type memStore struct {
	mu          sync.Mutex
	events      map[string]*models.Event
	ticketTypes map[string]*models.TicketType
	orders      map[string]*models.Order
	tickets     map[string][]models.Ticket
	completed   []string
	failWrites  error

	// sessionOrders maps a session to the order it is currently waiting on
	sessionOrders map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		events:      map[string]*models.Event{},
		ticketTypes: map[string]*models.TicketType{},
		orders:      map[string]*models.Order{},
		tickets:     map[string][]models.Ticket{},

		sessionOrders: map[string]string{},
	}
}

func (m *memStore) seedEvent(id, status string, types ...models.TicketType) {
	m.events[id] = &models.Event{ID: id, Title: "Lagos Jazz Night", Currency: "NGN", Status: status}
	for i := range types {
		tt := types[i]
		tt.EventID = id
		m.ticketTypes[tt.ID] = &tt
	}
}

func (m *memStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, store.ErrNotFound)
	}
	cp := *ev
	return &cp, nil
}

func (m *memStore) GetTicketTypesByEvent(ctx context.Context, eventID string) ([]models.TicketType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TicketType
	for _, id := range []string{"tt-regular", "tt-vip", "tt-table"} {
		if tt, ok := m.ticketTypes[id]; ok && tt.EventID == eventID {
			out = append(out, *tt)
		}
	}
	return out, nil
}

func (m *memStore) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tt, ok := m.ticketTypes[id]
	if !ok {
		return nil, fmt.Errorf("ticket type %s: %w", id, store.ErrNotFound)
	}
	cp := *tt
	return &cp, nil
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) FulfillOrder(ctx context.Context, f *store.Fulfillment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	o := m.orders[f.OrderID]
	if o == nil || o.Status != models.OrderStatusPending {
		return store.ErrOrderNotPending
	}
	tt := m.ticketTypes[f.TicketTypeID]
	if tt.Sold+f.Quantity > tt.Quantity {
		return store.ErrInsufficientInventory
	}
	now := time.Now()
	o.Status = models.OrderStatusPaid
	o.TotalAmount = f.PaidAmount
	o.Currency = f.Currency
	o.GatewayEvent = f.GatewayEvent
	o.PaidAt = &now
	tt.Sold += f.Quantity
	m.tickets[f.OrderID] = append(m.tickets[f.OrderID], f.Tickets...)
	return nil
}

func (m *memStore) MarkOrderFailed(ctx context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	if o == nil || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusFailed
	o.FailureReason = reason
	return true, nil
}

func (m *memStore) GetTicketsByOrderID(ctx context.Context, orderID string) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Ticket(nil), m.tickets[orderID]...), nil
}

func (m *memStore) CompleteSession(ctx context.Context, id, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionOrders[id] != orderID {
		return false, nil
	}
	m.completed = append(m.completed, id)
	return true, nil
}

type memLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	names map[*redisclient.Lock]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}, names: map[*redisclient.Lock]string{}}
}

func (l *memLocker) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*redisclient.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, redisclient.ErrLockNotAcquired
	}
	l.held[name] = true
	lock := &redisclient.Lock{}
	l.names[lock] = name
	return lock, nil
}

func (l *memLocker) ExtendLock(ctx context.Context, lock *redisclient.Lock, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := l.names[lock]
	return ok && l.held[name], nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, lock *redisclient.Lock) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, l.names[lock])
	delete(l.names, lock)
	return nil
}

type sentMessage struct {
	to      string
	text    string
	image   string
	caption string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) SendText(ctx context.Context, to, body string, previewURL bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{to: to, text: body})
	return nil
}

func (n *recordingNotifier) SendImage(ctx context.Context, to, imageURL, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{to: to, image: imageURL, caption: caption})
	return nil
}

func (n *recordingNotifier) counts() (texts, images int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.sent {
		if m.image != "" {
			images++
		} else {
			texts++
		}
	}
	return texts, images
}

type stubGateway struct {
	requests []*payment.InitializeRequest
	err      error
}

func (g *stubGateway) Initialize(ctx context.Context, req *payment.InitializeRequest) (*payment.Transaction, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payment.Transaction{
		Reference:        req.Reference,
		AccessCode:       "access-" + req.Reference,
		AuthorizationURL: "https://checkout.example.com/" + req.Reference,
	}, nil
}

type recordingEvents struct {
	created []*models.OrderCreatedEvent
	paid    []*models.OrderPaidEvent
	failed  []*models.OrderFailedEvent
	issued  []*models.TicketsIssuedEvent
}

func (e *recordingEvents) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	e.created = append(e.created, event)
	return nil
}

func (e *recordingEvents) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	e.paid = append(e.paid, event)
	return nil
}

func (e *recordingEvents) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	e.failed = append(e.failed, event)
	return nil
}

func (e *recordingEvents) PublishTicketsIssued(ctx context.Context, event *models.TicketsIssuedEvent) error {
	e.issued = append(e.issued, event)
	return nil
}

func ticketType(id, name string, price int64, quantity, sold int) models.TicketType {
	return models.TicketType{ID: id, Name: name, Price: decimal.NewFromInt(price), Quantity: quantity, Sold: sold}
}
