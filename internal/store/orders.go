package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ticketbot/internal/models"

	"github.com/shopspring/decimal"
)

// Fulfillment carries everything needed to turn a pending order into issued tickets
type Fulfillment struct {
	OrderID      string
	TicketTypeID string
	Quantity     int
	PaidAmount   decimal.Decimal
	Currency     string
	GatewayEvent json.RawMessage
	Tickets      []models.Ticket
}

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, event_id, buyer_email, buyer_phone, currency, total_amount, status, payment_reference, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		order.ID, order.EventID, order.BuyerEmail, order.BuyerPhone, order.Currency,
		order.TotalAmount, order.Status, order.PaymentReference, order.Metadata,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FulfillOrder marks a pending order paid, consumes inventory and inserts its tickets in one transaction.
// Returns ErrOrderNotPending when another delivery already moved the order out of pending,
// and ErrInsufficientInventory when the ticket type cannot cover the quantity. Either way nothing is written.
func (s *Store) FulfillOrder(ctx context.Context, f *Fulfillment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	gatewayEvent := f.GatewayEvent
	if len(gatewayEvent) == 0 {
		gatewayEvent = json.RawMessage("{}")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, total_amount = $2, currency = $3, gateway_event = $4, paid_at = NOW(), updated_at = NOW()
		WHERE id = $5 AND status = $6`,
		models.OrderStatusPaid, f.PaidAmount, f.Currency, string(gatewayEvent), f.OrderID, models.OrderStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrOrderNotPending
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE ticket_types SET sold = sold + $1, updated_at = NOW()
		WHERE id = $2 AND sold + $1 <= quantity`,
		f.Quantity, f.TicketTypeID)
	if err != nil {
		return fmt.Errorf("failed to consume inventory: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrInsufficientInventory
	}

	for _, t := range f.Tickets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (id, order_id, event_id, ticket_type_id, code, qr_url, attendee_name, attendee_email, price, currency, validation_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID, t.OrderID, t.EventID, t.TicketTypeID, t.Code, t.QRURL,
			t.AttendeeName, t.AttendeeEmail, t.Price, t.Currency, t.ValidationStatus)
		if err != nil {
			return fmt.Errorf("failed to insert ticket %s: %w", t.Code, err)
		}
	}

	return tx.Commit()
}

// MarkOrderFailed moves a pending order to failed. Returns false if the order was not pending.
func (s *Store) MarkOrderFailed(ctx context.Context, id, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3 AND status = $4",
		models.OrderStatusFailed, reason, id, models.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark order failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTicketsByOrderID retrieves all tickets issued for an order
func (s *Store) GetTicketsByOrderID(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.SelectContext(ctx, &tickets,
		"SELECT * FROM tickets WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return tickets, err
}
