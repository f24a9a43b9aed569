package store

import (
	"context"
	"errors"
	"fmt"

	"ticketbot/internal/models"

	"github.com/google/uuid"
)

// ErrStaleSession is returned when a session changed stage since it was loaded
var ErrStaleSession = errors.New("session stage changed concurrently")

// GetOrCreateSession returns the session of a sender, creating it in the initial stage on first contact
func (s *Store) GetOrCreateSession(ctx context.Context, sender string) (*models.Session, error) {
	query := `
		INSERT INTO chat_sessions (id, sender, stage)
		VALUES ($1, $2, $3)
		ON CONFLICT (sender) DO UPDATE SET sender = EXCLUDED.sender
		RETURNING *`

	var session models.Session
	if err := s.db.GetContext(ctx, &session, query, uuid.New().String(), sender, models.StageInitial); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// SaveSession persists every mutable field of a session.
// The write only applies while the stored stage still equals expectedStage.
func (s *Store) SaveSession(ctx context.Context, session *models.Session, expectedStage models.Stage) error {
	query := `
		UPDATE chat_sessions SET
			stage = $1, event_id = $2, ticket_type_id = $3, quantity = $4, buyer_email = $5,
			order_id = $6, payment_reference = $7, payment_access_token = $8, metadata = $9,
			last_message = $10, updated_at = NOW()
		WHERE id = $11 AND stage = $12`

	res, err := s.db.ExecContext(ctx, query,
		session.Stage, session.EventID, session.TicketTypeID, session.Quantity, session.BuyerEmail,
		session.OrderID, session.PaymentReference, session.PaymentAccessToken, session.Metadata,
		session.LastMessage, session.ID, expectedStage)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleSession
	}
	return nil
}

// CompleteSession moves a session to the terminal stage while it still tracks orderID.
// It reports false when the session has moved on to another purchase.
func (s *Store) CompleteSession(ctx context.Context, id, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET stage = $1, updated_at = NOW() WHERE id = $2 AND order_id = $3",
		models.StageCompleted, id, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
