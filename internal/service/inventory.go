package service

import (
	"context"
	"errors"
	"fmt"

	"ticketbot/internal/models"
	"ticketbot/internal/store"
	"ticketbot/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrEventNotFound is returned for unknown event ids
	ErrEventNotFound = errors.New("event not found")

	// ErrEventNotOnSale is returned for events that are not published
	ErrEventNotOnSale = errors.New("event not on sale")

	// ErrSoldOut is returned when no ticket type has stock left
	ErrSoldOut = errors.New("event sold out")
)

// CatalogStore reads events and their ticket types
type CatalogStore interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetTicketTypesByEvent(ctx context.Context, eventID string) ([]models.TicketType, error)
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
}

// Offer is what a buyer is shown for an event
type Offer struct {
	Event   *models.Event
	Options []models.TicketOption
}

// InventoryService answers availability questions for the chat flow
type InventoryService struct {
	store  CatalogStore
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store CatalogStore) *InventoryService {
	return &InventoryService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// OfferForEvent returns the sellable ticket options of an event.
// Only ticket types with remaining stock are offered.
func (s *InventoryService) OfferForEvent(ctx context.Context, eventID string) (*Offer, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.OfferForEvent")
	defer span.End()

	event, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if !event.Sellable() {
		return nil, ErrEventNotOnSale
	}

	types, err := s.store.GetTicketTypesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket types: %w", err)
	}

	options := make([]models.TicketOption, 0, len(types))
	for _, tt := range types {
		available := tt.Available()
		if available <= 0 {
			continue
		}
		options = append(options, models.TicketOption{
			ID:        tt.ID,
			Name:      tt.Name,
			Price:     tt.Price,
			Available: available,
		})
	}

	if len(options) == 0 {
		return nil, ErrSoldOut
	}

	s.logger.Debug("Offer built",
		zap.String("event_id", eventID),
		zap.Int("options", len(options)))
	return &Offer{Event: event, Options: options}, nil
}

// Available returns the live remaining count of a ticket type
func (s *InventoryService) Available(ctx context.Context, ticketTypeID string) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Available")
	defer span.End()

	tt, err := s.store.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return 0, fmt.Errorf("failed to get ticket type: %w", err)
	}
	return tt.Available(), nil
}
