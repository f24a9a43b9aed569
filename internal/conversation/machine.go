package conversation

import (
	"context"
	"errors"
	"fmt"

	"ticketbot/internal/models"
	"ticketbot/internal/service"
	"ticketbot/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Inventory answers catalog questions
type Inventory interface {
	OfferForEvent(ctx context.Context, eventID string) (*service.Offer, error)
	Available(ctx context.Context, ticketTypeID string) (int, error)
}

// Checkout opens an order and its payment
type Checkout interface {
	StartCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResult, error)
}

// OrderReader reads orders for status queries
type OrderReader interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
}

// Reply is one outbound text
type Reply struct {
	Text       string
	PreviewURL bool
}

func text(s string) Reply { return Reply{Text: s} }

// Machine computes the next state and replies for one inbound text.
// It performs reads and the checkout call but never persists the session.
type Machine struct {
	inventory    Inventory
	checkout     Checkout
	orders       OrderReader
	purchaseLink string
	logger       *zap.Logger
}

// NewMachine creates a state machine
func NewMachine(inventory Inventory, checkout Checkout, orders OrderReader, purchaseLink string) *Machine {
	return &Machine{
		inventory:    inventory,
		checkout:     checkout,
		orders:       orders,
		purchaseLink: purchaseLink,
		logger:       util.GetLogger(),
	}
}

// Step applies text to the conversation stored on sess. An error means a dependency failed
// and the conversation must stay where it was.
func (m *Machine) Step(ctx context.Context, sess *models.Session, input string) (State, []Reply, error) {
	ctx, span := util.StartSpan(ctx, "Machine.Step")
	defer span.End()

	if isRestart(input) {
		return idle{}, []Reply{text(msgRestarted), text(introText(m.purchaseLink))}, nil
	}

	state, ok := Decode(sess)
	if !ok {
		m.logger.Warn("Session data inconsistent with stage, resetting",
			zap.String("session_id", sess.ID),
			zap.String("stage", string(sess.Stage)))
	}

	switch st := state.(type) {
	case idle:
		return m.onIdle(ctx, input)
	case choosingTicket:
		return m.onChoosingTicket(st, input)
	case choosingQuantity:
		return m.onChoosingQuantity(ctx, st, input)
	case enteringEmail:
		return m.onEnteringEmail(ctx, sess, st, input)
	case awaitingPayment:
		return m.onAwaitingPayment(ctx, st, input)
	case completed:
		return st, []Reply{text(completedText(m.purchaseLink))}, nil
	}
	return nil, nil, fmt.Errorf("unhandled state %T", state)
}

func (m *Machine) onIdle(ctx context.Context, input string) (State, []Reply, error) {
	eventID, ok := parseBuyEvent(input)
	if !ok {
		return idle{}, []Reply{text(introText(m.purchaseLink))}, nil
	}

	offer, err := m.inventory.OfferForEvent(ctx, eventID)
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		return idle{}, []Reply{text(msgEventNotFound)}, nil
	case errors.Is(err, service.ErrEventNotOnSale):
		return idle{}, []Reply{text(msgEventNotOnSale)}, nil
	case errors.Is(err, service.ErrSoldOut):
		return idle{}, []Reply{text(msgSoldOut)}, nil
	case err != nil:
		return nil, nil, err
	}

	ev := eventRef{ID: offer.Event.ID, Title: offer.Event.Title, Currency: offer.Event.Currency}
	return choosingTicket{event: ev, options: offer.Options}, []Reply{text(offerText(ev, offer.Options))}, nil
}

func (m *Machine) onChoosingTicket(st choosingTicket, input string) (State, []Reply, error) {
	n, ok := parsePositiveInt(input)
	if !ok || n > len(st.options) {
		return st, []Reply{text(invalidChoiceText(len(st.options)))}, nil
	}

	c := st.options[n-1]
	next := choosingQuantity{event: st.event, options: st.options, choice: c}
	return next, []Reply{text(choiceText(st.event, c))}, nil
}

func (m *Machine) onChoosingQuantity(ctx context.Context, st choosingQuantity, input string) (State, []Reply, error) {
	quantity, ok := parsePositiveInt(input)
	if !ok {
		return st, []Reply{text(msgAskQuantityHelp)}, nil
	}

	available, err := m.inventory.Available(ctx, st.choice.ID)
	if err != nil {
		return nil, nil, err
	}
	if quantity > available {
		return st, []Reply{text(notEnoughText(st.choice.Name, available))}, nil
	}

	total := st.choice.Price.Mul(decimal.NewFromInt(int64(quantity)))
	next := enteringEmail{
		event:    st.event,
		options:  st.options,
		choice:   st.choice,
		quantity: quantity,
		total:    total,
	}
	return next, []Reply{text(totalText(st.event, st.choice, quantity, total))}, nil
}

func (m *Machine) onEnteringEmail(ctx context.Context, sess *models.Session, st enteringEmail, input string) (State, []Reply, error) {
	email, ok := parseEmail(input)
	if !ok {
		return st, []Reply{text(msgInvalidEmail)}, nil
	}

	res, err := m.checkout.StartCheckout(ctx, &service.CheckoutRequest{
		SessionID:    sess.ID,
		BuyerPhone:   sess.Sender,
		BuyerEmail:   email,
		EventID:      st.event.ID,
		TicketTypeID: st.choice.ID,
		Quantity:     st.quantity,
		Total:        st.total,
		Currency:     st.event.Currency,
	})
	if err != nil {
		return nil, nil, err
	}

	next := awaitingPayment{
		event:            st.event,
		options:          st.options,
		choice:           st.choice,
		quantity:         st.quantity,
		total:            st.total,
		email:            email,
		orderID:          res.OrderID,
		reference:        res.Reference,
		accessToken:      res.AccessToken,
		authorizationURL: res.AuthorizationURL,
	}
	reply := Reply{Text: paymentLinkText(st.event, st.total, res.AuthorizationURL), PreviewURL: true}
	return next, []Reply{reply}, nil
}

func (m *Machine) onAwaitingPayment(ctx context.Context, st awaitingPayment, input string) (State, []Reply, error) {
	switch normalizeCommand(input) {
	case "link":
		return st, []Reply{{Text: resendLinkText(st.authorizationURL), PreviewURL: true}}, nil
	case "status", "paid":
		order, err := m.orders.GetOrderByID(ctx, st.orderID)
		if err != nil {
			return nil, nil, err
		}
		return st, []Reply{text(orderStatusText(order))}, nil
	}
	return st, []Reply{text(waitingText())}, nil
}
