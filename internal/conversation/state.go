package conversation

import (
	"ticketbot/internal/models"

	"github.com/shopspring/decimal"
)

// State is the decoded position of one conversation. Each stage carries exactly
// the data that is valid in it; the set of implementations is closed.
type State interface {
	Stage() models.Stage
	isState()
}

// eventRef is the event a conversation is buying for
type eventRef struct {
	ID       string
	Title    string
	Currency string
}

type idle struct{}

type choosingTicket struct {
	event   eventRef
	options []models.TicketOption
}

type choosingQuantity struct {
	event   eventRef
	options []models.TicketOption
	choice  models.TicketOption
}

type enteringEmail struct {
	event    eventRef
	options  []models.TicketOption
	choice   models.TicketOption
	quantity int
	total    decimal.Decimal
}

type awaitingPayment struct {
	event            eventRef
	options          []models.TicketOption
	choice           models.TicketOption
	quantity         int
	total            decimal.Decimal
	email            string
	orderID          string
	reference        string
	accessToken      string
	authorizationURL string
}

type completed struct {
	orderID string
}

func (idle) Stage() models.Stage             { return models.StageInitial }
func (choosingTicket) Stage() models.Stage   { return models.StageAwaitingTicketChoice }
func (choosingQuantity) Stage() models.Stage { return models.StageAwaitingQuantity }
func (enteringEmail) Stage() models.Stage    { return models.StageAwaitingEmail }
func (awaitingPayment) Stage() models.Stage  { return models.StageAwaitingPayment }
func (completed) Stage() models.Stage        { return models.StageCompleted }

func (idle) isState()             {}
func (choosingTicket) isState()   {}
func (choosingQuantity) isState() {}
func (enteringEmail) isState()    {}
func (awaitingPayment) isState()  {}
func (completed) isState()        {}

// Decode rebuilds the state stored on a session.
// ok is false when the row does not hold the data its stage requires.
func Decode(s *models.Session) (state State, ok bool) {
	ev := eventRef{ID: s.EventID, Title: s.Metadata.EventTitle, Currency: s.Metadata.Currency}
	options := s.Metadata.Options

	choice := func() (models.TicketOption, bool) {
		for _, o := range options {
			if o.ID == s.TicketTypeID {
				return o, true
			}
		}
		return models.TicketOption{}, false
	}
	total := func() (decimal.Decimal, bool) {
		if s.Metadata.Total == nil {
			return decimal.Zero, false
		}
		return *s.Metadata.Total, true
	}

	if s.Stage == "" {
		return idle{}, true
	}
	if !s.Stage.Valid() {
		return idle{}, false
	}

	switch s.Stage {
	case models.StageInitial:
		return idle{}, true

	case models.StageAwaitingTicketChoice:
		if ev.ID == "" || len(options) == 0 {
			return idle{}, false
		}
		return choosingTicket{event: ev, options: options}, true

	case models.StageAwaitingQuantity:
		c, found := choice()
		if ev.ID == "" || !found {
			return idle{}, false
		}
		return choosingQuantity{event: ev, options: options, choice: c}, true

	case models.StageAwaitingEmail:
		c, found := choice()
		t, hasTotal := total()
		if ev.ID == "" || !found || !hasTotal || s.Quantity <= 0 {
			return idle{}, false
		}
		return enteringEmail{event: ev, options: options, choice: c, quantity: s.Quantity, total: t}, true

	case models.StageAwaitingPayment:
		c, found := choice()
		t, hasTotal := total()
		if ev.ID == "" || !found || !hasTotal || s.OrderID == "" {
			return idle{}, false
		}
		return awaitingPayment{
			event:            ev,
			options:          options,
			choice:           c,
			quantity:         s.Quantity,
			total:            t,
			email:            s.BuyerEmail,
			orderID:          s.OrderID,
			reference:        s.PaymentReference,
			accessToken:      s.PaymentAccessToken,
			authorizationURL: s.Metadata.AuthorizationURL,
		}, true

	case models.StageCompleted:
		return completed{orderID: s.OrderID}, true
	}
	return idle{}, false
}

// Encode writes a state onto a session row. Fields the state does not carry are cleared,
// except for completed, which keeps the record of the finished order.
func Encode(state State, s *models.Session) {
	if c, ok := state.(completed); ok {
		s.Stage = models.StageCompleted
		if c.orderID != "" {
			s.OrderID = c.orderID
		}
		return
	}

	s.Reset()
	s.Stage = state.Stage()

	setEvent := func(ev eventRef, options []models.TicketOption) {
		s.EventID = ev.ID
		s.Metadata.EventTitle = ev.Title
		s.Metadata.Currency = ev.Currency
		s.Metadata.Options = options
	}
	setChoice := func(c models.TicketOption) {
		s.TicketTypeID = c.ID
		price := c.Price
		s.Metadata.UnitPrice = &price
	}
	setTotal := func(q int, total decimal.Decimal) {
		s.Quantity = q
		t := total
		s.Metadata.Total = &t
	}

	switch st := state.(type) {
	case idle:
	case choosingTicket:
		setEvent(st.event, st.options)
	case choosingQuantity:
		setEvent(st.event, st.options)
		setChoice(st.choice)
	case enteringEmail:
		setEvent(st.event, st.options)
		setChoice(st.choice)
		setTotal(st.quantity, st.total)
	case awaitingPayment:
		setEvent(st.event, st.options)
		setChoice(st.choice)
		setTotal(st.quantity, st.total)
		s.BuyerEmail = st.email
		s.OrderID = st.orderID
		s.PaymentReference = st.reference
		s.PaymentAccessToken = st.accessToken
		s.Metadata.AuthorizationURL = st.authorizationURL
	}
}
