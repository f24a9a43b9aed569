package service

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"strings"

	"ticketbot/internal/models"

	"github.com/google/uuid"
)

// codeAlphabet omits 0/O and 1/I so codes survive being read aloud or retyped.
// Its 32 symbols divide 256 evenly, so byte%32 is unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the length of a ticket code
const CodeLength = 8

// GenerateTicketCode returns a random ticket code
func GenerateTicketCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf), nil
}

// TicketIssuer builds ticket rows with codes and QR image links
type TicketIssuer struct {
	validationURL string
	qrBaseURL     string
	generateCode  func() (string, error)
}

// NewTicketIssuer creates an issuer. validationURL is the scanner endpoint encoded in every QR;
// qrBaseURL renders a QR image for a "data" query parameter.
func NewTicketIssuer(validationURL, qrBaseURL string) *TicketIssuer {
	return &TicketIssuer{
		validationURL: strings.TrimRight(validationURL, "/"),
		qrBaseURL:     qrBaseURL,
		generateCode:  GenerateTicketCode,
	}
}

// Issue builds quantity tickets with distinct codes for an order. Nothing is persisted.
func (ti *TicketIssuer) Issue(order *models.Order, tt *models.TicketType, quantity int) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, quantity)
	seen := make(map[string]struct{}, quantity)

	for len(tickets) < quantity {
		code, err := ti.generateCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ticket code: %w", err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		id := uuid.New().String()
		tickets = append(tickets, models.Ticket{
			ID:               id,
			OrderID:          order.ID,
			EventID:          order.EventID,
			TicketTypeID:     tt.ID,
			Code:             code,
			QRURL:            ti.QRImageURL(ti.ValidationURL(id, code)),
			AttendeeEmail:    order.BuyerEmail,
			Price:            tt.Price,
			Currency:         order.Currency,
			ValidationStatus: models.TicketStatusValid,
		})
	}
	return tickets, nil
}

// ValidationURL is the link a door scanner opens for a ticket.
// The code doubles as the validation token.
func (ti *TicketIssuer) ValidationURL(ticketID, code string) string {
	return fmt.Sprintf("%s/%s?code=%s", ti.validationURL, url.PathEscape(ticketID), url.QueryEscape(code))
}

// QRImageURL returns an image URL rendering data as a QR code
func (ti *TicketIssuer) QRImageURL(data string) string {
	u, err := url.Parse(ti.qrBaseURL)
	if err != nil {
		return ti.qrBaseURL + "?size=400x400&data=" + url.QueryEscape(data)
	}
	q := u.Query()
	q.Set("size", "400x400")
	q.Set("data", data)
	u.RawQuery = q.Encode()
	return u.String()
}
