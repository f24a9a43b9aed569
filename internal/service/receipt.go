package service

import (
	"fmt"
	"strings"

	"ticketbot/internal/models"
	"ticketbot/internal/util"
)

// ReceiptText renders the purchase confirmation sent after fulfillment
func ReceiptText(eventTitle string, order *models.Order, ticketTypeName string, tickets []models.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment received. Thank you!\n\n")
	fmt.Fprintf(&b, "Event: %s\n", eventTitle)
	fmt.Fprintf(&b, "Tickets: %d x %s\n", len(tickets), ticketTypeName)
	fmt.Fprintf(&b, "Total paid: %s\n", util.FormatMoney(order.TotalAmount, order.Currency))
	fmt.Fprintf(&b, "Order: %s\n\n", order.ID)
	b.WriteString("Your ticket codes:\n")
	for i, t := range tickets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Code)
	}
	b.WriteString("\nShow the QR code for each ticket at the entrance.")
	return b.String()
}

// TicketCaption is the caption of a ticket's QR image
func TicketCaption(eventTitle string, index, total int, code string) string {
	return fmt.Sprintf("%s - ticket %d of %d (%s)", eventTitle, index, total, code)
}

// FulfillmentFailedText tells the buyer a paid order could not be fulfilled
func FulfillmentFailedText(order *models.Order) string {
	return fmt.Sprintf("We received your payment for order %s but the tickets sold out before it completed. "+
		"Our team will contact you at %s about a refund.", order.ID, order.BuyerEmail)
}
