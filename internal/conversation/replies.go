package conversation

import (
	"fmt"
	"strings"

	"ticketbot/internal/models"
	"ticketbot/internal/util"

	"github.com/shopspring/decimal"
)

const (
	msgApology         = "Sorry, something went wrong on our side. Please send your last message again in a moment."
	msgEventNotFound   = "We couldn't find that event. Please use the purchase link from the event page to start again."
	msgEventNotOnSale  = "Tickets for this event are not on sale right now."
	msgSoldOut         = "Sorry, this event is sold out."
	msgAskQuantityHelp = "Please reply with the number of tickets you want, for example 2."
	msgAskEmail        = "Please reply with your email address. We'll send your receipt there too."
	msgInvalidEmail    = "That doesn't look like a valid email address. Please try again, for example ada@example.com."
	msgRestarted       = "Your selection has been cleared."
)

func introText(purchaseLink string) string {
	var b strings.Builder
	b.WriteString("Hi! I can help you buy event tickets right here in chat.\n")
	b.WriteString("Open the event page and tap \"Buy on WhatsApp\" to get started")
	if purchaseLink != "" {
		fmt.Fprintf(&b, ": %s", purchaseLink)
	}
	b.WriteString(".\nSend \"restart\" at any time to start over.")
	return b.String()
}

func offerText(ev eventRef, options []models.TicketOption) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tickets for %s:\n\n", ev.Title)
	for i, o := range options {
		fmt.Fprintf(&b, "%d. %s - %s (%d left)\n", i+1, o.Name, util.FormatMoney(o.Price, ev.Currency), o.Available)
	}
	b.WriteString("\nReply with the number of the ticket you want.")
	return b.String()
}

func invalidChoiceText(n int) string {
	if n == 1 {
		return "Please reply with 1 to choose the ticket."
	}
	return fmt.Sprintf("Please reply with a number between 1 and %d.", n)
}

func choiceText(ev eventRef, c models.TicketOption) string {
	return fmt.Sprintf("You chose %s at %s each.\nHow many tickets would you like?",
		c.Name, util.FormatMoney(c.Price, ev.Currency))
}

func notEnoughText(name string, available int) string {
	if available <= 0 {
		return fmt.Sprintf("Sorry, %s just sold out. Send \"restart\" to pick another ticket.", name)
	}
	return fmt.Sprintf("Sorry, only %d %s ticket(s) left. Please reply with a smaller number.", available, name)
}

func totalText(ev eventRef, c models.TicketOption, quantity int, total decimal.Decimal) string {
	return fmt.Sprintf("%d x %s = %s\n\n%s",
		quantity, c.Name, util.FormatMoney(total, ev.Currency), msgAskEmail)
}

func paymentLinkText(ev eventRef, total decimal.Decimal, url string) string {
	return fmt.Sprintf("Your order for %s is ready. Pay %s securely here:\n%s\n\n"+
		"Your tickets will arrive in this chat once the payment is confirmed. Reply \"status\" to check on it.",
		ev.Title, util.FormatMoney(total, ev.Currency), url)
}

func resendLinkText(url string) string {
	return fmt.Sprintf("Here is your payment link again:\n%s", url)
}

func waitingText() string {
	return "We're waiting for your payment. Reply \"link\" for the payment link, \"status\" to check your order, or \"restart\" to start over."
}

func orderStatusText(order *models.Order) string {
	switch order.Status {
	case models.OrderStatusPaid:
		return fmt.Sprintf("Order %s is paid. Your tickets are on the way.", order.ID)
	case models.OrderStatusFailed:
		return fmt.Sprintf("Order %s could not be completed. Our team will reach out to you.", order.ID)
	default:
		return fmt.Sprintf("Order %s is still awaiting payment.", order.ID)
	}
}

func completedText(purchaseLink string) string {
	msg := "Your last order is complete and your tickets have been sent. To buy more, start again via the event link"
	if purchaseLink != "" {
		msg += ": " + purchaseLink
	}
	return msg + "."
}
