package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/BearBump/ShipDesk/internal/integrations/email"
)

const brand = "ShipDesk"

func trackLink(ref string) string { return "/track/" + ref }

func ticketLink(id string) string { return "/dashboard/tickets/" + id }

func shipmentConfirmation(ref, recipientName string) email.Message {
	ref, name := html.EscapeString(ref), html.EscapeString(recipientName)
	return email.Message{
		Template: "shipmentConfirmation",
		Subject:  fmt.Sprintf("%s | Shipment Registered: %s", brand, ref),
		Text:     fmt.Sprintf("Hello %s, your shipment has been registered with tracking number %s. You can track it on our platform.", recipientName, ref),
		HTML: fmt.Sprintf(`<h1>Shipment Registered</h1><p>Hello %s,</p><p>Your shipment <strong>%s</strong> has been successfully created. View it <a href="%s">here</a>.</p>`,
			name, ref, trackLink(ref)),
	}
}

func receiverShipmentNotification(ref, receiverName, senderName string) email.Message {
	eref, ercv, esnd := html.EscapeString(ref), html.EscapeString(receiverName), html.EscapeString(senderName)
	return email.Message{
		Template: "receiverShipmentNotification",
		Subject:  fmt.Sprintf("%s | Incoming Shipment: %s", brand, ref),
		Text:     fmt.Sprintf("Hello %s, %s has created a shipment to you. Track it with %s.", receiverName, senderName, ref),
		HTML: fmt.Sprintf(`<h1>Incoming Shipment</h1><p>Hello %s,</p><p><strong>%s</strong> has created a shipment to you.</p><p>Tracking: <strong>%s</strong></p><p>Track it <a href="%s">here</a>.</p>`,
			ercv, esnd, eref, trackLink(eref)),
	}
}

func adminNewShipmentAlert(ref, userName string) email.Message {
	return email.Message{
		Template: "adminNewShipmentAlert",
		Subject:  fmt.Sprintf("ADMIN ALERT | New Shipment Submission: %s", ref),
		Text:     fmt.Sprintf("User %s has submitted a new shipment for processing. ID: %s", userName, ref),
		HTML: fmt.Sprintf(`<h1>New Shipment Submission</h1><p>User <strong>%s</strong> has created a new manifest.</p><p>Tracking: <strong>%s</strong></p>`,
			html.EscapeString(userName), html.EscapeString(ref)),
	}
}

func adminNewTicketAlert(ticketNumber, name, subject string) email.Message {
	return email.Message{
		Template: "adminNewTicketAlert",
		Subject:  fmt.Sprintf("ADMIN ALERT | New Support Ticket: %s", ticketNumber),
		Text:     fmt.Sprintf("%s opened ticket %s: %s", name, ticketNumber, subject),
		HTML: fmt.Sprintf(`<h1>New Support Ticket</h1><p><strong>%s</strong> opened ticket <strong>%s</strong>.</p><p>%s</p>`,
			html.EscapeString(name), html.EscapeString(ticketNumber), html.EscapeString(subject)),
	}
}

func statusUpdate(ref, status string) email.Message {
	up := strings.ToUpper(status)
	return email.Message{
		Template: "statusUpdate",
		Subject:  fmt.Sprintf("%s | Tracking Update: %s", brand, ref),
		Text:     fmt.Sprintf("Your shipment %s has been updated to: %s.", ref, up),
		HTML: fmt.Sprintf(`<h1>Tracking Update</h1><p>The status of your shipment <strong>%s</strong> has changed to <strong>%s</strong>.</p>`,
			html.EscapeString(ref), html.EscapeString(up)),
	}
}

// supportReply: в письмо попадает только начало сообщения.
func supportReply(ticketNumber, message string) email.Message {
	preview := message
	if r := []rune(preview); len(r) > 50 {
		preview = string(r[:50])
	}
	return email.Message{
		Template: "supportReply",
		Subject:  fmt.Sprintf("%s | New Support Message: %s", brand, ticketNumber),
		Text:     fmt.Sprintf("You have a new message regarding ticket %s.", ticketNumber),
		HTML: fmt.Sprintf(`<h1>Support Ticket Update</h1><p>A new response has been posted to ticket <strong>%s</strong>.</p><p>Preview: "%s..."</p>`,
			html.EscapeString(ticketNumber), html.EscapeString(preview)),
	}
}

func to(m email.Message, addr string) email.Message {
	m.To = addr
	return m
}
