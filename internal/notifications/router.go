package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/internal/badges"
	"github.com/angelmondragon/gigmarket-backend/internal/consumers/domain"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

type notifier interface {
	Notify(ctx context.Context, input Input) (*NotificationDTO, error)
}

// Router turns domain events into user notifications.
type Router struct {
	notifier notifier
}

func NewRouter(n notifier) (*Router, error) {
	if n == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &Router{notifier: n}, nil
}

func (r *Router) Name() string { return "notifications" }

func (r *Router) Handle(ctx context.Context, event domain.Event) error {
	for _, input := range inputsFor(event) {
		if input.UserID == uuid.Nil {
			continue
		}
		if _, err := r.notifier.Notify(ctx, input); err != nil {
			return err
		}
	}
	return nil
}

// inputsFor maps an event to the notifications it produces. Events nobody
// needs to hear about map to nothing.
func inputsFor(event domain.Event) []Input {
	switch p := event.Payload.(type) {
	case *payloads.MessageCreatedEvent:
		return []Input{{
			UserID:  p.RecipientID,
			Type:    enums.NotificationTypeMessage,
			Title:   fmt.Sprintf("New message from %s", nameOr(p.SenderName, "a user")),
			Message: p.Preview,
			Link:    "/conversations/" + p.ConversationID.String(),
			Data:    map[string]string{"conversation_id": p.ConversationID.String()},
		}}
	case *payloads.ProposalEvent:
		return proposalInputs(event.Type, p)
	case *payloads.GigEvent:
		return gigInputs(event.Type, p)
	case *payloads.PaymentEvent:
		return paymentInputs(event.Type, p)
	case *payloads.ReviewCreatedEvent:
		return []Input{{
			UserID:  p.RevieweeID,
			Type:    enums.NotificationTypeReview,
			Title:   fmt.Sprintf("You received a %d-star review", p.Rating),
			Message: "See what they said on your profile.",
			Link:    "/profiles/" + p.RevieweeID.String() + "/reviews",
			Data:    map[string]string{"review_id": p.ReviewID.String()},
		}}
	case *payloads.BadgeAwardedEvent:
		def := badges.Describe(p.Code)
		return []Input{{
			UserID:  p.ProfileID,
			Type:    enums.NotificationTypeBadge,
			Title:   fmt.Sprintf("You earned the %s badge", def.Name),
			Message: def.Description,
			Link:    "/profiles/" + p.ProfileID.String(),
			Data:    map[string]string{"badge": string(p.Code)},
		}}
	case *payloads.DocumentReviewedEvent:
		return documentInputs(p)
	case *payloads.EmergencyRequestedEvent:
		out := make([]Input, 0, len(p.CandidateIDs))
		for _, candidate := range p.CandidateIDs {
			out = append(out, Input{
				UserID:  candidate,
				Type:    enums.NotificationTypeEmergency,
				Title:   "Emergency request nearby",
				Message: truncate(p.Description, 140),
				Link:    "/emergencies/" + p.RequestID.String(),
				Data:    map[string]string{"request_id": p.RequestID.String()},
			})
		}
		return out
	case *payloads.EmergencyStatusChangedEvent:
		return emergencyInputs(p)
	case *payloads.NotificationRequestedEvent:
		return []Input{{
			UserID:  p.UserID,
			Type:    p.Type,
			Title:   p.Title,
			Message: p.Message,
			Link:    p.Link,
			Data:    p.Data,
		}}
	}
	return nil
}

func proposalInputs(eventType enums.OutboxEventType, p *payloads.ProposalEvent) []Input {
	data := map[string]string{"proposal_id": p.ProposalID.String(), "gig_id": p.GigID.String()}
	switch eventType {
	case enums.EventProposalSubmitted:
		return []Input{{
			UserID:  p.ClientID,
			Type:    enums.NotificationTypeProposal,
			Title:   fmt.Sprintf("New proposal on %q", p.GigTitle),
			Message: fmt.Sprintf("A provider offered to do it for %s.", money(p.PriceCents, "")),
			Link:    "/gigs/" + p.GigID.String() + "/proposals",
			Data:    data,
		}}
	case enums.EventProposalAccepted:
		return []Input{{
			UserID:  p.ProviderID,
			Type:    enums.NotificationTypeProposal,
			Title:   "Your proposal was accepted",
			Message: fmt.Sprintf("You have been hired for %q.", p.GigTitle),
			Link:    "/gigs/" + p.GigID.String(),
			Data:    data,
		}}
	}
	return nil
}

func gigInputs(eventType enums.OutboxEventType, p *payloads.GigEvent) []Input {
	link := "/gigs/" + p.GigID.String()
	data := map[string]string{"gig_id": p.GigID.String()}
	switch eventType {
	case enums.EventGigApproved:
		return []Input{{
			UserID:  p.ClientID,
			Type:    enums.NotificationTypeGig,
			Title:   "Your gig is live",
			Message: fmt.Sprintf("%q is now visible to providers.", p.Title),
			Link:    link,
			Data:    data,
		}}
	case enums.EventGigRejected:
		msg := fmt.Sprintf("%q was not approved.", p.Title)
		if reason := strings.TrimSpace(p.Reason); reason != "" {
			msg = fmt.Sprintf("%q was not approved. Reason: %s", p.Title, reason)
		}
		return []Input{{
			UserID:  p.ClientID,
			Type:    enums.NotificationTypeGig,
			Title:   "Your gig was rejected",
			Message: msg,
			Link:    link,
			Data:    data,
		}}
	case enums.EventGigCompleted:
		if p.ProviderID == nil {
			return nil
		}
		return []Input{{
			UserID:  *p.ProviderID,
			Type:    enums.NotificationTypeGig,
			Title:   "Gig marked complete",
			Message: fmt.Sprintf("The client completed %q. Leave them a review.", p.Title),
			Link:    link + "/review",
			Data:    data,
		}}
	}
	return nil
}

func paymentInputs(eventType enums.OutboxEventType, p *payloads.PaymentEvent) []Input {
	amount := money(p.AmountCents, p.Currency)
	link := "/payments/" + p.PaymentID.String()
	data := map[string]string{"payment_id": p.PaymentID.String(), "gig_id": p.GigID.String()}
	in := func(userID uuid.UUID, title, message string) []Input {
		return []Input{{UserID: userID, Type: enums.NotificationTypePayment, Title: title, Message: message, Link: link, Data: data}}
	}
	switch eventType {
	case enums.EventPaymentHeld:
		return in(p.PayeeID, "Payment secured", fmt.Sprintf("%s is held in escrow for your gig.", amount))
	case enums.EventPaymentReleased:
		return in(p.PayeeID, "Payment released", fmt.Sprintf("%s is on its way to your account.", amount))
	case enums.EventPaymentRefunded:
		return in(p.PayerID, "Payment refunded", fmt.Sprintf("%s has been refunded.", amount))
	case enums.EventPaymentFailed:
		msg := fmt.Sprintf("Your payment of %s failed.", amount)
		if reason := strings.TrimSpace(p.Reason); reason != "" {
			msg = fmt.Sprintf("Your payment of %s failed: %s", amount, reason)
		}
		return in(p.PayerID, "Payment failed", msg)
	}
	return nil
}

func documentInputs(p *payloads.DocumentReviewedEvent) []Input {
	in := Input{
		UserID: p.ProviderID,
		Type:   enums.NotificationTypeDocument,
		Link:   "/documents",
		Data:   map[string]string{"document_id": p.DocumentID.String(), "kind": string(p.Kind)},
	}
	switch p.Status {
	case enums.DocumentStatusApproved:
		in.Title = "Document approved"
		in.Message = fmt.Sprintf("Your %s document was approved.", p.Kind)
	case enums.DocumentStatusRejected:
		in.Title = "Document rejected"
		in.Message = fmt.Sprintf("Your %s document was rejected.", p.Kind)
		if note := strings.TrimSpace(p.Note); note != "" {
			in.Message = fmt.Sprintf("Your %s document was rejected: %s", p.Kind, note)
		}
	default:
		return nil
	}
	return []Input{in}
}

func emergencyInputs(p *payloads.EmergencyStatusChangedEvent) []Input {
	link := "/emergencies/" + p.RequestID.String()
	data := map[string]string{"request_id": p.RequestID.String(), "status": string(p.Status)}
	client := func(title, message string) []Input {
		return []Input{{UserID: p.ClientID, Type: enums.NotificationTypeEmergency, Title: title, Message: message, Link: link, Data: data}}
	}
	switch p.Status {
	case enums.EmergencyStatusAccepted:
		return client("A provider accepted your request", "Track their arrival live.")
	case enums.EmergencyStatusEnRoute:
		return client("Your provider is on the way", "Track their arrival live.")
	case enums.EmergencyStatusArrived:
		return client("Your provider has arrived", "")
	case enums.EmergencyStatusCompleted:
		return client("Emergency job completed", "Leave a review for your provider.")
	case enums.EmergencyStatusExpired:
		return client("No provider available", "Nobody accepted your request in time. Please try again.")
	case enums.EmergencyStatusCancelled:
		if p.ProviderID == nil {
			return nil
		}
		return []Input{{
			UserID:  *p.ProviderID,
			Type:    enums.NotificationTypeEmergency,
			Title:   "Emergency request cancelled",
			Message: "The client cancelled the request.",
			Link:    link,
			Data:    data,
		}}
	}
	return nil
}

func money(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return "$" + amount
	}
	return amount + " " + currency
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
