package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Notifier is the slice of the dispatcher the handlers need.
type Notifier interface {
	Send(ctx context.Context, req dispatch.SendRequest) (*notification.Notification, error)
}

// Event names the built-in handlers subscribe to.
const (
	EventUserCreated    = "user.created"
	EventOrderCreated   = "order.created"
	EventBookingCreated = "booking.created"
)

// UserCreatedHandler sends the welcome email for new accounts.
type UserCreatedHandler struct {
	notifier Notifier
}

// NewUserCreatedHandler creates the user.created handler.
func NewUserCreatedHandler(notifier Notifier) *UserCreatedHandler {
	return &UserCreatedHandler{notifier: notifier}
}

func (h *UserCreatedHandler) EventName() string { return EventUserCreated }

func (h *UserCreatedHandler) Handle(ctx context.Context, e Envelope) error {
	var payload struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
		Name   string `json:"name"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventName, err)
	}
	if payload.Email == "" {
		return fmt.Errorf("%s event %s has no email", e.EventName, e.Metadata.EventID)
	}

	_, err := h.notifier.Send(ctx, dispatch.SendRequest{
		Channel:      notification.ChannelEmail,
		Recipient:    payload.Email,
		TemplateSlug: "welcome-email",
		Variables: map[string]string{
			"name": payload.Name,
		},
		IdempotencyKey: "user.created:" + e.Metadata.EventID,
		Metadata: map[string]string{
			"event_id": e.Metadata.EventID,
			"user_id":  payload.UserID,
		},
	})
	return err
}

// OrderCreatedHandler sends the order confirmation email.
type OrderCreatedHandler struct {
	notifier Notifier
}

// NewOrderCreatedHandler creates the order.created handler.
func NewOrderCreatedHandler(notifier Notifier) *OrderCreatedHandler {
	return &OrderCreatedHandler{notifier: notifier}
}

func (h *OrderCreatedHandler) EventName() string { return EventOrderCreated }

func (h *OrderCreatedHandler) Handle(ctx context.Context, e Envelope) error {
	var payload struct {
		OrderID       string `json:"orderId"`
		CustomerEmail string `json:"customerEmail"`
		CustomerName  string `json:"customerName"`
		Total         string `json:"total"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventName, err)
	}
	if payload.CustomerEmail == "" {
		return fmt.Errorf("%s event %s has no customer email", e.EventName, e.Metadata.EventID)
	}

	_, err := h.notifier.Send(ctx, dispatch.SendRequest{
		Channel:      notification.ChannelEmail,
		Recipient:    payload.CustomerEmail,
		TemplateSlug: "order-confirmation",
		Variables: map[string]string{
			"name":     payload.CustomerName,
			"order_id": payload.OrderID,
			"total":    payload.Total,
		},
		IdempotencyKey: "order.created:" + e.Metadata.EventID,
		Metadata: map[string]string{
			"event_id": e.Metadata.EventID,
			"order_id": payload.OrderID,
		},
	})
	return err
}

// BookingCreatedHandler confirms bookings to the customer and alerts the
// operations mailbox when a booking spans both a kitchen and a bedroom,
// since those require coordinated preparation.
type BookingCreatedHandler struct {
	notifier   Notifier
	opsMailbox string
}

// NewBookingCreatedHandler creates the booking.created handler.
func NewBookingCreatedHandler(notifier Notifier, opsMailbox string) *BookingCreatedHandler {
	return &BookingCreatedHandler{notifier: notifier, opsMailbox: opsMailbox}
}

func (h *BookingCreatedHandler) EventName() string { return EventBookingCreated }

type bookingItem struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

func (h *BookingCreatedHandler) Handle(ctx context.Context, e Envelope) error {
	var payload struct {
		BookingID     string        `json:"bookingId"`
		CustomerEmail string        `json:"customerEmail"`
		CustomerName  string        `json:"customerName"`
		Items         []bookingItem `json:"items"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventName, err)
	}
	if payload.CustomerEmail == "" {
		return fmt.Errorf("%s event %s has no customer email", e.EventName, e.Metadata.EventID)
	}

	if _, err := h.notifier.Send(ctx, dispatch.SendRequest{
		Channel:      notification.ChannelEmail,
		Recipient:    payload.CustomerEmail,
		TemplateSlug: "booking-confirmation",
		Variables: map[string]string{
			"name":       payload.CustomerName,
			"booking_id": payload.BookingID,
		},
		IdempotencyKey: "booking.created:" + e.Metadata.EventID,
		Metadata: map[string]string{
			"event_id":   e.Metadata.EventID,
			"booking_id": payload.BookingID,
		},
	}); err != nil {
		return err
	}

	if !h.needsOpsAlert(payload.Items) {
		return nil
	}

	var names []string
	for _, item := range payload.Items {
		names = append(names, item.Name)
	}

	_, err := h.notifier.Send(ctx, dispatch.SendRequest{
		Channel:   notification.ChannelEmail,
		Recipient: h.opsMailbox,
		Priority:  notification.PriorityHigh,
		Content: &notification.Content{
			Email: &notification.EmailContent{
				Subject: fmt.Sprintf("Booking %s needs kitchen and bedroom preparation", payload.BookingID),
				TextBody: fmt.Sprintf(
					"Booking %s by %s includes both kitchen and bedroom items: %s. Coordinate preparation before check-in.",
					payload.BookingID, payload.CustomerName, strings.Join(names, ", ")),
			},
		},
		IdempotencyKey: "booking.created.ops:" + e.Metadata.EventID,
		Metadata: map[string]string{
			"event_id":   e.Metadata.EventID,
			"booking_id": payload.BookingID,
		},
	})
	return err
}

// needsOpsAlert reports whether the booking includes items from both the
// kitchen and bedroom categories.
func (h *BookingCreatedHandler) needsOpsAlert(items []bookingItem) bool {
	if h.opsMailbox == "" {
		return false
	}
	var kitchen, bedroom bool
	for _, item := range items {
		switch strings.ToLower(item.Category) {
		case "kitchen":
			kitchen = true
		case "bedroom":
			bedroom = true
		}
	}
	return kitchen && bedroom
}
