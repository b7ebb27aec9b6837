// Package outbound dispatches outbound sends with at-most-one attempt per
// idempotency key and a time-windowed delivery-channel policy.
package outbound

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendloop-systems/sendloop/internal/store"
)

// FallbackTemplate is sent instead of free-form text when the contact's last
// inbound message is outside the freeform window. Chat platforms forbid
// free-form messages to stale contacts.
const FallbackTemplate = "out_of_window_default"

// Provider is the external delivery client. Both calls are synchronous; the
// dispatcher awaits the outcome before finalizing the send record.
type Provider interface {
	SendText(ctx context.Context, contactID, body string) (string, error)
	SendTemplate(ctx context.Context, contactID, templateName string) (string, error)
}

// SendCommand is the payload of an outbound.send_text job.
type SendCommand struct {
	IdempotencyKey string  `json:"idempotency_key"`
	ContactID      string  `json:"contact_id"`
	Body           string  `json:"body"`
	TemplateName   *string `json:"template_name,omitempty"`
}

type Service struct {
	sends       store.OutboundStore
	contacts    store.ContactStore
	provider    Provider
	windowHours int
	now         func() time.Time
}

func NewService(sends store.OutboundStore, contacts store.ContactStore, provider Provider, windowHours int) *Service {
	if windowHours <= 0 {
		windowHours = 24
	}
	return &Service{
		sends:       sends,
		contacts:    contacts,
		provider:    provider,
		windowHours: windowHours,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch makes at most one provider send attempt for the command's
// idempotency key. It returns true when an attempt was made, whether or not
// it succeeded, and false when the key was already claimed — a duplicate is
// a normal outcome, not an error. A provider failure is recorded on the send
// record and propagated so the caller can decide on requeueing.
func (s *Service) Dispatch(ctx context.Context, cmd SendCommand) (bool, error) {
	claimed, err := s.sends.ClaimOutboundSend(ctx, cmd.IdempotencyKey, cmd.ContactID, cmd.Body, cmd.TemplateName)
	if err != nil {
		return false, fmt.Errorf("claim outbound send: %w", err)
	}
	if !claimed {
		slog.Info("duplicate outbound send suppressed", "idempotency_key", cmd.IdempotencyKey)
		return false, nil
	}

	providerID, sendErr := s.deliver(ctx, cmd)
	if sendErr != nil {
		if markErr := s.sends.MarkOutboundFailed(ctx, cmd.IdempotencyKey, sendErr.Error()); markErr != nil {
			slog.Error("failed to record outbound failure", "idempotency_key", cmd.IdempotencyKey, "error", markErr)
		}
		return true, fmt.Errorf("send outbound message: %w", sendErr)
	}

	if err := s.sends.MarkOutboundSent(ctx, cmd.IdempotencyKey, providerID); err != nil {
		return true, fmt.Errorf("mark outbound sent: %w", err)
	}
	return true, nil
}

func (s *Service) deliver(ctx context.Context, cmd SendCommand) (string, error) {
	if cmd.TemplateName != nil && *cmd.TemplateName != "" {
		return s.provider.SendTemplate(ctx, cmd.ContactID, *cmd.TemplateName)
	}
	if s.canSendFreeform(ctx, cmd.ContactID) {
		return s.provider.SendText(ctx, cmd.ContactID, cmd.Body)
	}
	return s.provider.SendTemplate(ctx, cmd.ContactID, FallbackTemplate)
}

// canSendFreeform reports whether the contact messaged us within the rolling
// freeform window. A contact that never messaged gets the template channel.
func (s *Service) canSendFreeform(ctx context.Context, contactID string) bool {
	contact, err := s.contacts.GetContact(ctx, contactID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("failed to load contact for window check", "contact_id", contactID, "error", err)
		}
		return false
	}
	if contact.LastInboundAt == nil {
		return false
	}
	window := time.Duration(s.windowHours) * time.Hour
	return s.now().Sub(*contact.LastInboundAt) <= window
}
