package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
)

type OutboundStore struct {
	db *sql.DB
}

func NewOutboundStore(db *sql.DB) *OutboundStore {
	return &OutboundStore{db: db}
}

// ClaimOutboundSend inserts the idempotency record in 'sending' state. It
// returns true when the insert succeeded, false when the key already has a
// record in any state — the caller must then make no send attempt. The primary
// key on idempotency_key makes the claim atomic under concurrent workers.
func (s *OutboundStore) ClaimOutboundSend(ctx context.Context, idempotencyKey, contactID, body string, templateName *string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbound_sends (idempotency_key, contact_id, body, template_name, status, attempts)
		 VALUES ($1, $2, $3, $4, 'sending', 1)`,
		idempotencyKey, contactID, body, templateName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *OutboundStore) GetOutboundSend(ctx context.Context, idempotencyKey string) (*models.OutboundSend, error) {
	send := &models.OutboundSend{}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT idempotency_key, contact_id, body, template_name, status, attempts, provider_message_id, last_error, created_at, updated_at
		 FROM outbound_sends
		 WHERE idempotency_key = $1`,
		idempotencyKey,
	).Scan(
		&send.IdempotencyKey, &send.ContactID, &send.Body, &send.TemplateName,
		&status, &send.Attempts, &send.ProviderMessageID, &send.LastError,
		&send.CreatedAt, &send.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	send.Status = models.SendStatus(status)
	return send, nil
}

// MarkOutboundSent finalizes the record. The status guard keeps terminal
// states terminal: a row already sent or failed is never rewritten.
func (s *OutboundStore) MarkOutboundSent(ctx context.Context, idempotencyKey, providerMessageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbound_sends
		 SET status = 'sent',
		     provider_message_id = NULLIF($2, ''),
		     last_error = NULL,
		     updated_at = NOW()
		 WHERE idempotency_key = $1 AND status = 'sending'`,
		idempotencyKey, providerMessageID,
	)
	return err
}

func (s *OutboundStore) MarkOutboundFailed(ctx context.Context, idempotencyKey, sendError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbound_sends
		 SET status = 'failed',
		     last_error = $2,
		     updated_at = NOW()
		 WHERE idempotency_key = $1 AND status = 'sending'`,
		idempotencyKey, sendError,
	)
	return err
}

// ReclaimStaleSending fails records stuck in 'sending' since before the given
// cutoff — a crash between the claim and the provider call leaves such rows
// behind. They are closed out rather than retried; a retry needs a fresh key.
func (s *OutboundStore) ReclaimStaleSending(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbound_sends
		 SET status = 'failed',
		     last_error = 'send attempt stalled; reclaimed by sweeper',
		     updated_at = NOW()
		 WHERE status = 'sending' AND updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
