package postgres

import (
	"context"
	"database/sql"
)

type InboundStore struct {
	db *sql.DB
}

func NewInboundStore(db *sql.DB) *InboundStore {
	return &InboundStore{db: db}
}

// ClaimInboundMessage records the provider message id as processed. It returns
// true when this call inserted the record, false when the id was already
// claimed (duplicate webhook delivery). The primary key on message_id makes
// the claim atomic under concurrent callers: exactly one of them sees true.
func (s *InboundStore) ClaimInboundMessage(ctx context.Context, messageID, contactID, text string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_messages (message_id, contact_id, text)
		 VALUES ($1, $2, $3)`,
		messageID, contactID, text,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
