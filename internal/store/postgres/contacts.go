package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
)

type ContactStore struct {
	db *sql.DB
}

func NewContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) GetContact(ctx context.Context, contactID string) (*models.Contact, error) {
	contact := &models.Contact{}
	err := s.db.QueryRowContext(ctx,
		`SELECT contact_id, agent_id, opted_out, last_inbound_at
		 FROM contacts
		 WHERE contact_id = $1`,
		contactID,
	).Scan(&contact.ContactID, &contact.AgentID, &contact.OptedOut, &contact.LastInboundAt)
	if err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *ContactStore) BindContactAgent(ctx context.Context, contactID, agentID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (contact_id, agent_id)
		 VALUES ($1, $2)
		 ON CONFLICT (contact_id) DO UPDATE SET agent_id = EXCLUDED.agent_id`,
		contactID, agentID,
	)
	return err
}

// TouchContactInbound refreshes the contact's last-inbound timestamp, creating
// the contact with the default agent binding if it has never been seen.
func (s *ContactStore) TouchContactInbound(ctx context.Context, contactID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (contact_id, last_inbound_at)
		 VALUES ($1, $2)
		 ON CONFLICT (contact_id) DO UPDATE SET last_inbound_at = EXCLUDED.last_inbound_at`,
		contactID, at,
	)
	return err
}
