package postgres

import (
	"context"
	"database/sql"

	"github.com/sendloop-systems/sendloop/internal/models"
)

type TurnStore struct {
	db *sql.DB
}

func NewTurnStore(db *sql.DB) *TurnStore {
	return &TurnStore{db: db}
}

func (s *TurnStore) AppendTurn(ctx context.Context, turn models.ConversationTurn) (*models.ConversationTurn, error) {
	saved := turn
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversation_turns (contact_id, inbound_text, outbound_text, matched_rule_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		turn.ContactID, turn.InboundText, turn.OutboundText, turn.MatchedRuleID,
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *TurnStore) ListTurnsByContactID(ctx context.Context, contactID string, limit, offset int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, inbound_text, outbound_text, matched_rule_id, created_at
		 FROM conversation_turns
		 WHERE contact_id = $1
		 ORDER BY id DESC
		 LIMIT $2 OFFSET $3`,
		contactID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		if err := rows.Scan(&turn.ID, &turn.ContactID, &turn.InboundText, &turn.OutboundText, &turn.MatchedRuleID, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
