package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sendloop-systems/sendloop/internal/models"
)

type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

func (s *RuleStore) UpsertRule(ctx context.Context, rule models.Rule) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO agent_rules (id, agent_id, rule_type, enabled, priority, keywords_csv, prefix, action, reply_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET agent_id = EXCLUDED.agent_id,
		     rule_type = EXCLUDED.rule_type,
		     enabled = EXCLUDED.enabled,
		     priority = EXCLUDED.priority,
		     keywords_csv = EXCLUDED.keywords_csv,
		     prefix = EXCLUDED.prefix,
		     action = EXCLUDED.action,
		     reply_text = EXCLUDED.reply_text,
		     updated_at = NOW()
		 RETURNING id, agent_id, rule_type, enabled, priority, keywords_csv, prefix, action, reply_text, created_at, updated_at`,
		rule.ID, rule.AgentID, string(rule.Type), rule.Enabled, rule.Priority,
		keywordsToCSV(rule.Keywords), rule.Prefix, string(rule.Action), rule.ReplyText,
	)
	return scanRule(row)
}

func (s *RuleStore) GetRuleByID(ctx context.Context, id string) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, rule_type, enabled, priority, keywords_csv, prefix, action, reply_text, created_at, updated_at
		 FROM agent_rules
		 WHERE id = $1`,
		id,
	)
	return scanRule(row)
}

// ListEnabledRulesByAgentID returns the agent's enabled rules in evaluation
// order: ascending priority, insertion order on ties.
func (s *RuleStore) ListEnabledRulesByAgentID(ctx context.Context, agentID string) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, rule_type, enabled, priority, keywords_csv, prefix, action, reply_text, created_at, updated_at
		 FROM agent_rules
		 WHERE agent_id = $1 AND enabled = TRUE
		 ORDER BY priority ASC, created_at ASC, id ASC`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var (
		rule        models.Rule
		ruleType    string
		action      string
		keywordsCSV string
	)
	err := row.Scan(
		&rule.ID, &rule.AgentID, &ruleType, &rule.Enabled, &rule.Priority,
		&keywordsCSV, &rule.Prefix, &action, &rule.ReplyText,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Type = models.RuleType(ruleType)
	rule.Action = models.RuleAction(action)
	rule.Keywords = csvToKeywords(keywordsCSV)
	return &rule, nil
}

func keywordsToCSV(keywords []string) string {
	cleaned := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cleaned = append(cleaned, k)
	}
	return strings.Join(cleaned, "|")
}

func csvToKeywords(value string) []string {
	if value == "" {
		return nil
	}
	var keywords []string
	for _, k := range strings.Split(value, "|") {
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}
