package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/sendloop-systems/sendloop/internal/models"
)

type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) UpsertSchedule(ctx context.Context, schedule models.Schedule) (*models.Schedule, error) {
	saved := schedule
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO schedules (id, contact_id, agent_id, message_text, template_name, interval_minutes, next_run_at, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET contact_id = EXCLUDED.contact_id,
		     agent_id = EXCLUDED.agent_id,
		     message_text = EXCLUDED.message_text,
		     template_name = EXCLUDED.template_name,
		     interval_minutes = EXCLUDED.interval_minutes,
		     next_run_at = EXCLUDED.next_run_at,
		     enabled = EXCLUDED.enabled
		 RETURNING id, contact_id, agent_id, message_text, template_name, interval_minutes, next_run_at, enabled`,
		schedule.ID, schedule.ContactID, schedule.AgentID, schedule.MessageText,
		schedule.TemplateName, schedule.IntervalMinutes, schedule.NextRunAt, schedule.Enabled,
	).Scan(
		&saved.ID, &saved.ContactID, &saved.AgentID, &saved.MessageText,
		&saved.TemplateName, &saved.IntervalMinutes, &saved.NextRunAt, &saved.Enabled,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ListDueSchedules returns enabled schedules whose next run is at or before
// now, earliest-due first.
func (s *ScheduleStore) ListDueSchedules(ctx context.Context, now time.Time) ([]models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, agent_id, message_text, template_name, interval_minutes, next_run_at, enabled
		 FROM schedules
		 WHERE enabled = TRUE AND next_run_at <= $1
		 ORDER BY next_run_at ASC, id ASC`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var schedule models.Schedule
		if err := rows.Scan(
			&schedule.ID, &schedule.ContactID, &schedule.AgentID, &schedule.MessageText,
			&schedule.TemplateName, &schedule.IntervalMinutes, &schedule.NextRunAt, &schedule.Enabled,
		); err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

func (s *ScheduleStore) AdvanceSchedule(ctx context.Context, id string, nextRunAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_run_at = $2 WHERE id = $1`,
		id, nextRunAt,
	)
	return err
}
