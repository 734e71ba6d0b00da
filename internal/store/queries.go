package store

import (
	"context"
	"time"

	"github.com/hifzlab/coach-engine/internal/ai"
)

// RecentSessions returns a user's practice sessions since the cutoff, newest
// first.
func (s *Store) RecentSessions(ctx context.Context, userID string, since time.Time) ([]ai.SessionRecord, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT timestamp, duration, performance_score, COALESCE(notes, '')
		FROM sessions
		WHERE user_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []ai.SessionRecord
	for rows.Next() {
		var r ai.SessionRecord
		if err := rows.Scan(&r.Timestamp, &r.DurationMinutes, &r.PerformanceScore, &r.Notes); err != nil {
			return nil, err
		}
		sessions = append(sessions, r)
	}
	return sessions, rows.Err()
}

// RecentMistakes returns a user's recorded mistakes since the cutoff, joined
// through sessions for the user filter, newest session first.
func (s *Store) RecentMistakes(ctx context.Context, userID string, since time.Time) ([]ai.MistakeRecord, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT m.location, m.error_category,
			COALESCE(m.error_subcategory, ''), COALESCE(m.details, ''),
			COALESCE(m.severity_level, 0)
		FROM mistakes m
		JOIN sessions s ON s.id = m.session_id
		WHERE s.user_id = $1 AND s.timestamp >= $2
		ORDER BY s.timestamp DESC, m.id
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mistakes []ai.MistakeRecord
	for rows.Next() {
		var r ai.MistakeRecord
		if err := rows.Scan(&r.Location, &r.Category, &r.Subcategory, &r.Details, &r.SeverityLevel); err != nil {
			return nil, err
		}
		mistakes = append(mistakes, r)
	}
	return mistakes, rows.Err()
}

// ActiveUsers returns the users with at least one session since the cutoff.
func (s *Store) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT DISTINCT user_id FROM sessions WHERE timestamp >= $1 ORDER BY user_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
