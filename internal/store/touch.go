package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyEnded is returned when ending a touch event that is already closed.
var ErrAlreadyEnded = errors.New("touch event already ended")

// TouchEvent is one contiguous period during which the user touched their face.
type TouchEvent struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	PeakConfidence float64    `json:"peak_confidence"`
	Cycles         int        `json:"cycles"`
}

// Open reports whether the event has not ended yet.
func (e *TouchEvent) Open() bool {
	return e.EndedAt == nil
}

// Duration returns how long the event lasted, or zero while it is open.
func (e *TouchEvent) Duration() time.Duration {
	if e.EndedAt == nil {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// TouchEventRepository provides operations on the touch history.
type TouchEventRepository struct {
	db *sql.DB
}

// TouchEvents returns the touch event repository for this store.
func (s *Store) TouchEvents() *TouchEventRepository {
	return &TouchEventRepository{db: s.db}
}

// Start inserts a new open touch event.
func (r *TouchEventRepository) Start(startedAt time.Time, confidence float64) (*TouchEvent, error) {
	e := &TouchEvent{
		ID:             uuid.NewString(),
		StartedAt:      startedAt,
		PeakConfidence: confidence,
		Cycles:         1,
	}

	_, err := r.db.Exec(
		`INSERT INTO touch_events (id, started_at, peak_confidence, cycles) VALUES (?, ?, ?, ?)`,
		e.ID, e.StartedAt, e.PeakConfidence, e.Cycles,
	)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// End closes an open touch event.
func (r *TouchEventRepository) End(id string, endedAt time.Time, peak float64, cycles int) error {
	result, err := r.db.Exec(
		`UPDATE touch_events SET ended_at = ?, peak_confidence = MAX(peak_confidence, ?), cycles = MAX(cycles, ?)
		 WHERE id = ? AND ended_at IS NULL`,
		endedAt, peak, cycles, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		if _, err := r.GetByID(id); err != nil {
			return err
		}
		return ErrAlreadyEnded
	}

	return nil
}

// GetByID retrieves a touch event by its ID.
func (r *TouchEventRepository) GetByID(id string) (*TouchEvent, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, peak_confidence, cycles
		 FROM touch_events WHERE id = ?`,
		id,
	)

	e, err := scanTouchEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// List retrieves the most recent touch events, newest first.
// A limit of zero or less returns every event.
func (r *TouchEventRepository) List(limit int) ([]*TouchEvent, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, peak_confidence, cycles
		 FROM touch_events ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*TouchEvent
	for rows.Next() {
		e, err := scanTouchEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Count returns the number of recorded touch events.
func (r *TouchEventRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM touch_events`).Scan(&n)
	return n, err
}

// CloseOpen ends every event still open at endedAt, e.g. on shutdown.
func (r *TouchEventRepository) CloseOpen(endedAt time.Time) (int, error) {
	result, err := r.db.Exec(`UPDATE touch_events SET ended_at = ? WHERE ended_at IS NULL`, endedAt)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTouchEvent(s scanner) (*TouchEvent, error) {
	e := &TouchEvent{}
	var ended sql.NullTime

	if err := s.Scan(&e.ID, &e.StartedAt, &ended, &e.PeakConfidence, &e.Cycles); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		e.EndedAt = &t
	}
	return e, nil
}
