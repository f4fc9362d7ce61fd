package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/shingolive/internal/model"
)

// scannable is a *sql.Row or *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent reads one row selected with eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var (
		e       model.Event
		topic   sql.NullString
		source  string
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Name, &topic, &source, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Topic = topic.String
	e.Source = model.Source(source)
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

func scanComponentStatus(row scannable) (*model.ComponentStatus, error) {
	var cs model.ComponentStatus
	if err := row.Scan(&cs.Component, &cs.State, &cs.UpdatedAt); err != nil {
		return nil, err
	}
	return &cs, nil
}

// scanAll drains rows through scan.
func scanAll[T any](rows *sql.Rows, scan func(scannable) (T, error)) ([]T, error) {
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// nullString stores "" as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// payloadBytes stores an empty payload as {}.
func payloadBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	return m
}
