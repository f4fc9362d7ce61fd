package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/shingolive/internal/model"
)

const eventColumns = `id, name, topic, source, payload, created_at`

// executor is a *sql.DB or *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements the data methods of store.Store on an executor, so the
// pooled store and the transaction store share them.
type queries struct {
	ex executor
}

// RecordEvent inserts e and fills in its id and timestamp. An empty source
// is recorded as api.
func (q queries) RecordEvent(ctx context.Context, e *model.Event) error {
	if e.Source == "" {
		e.Source = model.SourceAPI
	}
	return q.ex.QueryRowContext(ctx, `
		INSERT INTO events (name, topic, source, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Name, nullString(e.Topic), string(e.Source), payloadBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

// ListEvents returns matching events in id order.
func (q queries) ListEvents(ctx context.Context, f model.EventFilter) ([]*model.Event, error) {
	where, args := buildEventWhere(f)
	stmt := "SELECT " + eventColumns + " FROM events" + where + " ORDER BY id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		stmt += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := q.ex.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows, scanEvent)
}

// LatestEventID is 0 for an empty log.
func (q queries) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := q.ex.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&id)
	return id, err
}

func (q queries) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.ex.ExecContext(ctx, `DELETE FROM events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetComponentStatus upserts cs and fills in its timestamp.
func (q queries) SetComponentStatus(ctx context.Context, cs *model.ComponentStatus) error {
	return q.ex.QueryRowContext(ctx, `
		INSERT INTO component_status (component, state)
		VALUES ($1, $2)
		ON CONFLICT (component) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
		RETURNING updated_at`,
		cs.Component, cs.State,
	).Scan(&cs.UpdatedAt)
}

func (q queries) ListComponentStatus(ctx context.Context) ([]*model.ComponentStatus, error) {
	rows, err := q.ex.QueryContext(ctx,
		`SELECT component, state, updated_at FROM component_status ORDER BY component`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows, scanComponentStatus)
}

// buildEventWhere turns f into a WHERE clause with numbered placeholders.
func buildEventWhere(f model.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AfterID > 0 {
		add("id > $%d", f.AfterID)
	}
	if len(f.Names) > 0 {
		add("name = ANY($%d)", pq.Array(f.Names))
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
