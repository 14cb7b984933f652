package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/lib/pq/hstore"

	domain "github.com/claudiug/kaeruera/internal/domain/apperrors"
)

type ErrorRepository struct {
	db *sql.DB
}

func NewErrorRepository(db *sql.DB) *ErrorRepository { return &ErrorRepository{db: db} }

// Insert persists one error row and returns the generated id. Optional
// fields insert as NULL, never as empty placeholders.
func (r *ErrorRepository) Insert(ctx context.Context, e *domain.Error) (int64, error) {
	const q = `
INSERT INTO errors
(application_id, error_class, message, backtrace, params, session, env, closed, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id;`

	var id int64
	err := r.db.QueryRowContext(ctx, q,
		e.ApplicationID, e.Class, e.Message,
		pq.Array(e.Backtrace),
		nullJSON(e.Params), nullJSON(e.Session), toHstore(e.Env),
		e.Closed(), e.Notes, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting error: %w", err)
	}
	e.ID = id
	return id, nil
}

// GetScoped returns the row only when its application is owned by userID.
// A foreign row and a missing row are the same ErrNotFound.
func (r *ErrorRepository) GetScoped(ctx context.Context, id, userID int64) (*domain.Error, error) {
	const q = selectColumns + `
FROM errors e
JOIN applications a ON a.id = e.application_id
WHERE e.id = $1 AND a.user_id = $2
LIMIT 1;`
	e, err := scanError(r.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

// Update persists closed/notes. The closed = false predicate makes the
// one-way transition atomic: a row closed by a concurrent request matches
// nothing and the update reports ErrClosed.
func (r *ErrorRepository) Update(ctx context.Context, e *domain.Error, userID int64) error {
	const q = `
UPDATE errors
SET closed = $1, notes = $2
WHERE id = $3
  AND closed = false
  AND application_id IN (SELECT id FROM applications WHERE user_id = $4);`
	res, err := r.db.ExecContext(ctx, q, e.Closed(), e.Notes, e.ID, userID)
	if err != nil {
		return fmt.Errorf("updating error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrClosed
	}
	return nil
}

// Window returns the rows selected by q in most-recent order.
func (r *ErrorRepository) Window(ctx context.Context, q domain.Query) ([]*domain.Error, error) {
	query, args := buildWindowQuery(q)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying errors: %w", err)
	}
	defer rows.Close()

	var out []*domain.Error
	for rows.Next() {
		e, err := scanError(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const selectColumns = `
SELECT e.id, e.application_id, e.error_class, e.message, e.backtrace,
       e.params, e.session, e.env, e.closed, e.notes, e.created_at`

// buildWindowQuery translates a query specification into SQL. The join to
// applications appears only for owner-scoped search; the ordering is fixed
// so pagination windows stay deterministic under created_at ties.
func buildWindowQuery(q domain.Query) (string, []any) {
	query := selectColumns + "\nFROM errors e"
	var args []any

	where := ""
	and := func(cond string) {
		if where == "" {
			where = "\nWHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.OwnerID > 0 {
		query += "\nJOIN applications a ON a.id = e.application_id"
		and("a.user_id = " + arg(q.OwnerID))
	}
	if q.ApplicationID > 0 {
		and("e.application_id = " + arg(q.ApplicationID))
	}
	if q.Search != "" {
		term := "%" + escapeLikePattern(q.Search) + "%"
		p := arg(term)
		and("(e.error_class ILIKE " + p + " OR e.message ILIKE " + p + ")")
	}
	if q.Class != "" {
		and("e.error_class = " + arg(q.Class))
	}
	if q.Status != nil {
		and("e.closed = " + arg(*q.Status == domain.StatusClosed))
	}

	query += where
	query += "\nORDER BY e.created_at DESC, e.id DESC"
	query += "\nLIMIT " + arg(q.Limit) + " OFFSET " + arg(q.Offset)
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanError(row rowScanner) (*domain.Error, error) {
	var (
		e       domain.Error
		bt      pq.StringArray
		params  []byte
		session []byte
		env     hstore.Hstore
		closed  bool
	)
	if err := row.Scan(
		&e.ID, &e.ApplicationID, &e.Class, &e.Message, &bt,
		&params, &session, &env, &closed, &e.Notes, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Backtrace = []string(bt)
	e.Params = json.RawMessage(params)
	e.Session = json.RawMessage(session)
	e.Env = fromHstore(env)
	e.Status = domain.StatusOpen
	if closed {
		e.Status = domain.StatusClosed
	}
	return &e, nil
}

func nullJSON(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return []byte(v)
}

func toHstore(m map[string]string) hstore.Hstore {
	if m == nil {
		return hstore.Hstore{}
	}
	h := hstore.Hstore{Map: make(map[string]sql.NullString, len(m))}
	for k, v := range m {
		h.Map[k] = sql.NullString{String: v, Valid: true}
	}
	return h
}

func fromHstore(h hstore.Hstore) map[string]string {
	if h.Map == nil {
		return nil
	}
	m := make(map[string]string, len(h.Map))
	for k, v := range h.Map {
		m[k] = v.String
	}
	return m
}
