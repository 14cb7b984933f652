package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/claudiug/kaeruera/internal/domain/apperrors"
)

// ErrorRepository is the MySQL backend. MySQL has no native array or
// hstore column, so backtrace, params, session and env all live in JSON
// columns; absent optional fields still insert as NULL.
type ErrorRepository struct {
	db *sql.DB
}

func NewErrorRepository(db *sql.DB) *ErrorRepository { return &ErrorRepository{db: db} }

func (r *ErrorRepository) Insert(ctx context.Context, e *domain.Error) (int64, error) {
	const q = `
INSERT INTO errors
(application_id, error_class, message, backtrace, params, session, env, closed, notes, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?);`

	bt, err := json.Marshal(e.Backtrace)
	if err != nil {
		return 0, err
	}
	env, err := marshalEnv(e.Env)
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, q,
		e.ApplicationID, e.Class, e.Message,
		bt, nullJSON(e.Params), nullJSON(e.Session), env,
		e.Closed(), e.Notes, e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func (r *ErrorRepository) GetScoped(ctx context.Context, id, userID int64) (*domain.Error, error) {
	const q = selectColumns + `
FROM errors e
JOIN applications a ON a.id = e.application_id
WHERE e.id = ? AND a.user_id = ?
LIMIT 1;`
	e, err := scanError(r.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *ErrorRepository) Update(ctx context.Context, e *domain.Error, userID int64) error {
	const q = `
UPDATE errors
SET closed = ?, notes = ?
WHERE id = ?
  AND closed = false
  AND application_id IN (SELECT id FROM applications WHERE user_id = ?);`
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

func buildWindowQuery(q domain.Query) (string, []any) {
	query := selectColumns + "\nFROM errors e"
	var args []any

	where := ""
	and := func(cond string, vals ...any) {
		if where == "" {
			where = "\nWHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, vals...)
	}

	if q.OwnerID > 0 {
		query += "\nJOIN applications a ON a.id = e.application_id"
		and("a.user_id = ?", q.OwnerID)
	}
	if q.ApplicationID > 0 {
		and("e.application_id = ?", q.ApplicationID)
	}
	if q.Search != "" {
		term := "%" + escapeLikePattern(q.Search) + "%"
		and("(e.error_class LIKE ? OR e.message LIKE ?)", term, term)
	}
	if q.Class != "" {
		and("e.error_class = ?", q.Class)
	}
	if q.Status != nil {
		and("e.closed = ?", *q.Status == domain.StatusClosed)
	}

	query += where
	query += "\nORDER BY e.created_at DESC, e.id DESC"
	query += "\nLIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanError(row rowScanner) (*domain.Error, error) {
	var (
		e       domain.Error
		bt      []byte
		params  []byte
		session []byte
		env     []byte
		closed  bool
	)
	if err := row.Scan(
		&e.ID, &e.ApplicationID, &e.Class, &e.Message, &bt,
		&params, &session, &env, &closed, &e.Notes, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(bt) > 0 {
		if err := json.Unmarshal(bt, &e.Backtrace); err != nil {
			return nil, err
		}
	}
	e.Params = json.RawMessage(params)
	e.Session = json.RawMessage(session)
	if len(env) > 0 {
		if err := json.Unmarshal(env, &e.Env); err != nil {
			return nil, err
		}
	}
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

func marshalEnv(m map[string]string) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
