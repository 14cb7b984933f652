package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/claudiug/kaeruera/internal/domain/apps"
)

type AppRepository struct {
	db *sql.DB
}

func NewAppRepository(db *sql.DB) *AppRepository { return &AppRepository{db: db} }

// Authenticate resolves the application by (token, id). Both must match;
// anything else is an authentication failure, never a partial answer.
func (r *AppRepository) Authenticate(ctx context.Context, token string, id int64) (*domain.Application, error) {
	const q = `
SELECT id, user_id, name, token
FROM applications
WHERE token = $1 AND id = $2
LIMIT 1;`
	a, err := scanApp(r.db.QueryRowContext(ctx, q, token, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuthenticationFailed
	}
	return a, err
}

// GetOwned returns the application only when owned by userID.
func (r *AppRepository) GetOwned(ctx context.Context, userID, id int64) (*domain.Application, error) {
	const q = `
SELECT id, user_id, name, token
FROM applications
WHERE user_id = $1 AND id = $2
LIMIT 1;`
	a, err := scanApp(r.db.QueryRowContext(ctx, q, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

// ListOwned returns the user's applications ordered by name.
func (r *AppRepository) ListOwned(ctx context.Context, userID int64) ([]*domain.Application, error) {
	const q = `
SELECT id, user_id, name, token
FROM applications
WHERE user_id = $1
ORDER BY name;`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Application
	for rows.Next() {
		var a domain.Application
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Token); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *AppRepository) Create(ctx context.Context, userID int64, name, token string) (*domain.Application, error) {
	const q = `
INSERT INTO applications (user_id, name, token)
VALUES ($1, $2, $3)
RETURNING id;`
	a := &domain.Application{UserID: userID, Name: name, Token: token}
	if err := r.db.QueryRowContext(ctx, q, userID, name, token).Scan(&a.ID); err != nil {
		return nil, fmt.Errorf("inserting application: %w", err)
	}
	return a, nil
}

func scanApp(row *sql.Row) (*domain.Application, error) {
	var a domain.Application
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Token); err != nil {
		return nil, err
	}
	return &a, nil
}
