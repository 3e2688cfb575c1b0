package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meditrack/meditrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `user_id, name, email, age, password_hash, created_at`

func (r *repoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Age, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (user_id, name, email, age, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		u.ID, u.Name, u.Email, u.Age, u.PasswordHash).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE user_id = $1`, id))
}
