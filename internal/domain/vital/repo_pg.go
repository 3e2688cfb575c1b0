package vital

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/pkg/pagination"
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

func (r *repoPG) Create(ctx context.Context, v *Vital) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vitals (vital_id, user_id, type, value, date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING date`,
		v.ID, v.UserID, v.Type, v.Value, v.Date).Scan(&v.Date)
}

func (r *repoPG) ListByUser(ctx context.Context, userID uuid.UUID, pg pagination.Params) ([]*Vital, error) {
	// NULLIF turns the unwindowed zero limit into LIMIT NULL.
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT vital_id, user_id, type, value, date
		FROM vitals
		WHERE user_id = $1
		ORDER BY date DESC
		LIMIT NULLIF($2, 0) OFFSET $3`, userID, pg.Limit, pg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Vital
	for rows.Next() {
		var v Vital
		if err := rows.Scan(&v.ID, &v.UserID, &v.Type, &v.Value, &v.Date); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}
