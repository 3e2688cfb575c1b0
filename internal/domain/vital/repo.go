package vital

import (
	"context"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, v *Vital) error
	ListByUser(ctx context.Context, userID uuid.UUID, pg pagination.Params) ([]*Vital, error)
}
