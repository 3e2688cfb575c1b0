package vital

import (
	"time"

	"github.com/google/uuid"
)

type Vital struct {
	ID     uuid.UUID `json:"vital_id"`
	UserID uuid.UUID `json:"user_id"`
	Type   string    `json:"type"`
	Value  string    `json:"value"`
	Date   time.Time `json:"date"`
}
