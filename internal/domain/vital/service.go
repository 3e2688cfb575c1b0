package vital

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/pkg/pagination"
)

var validVitalTypes = map[string]bool{
	"blood_pressure": true, "sugar": true, "weight": true,
}

type Service struct {
	vitals Repository

	now func() time.Time
}

func NewService(vitals Repository) *Service {
	return &Service{vitals: vitals, now: time.Now}
}

// Log records a vital reading. Value stays free text so compound readings
// like "120/80" pass through unchanged. Date defaults to the current time.
func (s *Service) Log(ctx context.Context, userID uuid.UUID, vitalType, value string, date *time.Time) (*Vital, error) {
	if vitalType == "" {
		return nil, fmt.Errorf("type is required")
	}
	if value == "" {
		return nil, fmt.Errorf("value is required")
	}
	if !validVitalTypes[vitalType] {
		return nil, fmt.Errorf("invalid vital type: %s", vitalType)
	}

	at := s.now()
	if date != nil {
		at = *date
	}

	v := &Vital{
		UserID: userID,
		Type:   vitalType,
		Value:  value,
		Date:   at,
	}
	if err := s.vitals.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, pg pagination.Params) ([]*Vital, error) {
	return s.vitals.ListByUser(ctx, userID, pg)
}
