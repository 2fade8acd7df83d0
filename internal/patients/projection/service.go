package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/db"
	"vetclinic_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence the projection service needs.
type Store interface {
	MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Upsert(ctx context.Context, rec Record) (bool, error)
	Get(ctx context.Context, kind Kind, id string) (Record, error)
	ListByPatient(ctx context.Context, kind Kind, patientID string) ([]Record, error)
}

type Service struct {
	store    Store
	scope    db.Scope
	consumer string
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates the projection service. consumer names the inbox the
// processed event ids are recorded under.
func NewService(store Store, scope db.Scope, consumer string, log *logger.Logger) *Service {
	return &Service{store: store, scope: scope, consumer: consumer, log: log, now: time.Now}
}

// Apply stores rec unless its event was already processed or a version at
// least as new is stored. The inbox entry and the upsert commit together.
func (s *Service) Apply(ctx context.Context, rec Record) (Outcome, error) {
	if rec.ID == "" || rec.Version < 1 || rec.SourceEventID == uuid.Nil {
		return Duplicate, fmt.Errorf("apply %s: id, version and event id are required", rec.Kind)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}

	outcome := Applied
	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		fresh, err := s.store.MarkProcessed(ctx, s.consumer, rec.SourceEventID)
		if err != nil {
			return err
		}
		if !fresh {
			outcome = Duplicate
			return nil
		}

		written, err := s.store.Upsert(ctx, rec)
		if err != nil {
			return err
		}
		if !written {
			outcome = Stale
		}
		return nil
	})
	if err != nil {
		return outcome, err
	}

	s.log.WithContext(ctx).Debug("projection event handled",
		"kind", rec.Kind,
		"id", rec.ID,
		"version", rec.Version,
		"outcome", outcome.String(),
	)
	return outcome, nil
}

func (s *Service) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	rec, err := s.store.Get(ctx, kind, id)
	return rec, readError(err)
}

func (s *Service) ListByPatient(ctx context.Context, kind Kind, patientID string) ([]Record, error) {
	items, err := s.store.ListByPatient(ctx, kind, patientID)
	return items, readError(err)
}

func readError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Persistence("failed to load projection", err)
}
