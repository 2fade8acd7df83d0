package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vetclinic_backend/internal/records/domain"
	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/db"
	eventbus "vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"
)

const errStoreFailure = "failed to store record"

type Repository interface {
	Upsert(ctx context.Context, kind domain.Kind, id, patientID string, document []byte, updatedAt time.Time) (int64, error)
	Get(ctx context.Context, kind domain.Kind, id string) (domain.Stored, error)
}

// EventRecorder writes events inside the unit of work and delivers them
// after it commits.
type EventRecorder interface {
	Add(ctx context.Context, topic string, env eventbus.Envelope) error
	Deliver(ctx context.Context, topic string, env eventbus.Envelope)
}

// Service owns the clinical records and announces every change in full.
type Service struct {
	repo   Repository
	scope  db.Scope
	events EventRecorder
	log    *logger.Logger
	now    func() time.Time
}

func New(repo Repository, scope db.Scope, recorder EventRecorder, log *logger.Logger) *Service {
	return &Service{repo: repo, scope: scope, events: recorder, log: log, now: time.Now}
}

// Save validates rec, stores it with a bumped version and records the
// matching *Updated event in the same transaction.
func (s *Service) Save(ctx context.Context, rec domain.Record) (domain.Stored, error) {
	if err := rec.Validate(); err != nil {
		return domain.Stored{}, apperr.Validation(err.Error())
	}

	now := s.now().UTC()
	payload := rec.Payload(now)
	document, err := json.Marshal(payload)
	if err != nil {
		return domain.Stored{}, apperr.Internal("failed to encode record")
	}

	kind := rec.Kind()
	stored := domain.Stored{
		Kind:      kind,
		ID:        rec.RecordID(),
		PatientID: rec.PatientRef(),
		Document:  document,
		UpdatedAt: now,
	}

	var env eventbus.Envelope
	err = s.scope.Execute(ctx, func(ctx context.Context) error {
		version, err := s.repo.Upsert(ctx, kind, stored.ID, stored.PatientID, document, now)
		if err != nil {
			return err
		}
		stored.Version = version

		env, err = eventbus.New(kind.Topic(), stored.ID, version, now, payload)
		if err != nil {
			return err
		}
		return s.events.Add(ctx, kind.Topic(), env)
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return domain.Stored{}, err
		}
		return domain.Stored{}, apperr.Persistence(errStoreFailure, err)
	}

	s.log.WithContext(ctx).Info("clinical record saved",
		"kind", kind,
		"recordId", stored.ID,
		"version", stored.Version,
	)
	s.events.Deliver(ctx, kind.Topic(), env)
	return stored, nil
}

// Get returns the stored record of kind with id.
func (s *Service) Get(ctx context.Context, kind domain.Kind, id string) (domain.Stored, error) {
	rec, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return domain.Stored{}, err
		}
		return domain.Stored{}, apperr.Persistence("failed to load record", err)
	}
	return rec, nil
}
