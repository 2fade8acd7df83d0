package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"vetclinic_backend/internal/appointments/domain"
	"vetclinic_backend/internal/outbox"
	"vetclinic_backend/internal/scheduler"
	"vetclinic_backend/platform/apperr"
	eventbus "vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"

	"github.com/google/uuid"
)

// memoryRepo mimics the Postgres repository, version guard included.
type memoryRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]domain.Appointment
	onUpdate func(id uuid.UUID)
	saveErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[uuid.UUID]domain.Appointment{}}
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return domain.Appointment{}, apperr.NotFound("appointment not found")
	}
	return appt, nil
}

func (r *memoryRepo) FindByVeterinarianIDAndDateRange(_ context.Context, vetID uuid.UUID, start, end time.Time) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Appointment
	for _, appt := range r.items {
		if appt.VeterinarianID == vetID && domain.Overlaps(start, end, appt.AppointmentDate, appt.End()) {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(out[j].AppointmentDate) })
	return out, nil
}

func (r *memoryRepo) FindByClientID(_ context.Context, clientID uuid.UUID) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Appointment
	for _, appt := range r.items {
		if appt.ClientID == clientID {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (r *memoryRepo) Save(_ context.Context, appt domain.Appointment) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[appt.ID] = appt
	return nil
}

func (r *memoryRepo) Update(_ context.Context, appt domain.Appointment) error {
	if r.onUpdate != nil {
		r.onUpdate(appt.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[appt.ID]
	if !ok {
		return apperr.NotFound("appointment not found")
	}
	if stored.Version != appt.Version-1 {
		return apperr.InvalidState("appointment was modified concurrently")
	}
	r.items[appt.ID] = appt
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return apperr.NotFound("appointment not found")
	}
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) LockVeterinarian(context.Context, uuid.UUID) error { return nil }

func (r *memoryRepo) bump(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt := r.items[id]
	appt.Version++
	r.items[id] = appt
}

// memoryOutbox is an outbox.Store keeping rows in insertion order.
type memoryOutbox struct {
	mu   sync.Mutex
	rows []outboxRow
}

type outboxRow struct {
	topic  string
	env    eventbus.Envelope
	status outbox.Status
}

func (o *memoryOutbox) Insert(_ context.Context, topic string, env eventbus.Envelope, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rows = append(o.rows, outboxRow{topic: topic, env: env, status: outbox.StatusPending})
	return nil
}

func (o *memoryOutbox) MarkPublished(_ context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.rows {
		if o.rows[i].env.EventID == id {
			o.rows[i].status = outbox.StatusPublished
		}
	}
	return nil
}

func (o *memoryOutbox) snapshot() []outboxRow {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]outboxRow(nil), o.rows...)
}

// memoryScope restores repo and outbox when fn fails, like a rollback.
type memoryScope struct {
	mu     sync.Mutex
	repo   *memoryRepo
	outbox *memoryOutbox
}

func (s *memoryScope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repo.mu.Lock()
	items := make(map[uuid.UUID]domain.Appointment, len(s.repo.items))
	for k, v := range s.repo.items {
		items[k] = v
	}
	s.repo.mu.Unlock()
	rows := s.outbox.snapshot()

	if err := fn(ctx); err != nil {
		s.repo.mu.Lock()
		s.repo.items = items
		s.repo.mu.Unlock()
		s.outbox.mu.Lock()
		s.outbox.rows = rows
		s.outbox.mu.Unlock()
		return err
	}
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	topics    []string
	onPublish func()
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ eventbus.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onPublish != nil {
		p.onPublish()
	}
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	return nil
}

type recordingReminders struct {
	payloads   []scheduler.AppointmentReminderPayload
	runAt      []time.Time
	onSchedule func()
}

func (r *recordingReminders) ScheduleAppointmentReminder(_ context.Context, payload scheduler.AppointmentReminderPayload, runAt time.Time) error {
	if r.onSchedule != nil {
		r.onSchedule()
	}
	r.payloads = append(r.payloads, payload)
	r.runAt = append(r.runAt, runAt)
	return nil
}

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	outbox    *memoryOutbox
	publisher *recordingPublisher
	reminders *recordingReminders
}

var testNow = time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	repo := newMemoryRepo()
	store := &memoryOutbox{}
	pub := &recordingPublisher{}
	reminders := &recordingReminders{}
	relay := outbox.NewRelay(store, pub, logger.Discard())

	svc := New(repo, &memoryScope{repo: repo, outbox: store}, relay, reminders, logger.Discard())
	svc.now = func() time.Time { return testNow }

	return &fixture{svc: svc, repo: repo, outbox: store, publisher: pub, reminders: reminders}
}
