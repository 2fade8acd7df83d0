package streams

import (
	"context"
	"errors"
	"testing"
	"time"

	"vetclinic_backend/platform/config"
	"vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestConsumer(client *redis.Client, router *events.Router, service string, policy Policy) *Consumer {
	c := NewConsumer(client, router, Options{
		Service:  service,
		Consumer: "test-1",
		Policy:   policy,
		Block:    -1,
	}, logger.Discard())
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func visitEnvelope(t *testing.T) events.Envelope {
	t.Helper()
	env, err := events.New("VisitUpdated", "v1", 1, time.Now(), map[string]string{"visitId": "v1", "status": "completed"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func pendingCount(t *testing.T, client *redis.Client, topic, queue string) int64 {
	t.Helper()
	pending, err := client.XPending(context.Background(), StreamKey(topic), queue).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return pending.Count
}

func TestPublishAndConsumeAcknowledges(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	var got []events.Envelope
	router := events.NewRouter()
	router.Handle("VisitUpdated", "VisitUpdated", events.HandlerFunc(func(ctx context.Context, env events.Envelope) error {
		got = append(got, env)
		return nil
	}))

	consumer := newTestConsumer(client, router, "patient", Policy{MaxAttempts: 3})
	if err := consumer.Setup(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}

	env := visitEnvelope(t)
	if err := NewPublisher(client, "clinic").Publish(ctx, "VisitUpdated", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	n, err := consumer.Poll(ctx, "VisitUpdated")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 || len(got) != 1 {
		t.Fatalf("expected one handled message, got n=%d handled=%d", n, len(got))
	}
	if got[0].EventID != env.EventID || got[0].Source != "clinic" {
		t.Fatalf("unexpected envelope %+v", got[0])
	}
	if c := pendingCount(t, client, "VisitUpdated", "patient_VisitUpdated"); c != 0 {
		t.Fatalf("expected no pending messages, got %d", c)
	}
}

func TestEachServiceQueueReceivesEveryEvent(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	counts := map[string]int{}
	newRouter := func(service string) *events.Router {
		r := events.NewRouter()
		r.Handle("AppointmentCreated", "AppointmentCreated", events.HandlerFunc(func(context.Context, events.Envelope) error {
			counts[service]++
			return nil
		}))
		return r
	}

	patient := newTestConsumer(client, newRouter("patient"), "patient", Policy{})
	billing := newTestConsumer(client, newRouter("billing"), "billing", Policy{})
	for _, c := range []*Consumer{patient, billing} {
		if err := c.Setup(ctx); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	env, _ := events.New("AppointmentCreated", "a1", 1, time.Now(), map[string]string{"appointmentId": "a1"})
	if err := NewPublisher(client, "clinic").Publish(ctx, "AppointmentCreated", env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := patient.Poll(ctx, "AppointmentCreated"); err != nil {
		t.Fatalf("patient poll: %v", err)
	}
	if _, err := billing.Poll(ctx, "AppointmentCreated"); err != nil {
		t.Fatalf("billing poll: %v", err)
	}
	if counts["patient"] != 1 || counts["billing"] != 1 {
		t.Fatalf("expected fan-out to both queues, got %v", counts)
	}
}

func TestFailingHandlerIsDeadLetteredAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	calls := 0
	router := events.NewRouter()
	router.Handle("VisitUpdated", "VisitUpdated", events.HandlerFunc(func(context.Context, events.Envelope) error {
		calls++
		return errors.New("projection store unavailable")
	}))

	consumer := newTestConsumer(client, router, "patient", Policy{MaxAttempts: 3})
	if err := consumer.Setup(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}

	env := visitEnvelope(t)
	if err := NewPublisher(client, "clinic").Publish(ctx, "VisitUpdated", env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := consumer.Poll(ctx, "VisitUpdated"); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	letters, err := consumer.DeadLetters(ctx, "VisitUpdated", 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(letters))
	}
	if letters[0].EventID != env.EventID.String() || letters[0].Attempts != 3 {
		t.Fatalf("unexpected dead letter %+v", letters[0])
	}
	if letters[0].Error != "projection store unavailable" {
		t.Fatalf("expected cause to be recorded, got %q", letters[0].Error)
	}
	if c := pendingCount(t, client, "VisitUpdated", "patient_VisitUpdated"); c != 0 {
		t.Fatalf("expected dead-lettered message to be acknowledged, got %d pending", c)
	}
}

func TestHandlerRecoversAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	calls := 0
	router := events.NewRouter()
	router.Handle("VisitUpdated", "VisitUpdated", events.HandlerFunc(func(context.Context, events.Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("timeout")
		}
		return nil
	}))

	consumer := newTestConsumer(client, router, "patient", Policy{MaxAttempts: 3})
	_ = consumer.Setup(ctx)
	_ = NewPublisher(client, "clinic").Publish(ctx, "VisitUpdated", visitEnvelope(t))

	if _, err := consumer.Poll(ctx, "VisitUpdated"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected success on second attempt, got %d calls", calls)
	}
	letters, _ := consumer.DeadLetters(ctx, "VisitUpdated", 10)
	if len(letters) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(letters))
	}
}

func TestUndecodableMessageIsDeadLettered(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	router := events.NewRouter()
	router.Handle("VisitUpdated", "VisitUpdated", events.HandlerFunc(func(context.Context, events.Envelope) error {
		t.Fatal("handler must not run for an undecodable message")
		return nil
	}))

	consumer := newTestConsumer(client, router, "patient", Policy{})
	_ = consumer.Setup(ctx)

	err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey("VisitUpdated"),
		Values: map[string]any{fieldEnvelope: "not-json"},
	}).Err()
	if err != nil {
		t.Fatalf("xadd: %v", err)
	}

	if _, err := consumer.Poll(ctx, "VisitUpdated"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	letters, _ := consumer.DeadLetters(ctx, "VisitUpdated", 10)
	if len(letters) != 1 || letters[0].Attempts != 0 {
		t.Fatalf("expected one dead letter with zero attempts, got %+v", letters)
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	router := events.NewRouter()
	router.Handle("AllergyUpdated", "AllergyUpdated", events.HandlerFunc(func(context.Context, events.Envelope) error { return nil }))
	consumer := newTestConsumer(client, router, "patient", Policy{})

	if err := consumer.Setup(ctx); err != nil {
		t.Fatalf("first setup: %v", err)
	}
	if err := consumer.Setup(ctx); err != nil {
		t.Fatalf("second setup must tolerate existing group: %v", err)
	}
}

func TestPolicyBackoffIsCapped(t *testing.T) {
	p := Policy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	if got := p.Backoff(1); got != 100*time.Millisecond {
		t.Fatalf("attempt 1: expected 100ms, got %s", got)
	}
	if got := p.Backoff(3); got != 400*time.Millisecond {
		t.Fatalf("attempt 3: expected 400ms, got %s", got)
	}
	if got := p.Backoff(20); got != time.Second {
		t.Fatalf("attempt 20: expected cap of 1s, got %s", got)
	}
}

func TestPublishRejectsInvalidEnvelope(t *testing.T) {
	client := newTestClient(t)
	err := NewPublisher(client, "clinic").Publish(context.Background(), "VisitUpdated", events.Envelope{Type: "VisitUpdated"})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHealthPingsRedis(t *testing.T) {
	if err := NewHealth(newTestClient(t)).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestTopicPoliciesFromConfig(t *testing.T) {
	got := TopicPoliciesFromConfig(map[string]config.ConsumerPolicy{
		"VisitUpdated": {MaxAttempts: 2, HandlerTimeout: time.Second},
	})
	if got["VisitUpdated"].MaxAttempts != 2 || got["VisitUpdated"].HandlerTimeout != time.Second {
		t.Fatalf("unexpected policies %+v", got)
	}
	if TopicPoliciesFromConfig(nil) != nil {
		t.Fatal("expected nil for no overrides")
	}
}

func newPeerConsumers(t *testing.T, router *events.Router, policy Policy) (*miniredis.Miniredis, *redis.Client, *Consumer, *Consumer) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	build := func(name string) *Consumer {
		c := NewConsumer(client, router, Options{
			Service:   "patient",
			Consumer:  name,
			Policy:    policy,
			Block:     -1,
			ClaimIdle: time.Second,
		}, logger.Discard())
		c.sleep = func(context.Context, time.Duration) error { return nil }
		return c
	}
	return mr, client, build("patient-a"), build("patient-b")
}

func TestClaimIdleCoversRetryWindow(t *testing.T) {
	consumer := NewConsumer(nil, events.NewRouter(), Options{
		ClaimIdle: time.Second,
		TopicPolicies: map[string]Policy{
			"VisitUpdated": {HandlerTimeout: time.Minute, MaxBackoff: 5 * time.Second},
		},
	}, logger.Discard())

	if want := 130 * time.Second; consumer.opts.ClaimIdle != want {
		t.Fatalf("expected claim idle %s, got %s", want, consumer.opts.ClaimIdle)
	}
}

func TestRetryingConsumerKeepsItsClaim(t *testing.T) {
	ctx := context.Background()
	policy := Policy{MaxAttempts: 5, HandlerTimeout: time.Second, BaseBackoff: time.Second, MaxBackoff: time.Second}

	calls := 0
	router := events.NewRouter()
	router.Handle("VisitUpdated", "VisitUpdated", events.HandlerFunc(func(context.Context, events.Envelope) error {
		calls++
		return errors.New("projection store unavailable")
	}))

	mr, client, a, b := newPeerConsumers(t, router, policy)
	claimIdle := a.opts.ClaimIdle
	if err := a.Setup(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Each backoff moves the clock by more than half of ClaimIdle, so
	// without renewal the message would go idle long enough for b to take it.
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	reclaimed := 0
	a.sleep = func(ctx context.Context, _ time.Duration) error {
		now = now.Add(claimIdle * 3 / 4)
		mr.SetTime(now)
		n, err := b.Reclaim(ctx, "VisitUpdated")
		if err != nil {
			t.Fatalf("reclaim: %v", err)
		}
		reclaimed += n
		return nil
	}

	if err := NewPublisher(client, "clinic").Publish(ctx, "VisitUpdated", visitEnvelope(t)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := a.Poll(ctx, "VisitUpdated"); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if reclaimed != 0 {
		t.Fatalf("expected no takeover while retrying, got %d", reclaimed)
	}
	if calls != policy.MaxAttempts {
		t.Fatalf("expected %d handler calls, got %d", policy.MaxAttempts, calls)
	}
	letters, err := a.DeadLetters(ctx, "VisitUpdated", 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(letters))
	}
}

func TestConsumerStopsAfterTakeover(t *testing.T) {
	ctx := context.Background()
	policy := Policy{MaxAttempts: 5, HandlerTimeout: time.Second, BaseBackoff: time.Second, MaxBackoff: time.Second}

	calls := 0
	router := events.NewRouter()
	router.Handle("VisitUpdated", "VisitUpdated", events.HandlerFunc(func(context.Context, events.Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("projection store unavailable")
		}
		return nil
	}))

	mr, client, a, b := newPeerConsumers(t, router, policy)
	if err := a.Setup(ctx); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// a stalls in its first backoff for longer than ClaimIdle.
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a.sleep = func(ctx context.Context, _ time.Duration) error {
		now = now.Add(a.opts.ClaimIdle + time.Second)
		mr.SetTime(now)
		if n, err := b.Reclaim(ctx, "VisitUpdated"); err != nil || n != 1 {
			t.Fatalf("expected b to take the message over, got %d, %v", n, err)
		}
		return nil
	}

	if err := NewPublisher(client, "clinic").Publish(ctx, "VisitUpdated", visitEnvelope(t)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := a.Poll(ctx, "VisitUpdated"); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if calls != 2 {
		t.Fatalf("expected one failed and one reclaimed call, got %d", calls)
	}
	letters, err := a.DeadLetters(ctx, "VisitUpdated", 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(letters) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(letters))
	}
	if c := pendingCount(t, client, "VisitUpdated", "patient_VisitUpdated"); c != 0 {
		t.Fatalf("expected the message acknowledged, got %d pending", c)
	}
}
