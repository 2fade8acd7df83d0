package streams

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"vetclinic_backend/platform/config"
	"vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	fieldEventID  = "eventId"
	fieldType     = "type"
	fieldEnvelope = "envelope"

	fieldMessageID = "messageId"
	fieldError     = "error"
	fieldAttempts  = "attempts"
	fieldFailedAt  = "failedAt"
)

// Policy bounds how one message is retried before it is dead-lettered.
type Policy struct {
	MaxAttempts    int
	HandlerTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used for fields left zero.
var DefaultPolicy = Policy{
	MaxAttempts:    5,
	HandlerTimeout: 30 * time.Second,
	BaseBackoff:    200 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.HandlerTimeout <= 0 {
		p.HandlerTimeout = DefaultPolicy.HandlerTimeout
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultPolicy.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultPolicy.MaxBackoff
	}
	return p
}

// Backoff returns the delay before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseBackoff << (attempt - 1)
	if delay <= 0 || delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Options configures a Consumer.
type Options struct {
	// Service owns the consumer groups; queues are named <service>_<topic>.
	Service string
	// Consumer identifies this process inside each group.
	Consumer string
	Policy   Policy
	// TopicPolicies overrides Policy per topic.
	TopicPolicies map[string]Policy
	// Block is how long one read waits for new messages. Negative disables blocking.
	Block     time.Duration
	BatchSize int64
	// ClaimIdle is how long a message may sit unacknowledged before another
	// consumer reclaims it. It is raised to at least twice the longest
	// HandlerTimeout+MaxBackoff of any policy, the longest a handler goes
	// without renewing its claim.
	ClaimIdle     time.Duration
	ClaimInterval time.Duration
}

// Consumer reads topic streams through per-service consumer groups and
// dispatches envelopes to a router. Delivery is at least once.
type Consumer struct {
	client redis.Cmdable
	router *events.Router
	opts   Options
	log    *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewConsumer creates a consumer for every topic registered on router.
func NewConsumer(client redis.Cmdable, router *events.Router, opts Options, log *logger.Logger) *Consumer {
	if opts.Consumer == "" {
		host, _ := os.Hostname()
		opts.Consumer = host + "-" + strconv.Itoa(os.Getpid())
	}
	if opts.Block == 0 {
		opts.Block = 2 * time.Second
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = 30 * time.Second
	}
	opts.Policy = opts.Policy.withDefaults()

	c := &Consumer{
		client: client,
		router: router,
		opts:   opts,
		log:    log,
		sleep:  sleepContext,
	}
	if floor := c.minClaimIdle(); c.opts.ClaimIdle < floor {
		c.opts.ClaimIdle = floor
	}
	return c
}

// minClaimIdle is the shortest ClaimIdle under which a healthy consumer
// cannot lose a message it is still retrying.
func (c *Consumer) minClaimIdle() time.Duration {
	longest := c.opts.Policy.HandlerTimeout + c.opts.Policy.MaxBackoff
	for topic := range c.opts.TopicPolicies {
		p := c.policyFor(topic)
		if d := p.HandlerTimeout + p.MaxBackoff; d > longest {
			longest = d
		}
	}
	return 2 * longest
}

func (c *Consumer) policyFor(topic string) Policy {
	if p, ok := c.opts.TopicPolicies[topic]; ok {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = c.opts.Policy.MaxAttempts
		}
		if p.HandlerTimeout <= 0 {
			p.HandlerTimeout = c.opts.Policy.HandlerTimeout
		}
		if p.BaseBackoff <= 0 {
			p.BaseBackoff = c.opts.Policy.BaseBackoff
		}
		if p.MaxBackoff <= 0 {
			p.MaxBackoff = c.opts.Policy.MaxBackoff
		}
		return p
	}
	return c.opts.Policy
}

// Setup declares the consumer group of every routed topic.
func (c *Consumer) Setup(ctx context.Context) error {
	for _, topic := range c.router.Topics() {
		queue := QueueName(c.opts.Service, topic)
		err := c.client.XGroupCreateMkStream(ctx, StreamKey(topic), queue, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
	}
	return nil
}

// Run declares the queues and consumes every topic until ctx is cancelled.
// Topics are consumed concurrently; messages of one topic are handled in order.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Setup(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range c.router.Topics() {
		g.Go(func() error {
			return c.consume(gctx, topic)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Consumer) consume(ctx context.Context, topic string) error {
	queue := QueueName(c.opts.Service, topic)
	c.log.Info("consumer started", "queue", queue, "consumer", c.opts.Consumer)

	lastClaim := time.Time{}
	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(lastClaim) >= c.opts.ClaimInterval {
			if _, err := c.Reclaim(ctx, topic); err != nil && ctx.Err() == nil {
				c.log.Warn("reclaim failed", "queue", queue, "error", err)
			}
			lastClaim = time.Now()
		}

		if _, err := c.Poll(ctx, topic); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("stream read failed", "queue", queue, "error", err)
			if err := c.sleep(ctx, time.Second); err != nil {
				return nil
			}
		}
	}
}

// Poll reads one batch of new messages for topic and handles them.
// It returns the number of messages handled.
func (c *Consumer) Poll(ctx context.Context, topic string) (int, error) {
	queue := QueueName(c.opts.Service, topic)

	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    queue,
		Consumer: c.opts.Consumer,
		Streams:  []string{StreamKey(topic), ">"},
		Count:    c.opts.BatchSize,
		Block:    c.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, stream := range result {
		for _, msg := range stream.Messages {
			c.handle(ctx, topic, msg)
			handled++
		}
	}
	return handled, nil
}

// Reclaim takes over messages another consumer of the group left pending
// longer than ClaimIdle and handles them.
func (c *Consumer) Reclaim(ctx context.Context, topic string) (int, error) {
	queue := QueueName(c.opts.Service, topic)
	start := "0-0"
	handled := 0

	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamKey(topic),
			Group:    queue,
			MinIdle:  c.opts.ClaimIdle,
			Start:    start,
			Count:    c.opts.BatchSize,
			Consumer: c.opts.Consumer,
		}).Result()
		if err != nil {
			return handled, err
		}

		for _, msg := range msgs {
			c.handle(ctx, topic, msg)
			handled++
		}

		if next == "0-0" || next == "" || len(msgs) == 0 {
			return handled, nil
		}
		start = next
	}
}

func (c *Consumer) handle(ctx context.Context, topic string, msg redis.XMessage) {
	queue := QueueName(c.opts.Service, topic)
	raw, _ := msg.Values[fieldEnvelope].(string)

	env, err := events.Unmarshal([]byte(raw))
	if err != nil {
		c.deadLetter(ctx, topic, msg, raw, "", 0, err)
		return
	}

	policy := c.policyFor(topic)
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = c.dispatch(ctx, topic, env, policy.HandlerTimeout)
		if lastErr == nil {
			c.ack(ctx, topic, msg.ID)
			return
		}
		if errors.Is(lastErr, events.ErrNoRoute) {
			c.log.Debug("no route for event", "queue", queue, "type", env.Type)
			c.ack(ctx, topic, msg.ID)
			return
		}
		if ctx.Err() != nil {
			// Left pending; Reclaim delivers it again.
			return
		}

		c.log.HandlerFailed(queue, env.EventID.String(), attempt, lastErr)
		if !c.renew(ctx, topic, msg.ID) {
			return
		}
		if attempt < policy.MaxAttempts {
			if err := c.sleep(ctx, policy.Backoff(attempt)); err != nil {
				return
			}
			if !c.renew(ctx, topic, msg.ID) {
				return
			}
		}
	}

	c.deadLetter(ctx, topic, msg, raw, env.EventID.String(), policy.MaxAttempts, lastErr)
}

// renew resets the idle time of a message this consumer still owns so
// Reclaim elsewhere does not take it over mid-retry. It reports false when
// the message was acknowledged or claimed by another consumer, in which case
// handling must stop.
func (c *Consumer) renew(ctx context.Context, topic, id string) bool {
	queue := QueueName(c.opts.Service, topic)

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   StreamKey(topic),
		Group:    queue,
		Start:    id,
		End:      id,
		Count:    1,
		Consumer: c.opts.Consumer,
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// Keep retrying; the claim may lapse but the handlers are idempotent.
		c.log.Warn("claim renewal failed", "queue", queue, "message_id", id, "error", err)
		return true
	}
	if len(pending) == 0 {
		c.log.Info("message taken over by another consumer", "queue", queue, "message_id", id)
		return false
	}

	err = c.client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   StreamKey(topic),
		Group:    queue,
		Consumer: c.opts.Consumer,
		MinIdle:  0,
		Messages: []string{id},
	}).Err()
	if err != nil && ctx.Err() == nil {
		c.log.Warn("claim renewal failed", "queue", queue, "message_id", id, "error", err)
	}
	return ctx.Err() == nil
}

func (c *Consumer) dispatch(ctx context.Context, topic string, env events.Envelope, timeout time.Duration) (err error) {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	hctx = context.WithValue(hctx, logger.EventIDKey, env.EventID.String())

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return c.router.Dispatch(hctx, topic, env)
}

func (c *Consumer) ack(ctx context.Context, topic, id string) {
	queue := QueueName(c.opts.Service, topic)
	if err := c.client.XAck(ctx, StreamKey(topic), queue, id).Err(); err != nil {
		c.log.Warn("ack failed", "queue", queue, "message_id", id, "error", err)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, topic string, msg redis.XMessage, raw, eventID string, attempts int, cause error) {
	queue := QueueName(c.opts.Service, topic)

	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterKey(queue),
		Values: map[string]any{
			fieldMessageID: msg.ID,
			fieldEventID:   eventID,
			fieldEnvelope:  raw,
			fieldError:     cause.Error(),
			fieldAttempts:  attempts,
			fieldFailedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		// Not acknowledged: the message stays pending and is retried after reclaim.
		c.log.Error("dead-letter write failed", "queue", queue, "message_id", msg.ID, "error", err)
		return
	}

	c.log.DeadLettered(queue, msg.ID, eventID, attempts, cause)
	c.ack(ctx, topic, msg.ID)
}

// DeadLetter is a message a queue gave up on.
type DeadLetter struct {
	ID        string
	MessageID string
	EventID   string
	Envelope  string
	Error     string
	Attempts  int
}

// DeadLetters returns up to n dead-lettered messages of topic, oldest first.
func (c *Consumer) DeadLetters(ctx context.Context, topic string, n int64) ([]DeadLetter, error) {
	queue := QueueName(c.opts.Service, topic)
	msgs, err := c.client.XRangeN(ctx, DeadLetterKey(queue), "-", "+", n).Result()
	if err != nil {
		return nil, err
	}

	letters := make([]DeadLetter, 0, len(msgs))
	for _, msg := range msgs {
		attempts, _ := strconv.Atoi(stringValue(msg.Values[fieldAttempts]))
		letters = append(letters, DeadLetter{
			ID:        msg.ID,
			MessageID: stringValue(msg.Values[fieldMessageID]),
			EventID:   stringValue(msg.Values[fieldEventID]),
			Envelope:  stringValue(msg.Values[fieldEnvelope]),
			Error:     stringValue(msg.Values[fieldError]),
			Attempts:  attempts,
		})
	}
	return letters, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PolicyFromConfig converts a configured policy. Zero fields fall back to
// DefaultPolicy when the consumer applies it.
func PolicyFromConfig(p config.ConsumerPolicy) Policy {
	return Policy{
		MaxAttempts:    p.MaxAttempts,
		HandlerTimeout: p.HandlerTimeout,
		BaseBackoff:    p.BaseBackoff,
		MaxBackoff:     p.MaxBackoff,
	}
}

// TopicPoliciesFromConfig converts per-topic overrides.
func TopicPoliciesFromConfig(in map[string]config.ConsumerPolicy) map[string]Policy {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]Policy, len(in))
	for topic, p := range in {
		out[topic] = PolicyFromConfig(p)
	}
	return out
}
