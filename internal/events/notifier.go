package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/earshotfm/earshot/config"
)

// source is the slice of Consumer the notifier drives. It exists so delivery
// logic can be tested without a live Redis.
type source interface {
	Read(ctx context.Context, opts ...ConsumerOption) ([]Message, error)
	Stale(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
}

const notifierBatch = 32

// Notifier drains the event stream and delivers each envelope to a webhook
// sink. Failed deliveries stay pending and are retried once idle; envelopes
// that exhaust their attempts are acked and dropped with a log line.
type Notifier struct {
	src         source
	sinkURL     string
	client      *http.Client
	maxAttempts int
	minIdle     time.Duration
	timeout     time.Duration
	logger      *log.Logger
}

// NewNotifier builds a notifier reading from consumer and posting to the
// configured webhook URL.
func NewNotifier(consumer *Consumer, cfg config.NotifierConfig, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[NOTIFIER] ", log.LstdFlags)
	}
	return &Notifier{
		src:         consumer,
		sinkURL:     cfg.WebhookURL,
		client:      &http.Client{},
		maxAttempts: cfg.MaxAttempts,
		minIdle:     cfg.MinIdle,
		timeout:     cfg.DeliverTimeout,
		logger:      logger,
	}
}

// Run consumes until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	n.logger.Printf("notifier started, sink %s", n.sinkURL)
	for ctx.Err() == nil {
		n.cycle(ctx)
	}
	n.logger.Printf("notifier stopped")
}

func (n *Notifier) cycle(ctx context.Context) {
	msgs, err := n.src.Read(ctx, WithBlock(5*time.Second), WithCount(notifierBatch))
	if err != nil {
		if ctx.Err() == nil {
			n.logger.Printf("read events: %v", err)
			time.Sleep(time.Second)
		}
		return
	}
	n.dispatch(ctx, msgs)

	stale, err := n.src.Stale(ctx, n.minIdle, notifierBatch)
	if err != nil {
		if ctx.Err() == nil {
			n.logger.Printf("claim stale events: %v", err)
		}
		return
	}
	n.dispatch(ctx, stale)
}

func (n *Notifier) dispatch(ctx context.Context, msgs []Message) {
	for _, m := range msgs {
		if n.maxAttempts > 0 && m.Envelope.Attempt > n.maxAttempts {
			n.logger.Printf("dropping event %s (%s) after %d attempts", m.Envelope.EventID, m.Envelope.EventType, n.maxAttempts)
			deliveriesTotal.WithLabelValues("dropped").Inc()
			n.ack(ctx, m.ID)
			continue
		}
		if err := n.deliver(ctx, m.Envelope); err != nil {
			deliveriesTotal.WithLabelValues("failed").Inc()
			n.logger.Printf("deliver event %s (%s) attempt %d: %v", m.Envelope.EventID, m.Envelope.EventType, m.Envelope.Attempt, err)
			continue
		}
		deliveriesTotal.WithLabelValues("delivered").Inc()
		n.ack(ctx, m.ID)
	}
}

// deliver posts the envelope JSON to the sink with a per-attempt timeout.
func (n *Notifier) deliver(ctx context.Context, env Envelope) error {
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	dctx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(dctx, http.MethodPost, n.sinkURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) ack(ctx context.Context, id string) {
	if err := n.src.Ack(ctx, id); err != nil {
		n.logger.Printf("ack %s: %v", id, err)
	}
}
