package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maxpert/provision/cfg"
	"github.com/maxpert/provision/encoding"
	"github.com/maxpert/provision/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default topic when a sink configures none
	DefaultTopic = "provision.events"
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 5 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of attempts before giving up on one event
	DefaultMaxRetries = 5
)

// Target is one configured destination with its topic and filter
type Target struct {
	Name   string
	Topic  string
	Sink   Sink
	Filter Filter
}

// Notifier fans completion events out to every configured target
type Notifier struct {
	targets []Target

	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryMultiplier float64
	MaxRetries      int

	mu sync.Mutex
}

// New creates a notifier with one target per sink configuration. A nil
// notifier (no configurations) is valid and publishes nothing.
func New(configs []cfg.NotifyConfiguration) (*Notifier, error) {
	if len(configs) == 0 {
		return nil, nil
	}

	targets := make([]Target, 0, len(configs))
	for _, config := range configs {
		t, err := newTarget(config)
		if err != nil {
			for _, created := range targets {
				created.Sink.Close()
			}
			return nil, fmt.Errorf("failed to add sink %q: %w", config.Name, err)
		}
		targets = append(targets, t)
	}

	log.Info().
		Int("sinks", len(targets)).
		Msg("Completion notifier initialized")

	return NewNotifier(targets...), nil
}

// NewNotifier creates a notifier over already constructed targets
func NewNotifier(targets ...Target) *Notifier {
	for i := range targets {
		if targets[i].Topic == "" {
			targets[i].Topic = DefaultTopic
		}
	}
	return &Notifier{
		targets:         targets,
		RetryInitial:    DefaultRetryInitial,
		RetryMax:        DefaultRetryMax,
		RetryMultiplier: DefaultRetryMultiplier,
		MaxRetries:      DefaultMaxRetries,
	}
}

func newTarget(config cfg.NotifyConfiguration) (Target, error) {
	snk, err := createSink(config)
	if err != nil {
		return Target{}, fmt.Errorf("failed to create sink: %w", err)
	}

	filter, err := NewGlobFilter(config.FilterTables)
	if err != nil {
		snk.Close()
		return Target{}, fmt.Errorf("failed to create filter: %w", err)
	}

	return Target{
		Name:   config.Name,
		Topic:  config.Topic,
		Sink:   snk,
		Filter: filter,
	}, nil
}

// Publish delivers event to every target whose filter matches. Delivery is
// sequential so per-sink ordering follows call order. The returned error
// joins the failures of all targets.
func (n *Notifier) Publish(ctx context.Context, event Event) error {
	if n == nil {
		return nil
	}

	data, err := encoding.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	for _, t := range n.targets {
		if t.Filter != nil && !t.Filter.Match(event.Table) {
			continue
		}

		if err := n.publishWithRetry(ctx, t, event.Key(), data); err != nil {
			telemetry.NotificationsTotal.With(t.Name, "failed").Inc()
			log.Error().
				Err(err).
				Str("sink", t.Name).
				Str("kind", string(event.Kind)).
				Str("key", event.Key()).
				Msg("Failed to publish notification")
			errs = append(errs, fmt.Errorf("sink %s: %w", t.Name, err))
			continue
		}

		telemetry.NotificationsTotal.With(t.Name, "success").Inc()
		log.Debug().
			Str("sink", t.Name).
			Str("topic", t.Topic).
			Str("kind", string(event.Kind)).
			Str("key", event.Key()).
			Msg("Published notification")
	}
	return errors.Join(errs...)
}

// publishWithRetry publishes data with exponential backoff retry
// Returns error if max retries exhausted or ctx is done
func (n *Notifier) publishWithRetry(ctx context.Context, t Target, key string, data []byte) error {
	delay := n.RetryInitial
	attempts := 0

	for {
		err := t.Sink.Publish(t.Topic, key, data)
		if err == nil {
			return nil
		}

		attempts++
		if n.MaxRetries > 0 && attempts >= n.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", n.MaxRetries, t.Topic, err)
		}

		log.Warn().
			Err(err).
			Str("sink", t.Name).
			Str("topic", t.Topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish notification, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("stopped during retry: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * n.RetryMultiplier)
		if delay > n.RetryMax {
			delay = n.RetryMax
		}
	}
}

// Close closes every sink
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	for _, t := range n.targets {
		if err := t.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", t.Name, err))
		}
	}
	n.targets = nil
	return errors.Join(errs...)
}

// createSink creates a sink based on the configuration
func createSink(config cfg.NotifyConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.NotifyConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}
