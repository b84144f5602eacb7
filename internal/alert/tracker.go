package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"rwaScope/internal/metrics"
	"rwaScope/internal/model"
)

// Tracker connects the ingestion path to the evaluator. Every stored
// domain event nudges an evaluation of its network; a timer additionally
// re-evaluates all known networks for rules that drift with time alone.
type Tracker struct {
	aggregator *metrics.Aggregator
	evaluator  *Evaluator
	sinks      []Sink
	interval   time.Duration
	logger     *zap.Logger

	trigger chan string

	mu       sync.Mutex
	networks map[string]struct{}
}

func NewTracker(aggregator *metrics.Aggregator, evaluator *Evaluator, interval time.Duration, logger *zap.Logger, sinks ...Sink) *Tracker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		aggregator: aggregator,
		evaluator:  evaluator,
		sinks:      sinks,
		interval:   interval,
		logger:     logger,
		trigger:    make(chan string, 64),
		networks:   make(map[string]struct{}),
	}
}

// Publish receives a stored domain event from the ingestor. It never
// blocks: when the evaluation queue is full the periodic pass covers
// the miss.
func (t *Tracker) Publish(dec model.Decoded) {
	t.Notify(dec.Provenance.Network)
}

// Notify requests an evaluation for a network.
func (t *Tracker) Notify(network string) {
	if network == "" {
		return
	}
	t.mu.Lock()
	t.networks[network] = struct{}{}
	t.mu.Unlock()

	select {
	case t.trigger <- network:
	default:
	}
}

// Run evaluates on demand and on the timer until the context ends.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case network := <-t.trigger:
			t.evaluate(ctx, network)
		case <-ticker.C:
			for _, network := range t.knownNetworks() {
				t.evaluate(ctx, network)
			}
		}
	}
}

func (t *Tracker) knownNetworks() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.networks))
	for network := range t.networks {
		out = append(out, network)
	}
	return out
}

func (t *Tracker) evaluate(ctx context.Context, network string) {
	m, err := t.aggregator.ComputeNetwork(ctx, network)
	if err != nil {
		t.logger.Warn("metrics computation failed",
			zap.String("network", network), zap.Error(err))
		return
	}
	for _, a := range t.evaluator.Evaluate(ctx, m) {
		metrics.IncAlert(string(a.Severity))
		for _, sink := range t.sinks {
			sink.Deliver(a)
		}
	}
}
