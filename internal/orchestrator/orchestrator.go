// Package orchestrator implements the concurrent fan-out over source
// adapters and the quorum policy that decides whether a report is usable.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbaxter/synapse/internal/source"
	"github.com/mbaxter/synapse/internal/types"
)

// Config holds orchestrator tunables.
type Config struct {
	// GlobalTimeout bounds the whole report build. Stragglers past this
	// deadline are cancelled, not awaited.
	GlobalTimeout time.Duration

	// QuorumFraction is the minimum fraction of adapters that must
	// succeed for the report to pass downstream.
	QuorumFraction float64
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		GlobalTimeout:  30 * time.Second,
		QuorumFraction: 0.5,
	}
}

// Orchestrator dispatches every adapter concurrently and assembles an
// IntelligenceReport from whatever completed inside the global budget.
// Graceful degradation with a hard floor: optional failures are tolerated
// up to the quorum fraction, critical failures never are.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator. Configuration is explicit; there is no
// ambient global state.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.GlobalTimeout <= 0 {
		return nil, fmt.Errorf("global timeout must be positive")
	}
	if cfg.QuorumFraction < 0 || cfg.QuorumFraction > 1 {
		return nil, fmt.Errorf("quorum fraction must be in [0,1], got %v", cfg.QuorumFraction)
	}
	return &Orchestrator{cfg: cfg}, nil
}

// BuildReport fans out to every adapter concurrently, bounds each call by
// min(adapter timeout, remaining global budget), and collects results as
// they complete. Adapter failures are captured as marker records, never
// propagated as errors. The only error return is quorum failure (or
// caller cancellation before any work happened).
func (o *Orchestrator) BuildReport(ctx context.Context, requestID, query string, adapters []source.Adapter) (*types.IntelligenceReport, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters provided for request %s", requestID)
	}

	start := time.Now()
	deadline := start.Add(o.cfg.GlobalTimeout)

	gctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var (
		mu      sync.Mutex
		records []*types.SourceRecord
	)
	appendRecord := func(r *types.SourceRecord) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(gctx)
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			appendRecord(o.fetchOne(gctx, a, query, deadline))
			// Failures are values in the report; never fail the group.
			return nil
		})
	}
	_ = g.Wait()

	// Stable record order regardless of completion order.
	sort.Slice(records, func(i, j int) bool {
		return records[i].SourceID < records[j].SourceID
	})

	report := &types.IntelligenceReport{
		RequestID:        requestID,
		Records:          records,
		RequestedSources: len(adapters),
		Elapsed:          time.Since(start),
	}
	var failedCritical []string
	criticalByName := make(map[string]bool, len(adapters))
	for _, a := range adapters {
		criticalByName[a.Name()] = a.Criticality() == types.CriticalityCritical
	}
	for _, r := range records {
		if r.Succeeded {
			report.SucceededCount++
		} else {
			report.FailedCount++
			if criticalByName[r.SourceID] {
				failedCritical = append(failedCritical, r.SourceID)
			}
		}
	}

	fraction := float64(report.SucceededCount) / float64(report.RequestedSources)
	if len(failedCritical) > 0 || fraction < o.cfg.QuorumFraction {
		sort.Strings(failedCritical)
		return nil, &types.QuorumError{
			Requested:      report.RequestedSources,
			Succeeded:      report.SucceededCount,
			QuorumFraction: o.cfg.QuorumFraction,
			FailedCritical: failedCritical,
		}
	}

	return report, nil
}

// fetchOne runs a single adapter call bounded by the tighter of the
// adapter's own timeout and the remaining global budget. It always
// returns a record: content on success, a failure marker otherwise.
func (o *Orchestrator) fetchOne(ctx context.Context, a source.Adapter, query string, deadline time.Time) *types.SourceRecord {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return types.NewFailedRecord(a.Name(), string(types.AdapterTimeout), time.Now().UTC())
	}

	budget := a.Timeout()
	if budget <= 0 || budget > remaining {
		budget = remaining
	}

	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	rec, err := a.Fetch(actx, query)
	if err != nil {
		return types.NewFailedRecord(a.Name(), string(classify(err)), time.Now().UTC())
	}
	if rec == nil {
		return types.NewFailedRecord(a.Name(), string(types.AdapterOther), time.Now().UTC())
	}
	return rec
}

// classify maps a fetch error to its taxonomy kind.
func classify(err error) types.AdapterErrorKind {
	var ae *types.AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.AdapterTimeout
	}
	if errors.Is(err, context.Canceled) {
		return types.AdapterTimeout
	}
	return types.AdapterOther
}
