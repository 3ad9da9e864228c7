// Package pipeline wires the full report-to-artifact flow: fan-out,
// assembly, vectorization, connection discovery, and synthesis.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbaxter/synapse/internal/assemble"
	"github.com/mbaxter/synapse/internal/discover"
	"github.com/mbaxter/synapse/internal/orchestrator"
	"github.com/mbaxter/synapse/internal/reportcache"
	"github.com/mbaxter/synapse/internal/source"
	"github.com/mbaxter/synapse/internal/synth"
	"github.com/mbaxter/synapse/internal/types"
	"github.com/mbaxter/synapse/internal/vectorize"
)

// Deps holds the constructed pipeline stages. Reports may be nil to run
// without a report cache.
type Deps struct {
	Adapters     []source.Adapter
	Orchestrator *orchestrator.Orchestrator
	Vectorizer   *vectorize.Vectorizer
	Engine       *discover.Engine
	Controller   *synth.Controller
	Reports      *reportcache.Cache

	// MaxConcurrent bounds simultaneous synthesis runs (default 4).
	MaxConcurrent int
}

// Pipeline drives a request through every stage.
type Pipeline struct {
	adapters      []source.Adapter
	orch          *orchestrator.Orchestrator
	vectorizer    *vectorize.Vectorizer
	engine        *discover.Engine
	controller    *synth.Controller
	reports       *reportcache.Cache
	maxConcurrent int
}

// New validates the dependency set.
func New(deps Deps) (*Pipeline, error) {
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if deps.Vectorizer == nil {
		return nil, fmt.Errorf("vectorizer is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("discovery engine is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("synthesis controller is required")
	}
	maxConcurrent := deps.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Pipeline{
		adapters:      deps.Adapters,
		orch:          deps.Orchestrator,
		vectorizer:    deps.Vectorizer,
		engine:        deps.Engine,
		controller:    deps.Controller,
		reports:       deps.Reports,
		maxConcurrent: maxConcurrent,
	}, nil
}

// BuildReport runs the fan-out stage against the configured adapters.
func (p *Pipeline) BuildReport(ctx context.Context, requestID, query string) (*types.IntelligenceReport, error) {
	return p.orch.BuildReport(ctx, requestID, query, p.adapters)
}

// DiscoverConnections runs connection discovery on an embedded report.
func (p *Pipeline) DiscoverConnections(ctx context.Context, report *types.IntelligenceReport, query string, opts discover.Options) ([]*types.Connection, error) {
	return p.engine.Discover(ctx, report, query, opts)
}

// GenerateArtifact drives the retry controller to completion for one
// connection. It always returns an artifact.
func (p *Pipeline) GenerateArtifact(ctx context.Context, conn *types.Connection, recordsByID map[string]*types.SourceRecord, constraints synth.Constraints) (*types.CandidateArtifact, types.RetryState) {
	records := make([]*types.SourceRecord, 0, len(conn.ParticipantRecordIDs))
	for _, id := range conn.ParticipantRecordIDs {
		if rec, ok := recordsByID[id]; ok {
			records = append(records, rec)
		}
	}
	return p.controller.Produce(ctx, conn, records, constraints)
}

// Result is the output of a full pipeline run.
type Result struct {
	RequestID   string
	Report      *types.IntelligenceReport
	FromCache   bool
	Duplicates  int
	EmbedStats  vectorize.Stats
	Connections []*types.Connection
	Artifacts   []*types.CandidateArtifact
	Elapsed     time.Duration
}

// Run executes the full pipeline for one request. The returned error is
// non-nil only for quorum failure, embedding-provider failure, or
// cancellation; synthesis problems resolve to fallback artifacts.
func (p *Pipeline) Run(ctx context.Context, requestID, query string, opts discover.Options, constraints synth.Constraints) (*Result, error) {
	start := time.Now()
	result := &Result{RequestID: requestID}

	names := make([]string, 0, len(p.adapters))
	for _, a := range p.adapters {
		names = append(names, a.Name())
	}
	key := reportcache.RequestKey(query, names)

	if p.reports != nil {
		cached, ok, err := p.reports.Get(ctx, key)
		if err != nil {
			fmt.Printf("report cache lookup failed, rebuilding: %v\n", err)
		} else if ok {
			fmt.Printf("report cache hit for request %s\n", requestID)
			result.Report = cached
			result.FromCache = true
		}
	}

	if result.Report == nil {
		report, err := p.BuildReport(ctx, requestID, query)
		if err != nil {
			return nil, err
		}
		fmt.Printf("report %s: %d/%d sources succeeded in %v\n",
			requestID, report.SucceededCount, report.RequestedSources, report.Elapsed)

		assembled := assemble.Assemble(report)
		result.Duplicates = len(assembled.Duplicates)
		report = assembled.Report

		stats, err := p.vectorizer.EmbedReport(ctx, report)
		if err != nil {
			return nil, fmt.Errorf("vectorization failed: %w", err)
		}
		result.EmbedStats = stats
		fmt.Printf("embedded %d records (%d cache hits, %d failed) in %v\n",
			stats.Embedded, stats.CacheHits, stats.Failed, stats.Elapsed)

		if p.reports != nil {
			if err := p.reports.Put(ctx, key, report); err != nil {
				fmt.Printf("report cache store failed: %v\n", err)
			}
		}
		result.Report = report
	}

	connections, err := p.engine.Discover(ctx, result.Report, query, opts)
	if err != nil {
		return nil, err
	}
	result.Connections = connections
	fmt.Printf("discovered %d connections\n", len(connections))

	if len(connections) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	recordsByID := make(map[string]*types.SourceRecord, len(result.Report.Records))
	for _, r := range result.Report.Records {
		recordsByID[r.ID] = r
	}

	// Artifacts land at their connection's rank position, so output
	// order matches discovery order regardless of completion order.
	artifacts := make([]*types.CandidateArtifact, len(connections))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.maxConcurrent)
	for i, conn := range connections {
		i, conn := i, conn
		group.Go(func() error {
			art, _ := p.GenerateArtifact(groupCtx, conn, recordsByID, constraints)
			artifacts[i] = art
			return nil
		})
	}
	// Workers only ever return nil; Wait is a barrier.
	_ = group.Wait()

	result.Artifacts = artifacts
	result.Elapsed = time.Since(start)
	return result, nil
}
