// Package source defines the adapter layer over external data providers.
//
// Every provider implements the single Adapter capability interface and is
// registered with a Registry. New providers are additive registry entries,
// never subclasses of a shared base.
package source

import (
	"context"
	"time"

	"github.com/mbaxter/synapse/internal/types"
)

// Adapter is the uniform fetch contract for one external provider.
// Implementations are expected to be network-bound and must honor context
// cancellation.
type Adapter interface {
	// Name returns the stable provider identifier (used as SourceID on
	// fetched records and in provenance tags).
	Name() string

	// Criticality declares whether a failure of this adapter aborts the
	// report build or merely counts against the quorum.
	Criticality() types.Criticality

	// Timeout is the per-call budget for this provider. The orchestrator
	// bounds each call by min(Timeout, remaining global budget).
	Timeout() time.Duration

	// Fetch retrieves content for the query. On success it returns a
	// record with SourceID, RawContent, and FetchedAt populated; the
	// orchestrator assigns nothing else. Failures are returned as errors
	// and converted to marker records by the orchestrator.
	Fetch(ctx context.Context, query string) (*types.SourceRecord, error)
}

// Func adapts a plain function into an Adapter. Used heavily in tests and
// for in-process providers.
type Func struct {
	AdapterName string
	Critical    types.Criticality
	CallTimeout time.Duration
	FetchFunc   func(ctx context.Context, query string) (*types.SourceRecord, error)
}

func (f *Func) Name() string                   { return f.AdapterName }
func (f *Func) Criticality() types.Criticality { return f.Critical }
func (f *Func) Timeout() time.Duration         { return f.CallTimeout }

func (f *Func) Fetch(ctx context.Context, query string) (*types.SourceRecord, error) {
	return f.FetchFunc(ctx, query)
}
