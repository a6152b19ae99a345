// Package resources assembles read-only snapshots of the bioreactor system:
// experiments and workers from the backend, and the static job-schema table.
//
// Snapshots are recomputed on every request — freshness over efficiency —
// and aggregation failures are partial: whatever succeeded is returned
// alongside explicit failure markers, so a client can distinguish "no
// experiments" from "experiments unavailable".
package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/piolab/piobridge/pkg/backend"
	"github.com/piolab/piobridge/pkg/jobschema"
)

// Kind identifies a resource snapshot.
type Kind string

const (
	KindExperiments Kind = "experiments"
	KindWorkers     Kind = "workers"
	KindJobSchemas  Kind = "job_schemas"
)

// Backend listing paths. Job control uses pkg/address; these are the only
// other paths the bridge touches.
const (
	experimentsPath = "/experiments"
	workersPath     = "/workers"
)

// FetchFailure marks one failed sub-fetch inside an aggregation.
type FetchFailure struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Snapshot is a point-in-time view of one resource kind. Items preserve the
// backend's order. Failures is non-empty when the fetch (or part of it)
// failed; Items then carries whatever was still obtainable.
type Snapshot struct {
	Kind      Kind             `json:"kind"`
	Items     []map[string]any `json:"items"`
	FetchedAt time.Time        `json:"fetched_at"`
	Failures  []FetchFailure   `json:"failures,omitempty"`
}

// Overview is the combined aggregation across all kinds. Each sub-fetch
// fails independently.
type Overview struct {
	Experiments Snapshot  `json:"experiments"`
	Workers     Snapshot  `json:"workers"`
	JobSchemas  Snapshot  `json:"job_schemas"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Fetcher issues one normalized backend request; *backend.Client satisfies it.
type Fetcher interface {
	Request(ctx context.Context, method, path string, body any) backend.OperationResult
}

// Config configures the aggregator.
type Config struct {
	// UnitFilter optionally restricts the workers snapshot to units whose
	// names match this glob (doublestar syntax). Empty means all.
	UnitFilter string
}

// Aggregator builds resource snapshots. Stateless apart from its
// collaborators; safe for concurrent use.
type Aggregator struct {
	fetcher    Fetcher
	schemas    *jobschema.Table
	unitFilter string
	logger     *zap.Logger
}

// New creates an Aggregator. A nil logger disables logging.
func New(fetcher Fetcher, schemas *jobschema.Table, cfg Config, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		fetcher:    fetcher,
		schemas:    schemas,
		unitFilter: cfg.UnitFilter,
		logger:     logger,
	}
}

// Experiments fetches the experiment listing.
func (a *Aggregator) Experiments(ctx context.Context) Snapshot {
	return a.fetchListing(ctx, KindExperiments, experimentsPath)
}

// Workers fetches the unit listing, filtered by the unit glob when one is
// configured.
func (a *Aggregator) Workers(ctx context.Context) Snapshot {
	snap := a.fetchListing(ctx, KindWorkers, workersPath)
	if a.unitFilter == "" {
		return snap
	}

	filtered := make([]map[string]any, 0, len(snap.Items))
	for _, item := range snap.Items {
		if name, ok := workerName(item); ok {
			if match, err := doublestar.Match(a.unitFilter, name); err == nil && !match {
				continue
			}
		}
		filtered = append(filtered, item)
	}
	snap.Items = filtered
	return snap
}

// JobSchemas returns the static schema table as a snapshot. This is local
// data describing the jobs the bridge can drive; it never hits the backend.
func (a *Aggregator) JobSchemas() Snapshot {
	items := make([]map[string]any, 0, len(a.schemas.Schemas))
	for _, s := range a.schemas.Schemas {
		// Round-trip through JSON to get the plain-map item shape shared
		// by all snapshot kinds.
		encoded, err := json.Marshal(s)
		if err != nil {
			continue
		}
		var item map[string]any
		if err := json.Unmarshal(encoded, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return Snapshot{Kind: KindJobSchemas, Items: items, FetchedAt: time.Now().UTC()}
}

// Overview fetches workers and experiments concurrently and combines them
// with the schema table. Sub-fetch failures never abort the aggregation.
func (a *Aggregator) Overview(ctx context.Context) Overview {
	var (
		wg          sync.WaitGroup
		experiments Snapshot
		workers     Snapshot
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		experiments = a.Experiments(ctx)
	}()
	go func() {
		defer wg.Done()
		workers = a.Workers(ctx)
	}()
	wg.Wait()

	return Overview{
		Experiments: experiments,
		Workers:     workers,
		JobSchemas:  a.JobSchemas(),
		FetchedAt:   time.Now().UTC(),
	}
}

func (a *Aggregator) fetchListing(ctx context.Context, kind Kind, path string) Snapshot {
	snap := Snapshot{Kind: kind, Items: []map[string]any{}, FetchedAt: time.Now().UTC()}

	result := a.fetcher.Request(ctx, http.MethodGet, path, nil)
	if !result.Success {
		a.logger.Warn("resource fetch failed",
			zap.String("kind", string(kind)),
			zap.String("code", result.Code),
			zap.String("message", result.Message))
		snap.Failures = append(snap.Failures, FetchFailure{
			Kind:    kind,
			Code:    backend.CodeResourceUnavailable,
			Message: failureMessage(result),
		})
		return snap
	}

	items, err := decodeListing(result.RawBody)
	if err != nil {
		snap.Failures = append(snap.Failures, FetchFailure{
			Kind:    kind,
			Code:    backend.CodeResourceUnavailable,
			Message: "backend returned an unparseable listing: " + err.Error(),
		})
		return snap
	}

	snap.Items = items
	return snap
}

// decodeListing parses a backend listing body. The API returns a JSON array
// of objects; a single object is tolerated and wrapped as a one-item list.
func decodeListing(body string) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal([]byte(body), &items); err == nil {
		if items == nil {
			items = []map[string]any{}
		}
		return items, nil
	}

	var single map[string]any
	if err := json.Unmarshal([]byte(body), &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

// failureMessage folds the underlying taxonomy code into the marker message
// so callers see both the aggregation-level and transport-level cause.
func failureMessage(result backend.OperationResult) string {
	if result.Code == "" {
		return result.Message
	}
	return result.Code + ": " + result.Message
}

// workerName extracts a unit name from a worker listing item. The control
// API uses pioreactor_unit; name and unit are accepted as fallbacks.
func workerName(item map[string]any) (string, bool) {
	for _, key := range []string{"pioreactor_unit", "name", "unit"} {
		if v, ok := item[key].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
