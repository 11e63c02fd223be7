package store

import (
	"context"

	"github.com/mobiscope/traffic-cli/internal/model"
)

// Store defines the persistence surface of the analysis pipelines. All
// insert operations are idempotent (insert-if-absent) and report how many
// rows were actually newly written.
type Store interface {
	// Experiment requests, ordered by request id.
	ExperimentRequests(ctx context.Context, experimentID int64) ([]*model.Request, error)
	ExperimentMatchedRequests(ctx context.Context, experimentID int64) ([]*model.Request, error)
	ExperimentAppRequests(ctx context.Context, experimentID int64, appIDs []string) ([]*model.Request, error)
	// ExperimentRequestsForMatching omits request bodies; filter-list
	// matching only needs the URL parts.
	ExperimentRequestsForMatching(ctx context.Context, experimentID int64) ([]*model.Request, error)

	// Normalization links.
	InsertNormalizedRequests(ctx context.Context, links []model.NormalizedRequest) (int64, error)

	// LLM analysis bookkeeping.
	AnalyzedRequestIDs(ctx context.Context, source, model string) ([]int64, error)
	InsertPrivateData(ctx context.Context, requestID int64, data []model.PrivateData) (int64, error)
	MarkRequestAnalyzed(ctx context.Context, requestID int64, source, model string) error

	// Filter-list matching.
	EnsureFilterList(ctx context.Context, name string) (int64, error)
	SaveRequestMatches(ctx context.Context, listID int64, requests []*model.Request) (inserted, updated int64, err error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
