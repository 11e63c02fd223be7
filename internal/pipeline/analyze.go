// Package pipeline drives the offline batch analysis of captured app
// traffic: normalization of requests into equivalence classes and the
// incremental, idempotent classification loop over their representatives.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mobiscope/traffic-cli/internal/model"
	"github.com/mobiscope/traffic-cli/internal/store"
)

// Detector classifies one prompt into private-data findings.
type Detector interface {
	Detect(ctx context.Context, prompt string) ([]model.PrivateData, error)
}

// Analyzer runs the LLM analysis batch for one experiment. Items are
// processed strictly sequentially; each representative's findings and its
// analyzed marker are persisted before the next item starts, so a killed
// process loses at most the in-flight item.
type Analyzer struct {
	store    store.Store
	detector Detector
	source   string
	model    string
}

// NewAnalyzer creates an Analyzer. Source and model must match the tags the
// detector stamps on its findings; they key the analyzed markers.
func NewAnalyzer(st store.Store, detector Detector, source, modelID string) *Analyzer {
	return &Analyzer{store: st, detector: detector, source: source, model: modelID}
}

// Params selects what one analysis run covers.
type Params struct {
	ExperimentID int64
	BatchSize    int
	Mode         model.MatchMode
	// OnlyApps restricts analysis to requests from these app ids. Ignored
	// in tracking mode, which takes precedence.
	OnlyApps []string
}

// Run executes one batch: fetch, normalize, persist links, skip
// already-analyzed representatives, classify up to BatchSize remaining ones
// and persist their deduplicated findings together with analyzed markers.
// Re-running with unchanged inputs is a no-op that inserts nothing.
func (a *Analyzer) Run(ctx context.Context, p Params) error {
	log := zap.L().With(
		zap.String("run_id", uuid.NewString()),
		zap.Int64("experiment_id", p.ExperimentID),
		zap.String("match_mode", string(p.Mode)),
		zap.String("source", a.source),
		zap.String("model", a.model),
	)
	log.Info("analyzing experiment requests", zap.Int("batch_size", p.BatchSize))

	requests, err := a.fetchRequests(ctx, p)
	if err != nil {
		return err
	}
	log.Info("fetched requests", zap.Int("requests", len(requests)))

	groups := Normalize(requests)
	log.Info("normalized requests", zap.Int("groups", len(groups)))

	links := Links(groups)
	newLinks, err := a.store.InsertNormalizedRequests(ctx, links)
	if err != nil {
		return err
	}
	log.Info("saved normalization links",
		zap.Int("links", len(links)),
		zap.Int64("newly_inserted", newLinks),
	)

	remaining, err := a.remainingRepresentatives(ctx, groups)
	if err != nil {
		return err
	}
	log.Info("representatives left to analyze", zap.Int("remaining", len(remaining)))

	batch := remaining
	if p.BatchSize > 0 && len(batch) > p.BatchSize {
		batch = batch[:p.BatchSize]
	}

	for _, rep := range batch {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: run canceled")
		}
		if err := a.analyzeRepresentative(ctx, rep, log); err != nil {
			return err
		}
	}

	log.Info("batch complete", zap.Int("analyzed", len(batch)))
	return nil
}

func (a *Analyzer) fetchRequests(ctx context.Context, p Params) ([]*model.Request, error) {
	switch {
	case p.Mode == model.MatchModeTracking:
		return a.store.ExperimentMatchedRequests(ctx, p.ExperimentID)
	case len(p.OnlyApps) > 0:
		return a.store.ExperimentAppRequests(ctx, p.ExperimentID, p.OnlyApps)
	default:
		return a.store.ExperimentRequests(ctx, p.ExperimentID)
	}
}

// remainingRepresentatives drops representatives already analyzed for this
// source/model pair, preserving input order.
func (a *Analyzer) remainingRepresentatives(ctx context.Context, groups []Group) ([]*model.Request, error) {
	analyzedIDs, err := a.store.AnalyzedRequestIDs(ctx, a.source, a.model)
	if err != nil {
		return nil, err
	}
	analyzed := make(map[int64]bool, len(analyzedIDs))
	for _, id := range analyzedIDs {
		analyzed[id] = true
	}

	var remaining []*model.Request
	for _, g := range groups {
		if !analyzed[g.Normal.ID] {
			remaining = append(remaining, g.Normal)
		}
	}
	return remaining, nil
}

// analyzeRepresentative classifies one representative's query string and
// body, deduplicates the findings and persists them together with the
// analyzed marker. A classification failure yields an empty result and still
// marks the item analyzed; an unreliable classifier must not wedge the
// batch on one request.
func (a *Analyzer) analyzeRepresentative(ctx context.Context, rep *model.Request, log *zap.Logger) error {
	itemLog := log.With(zap.Int64("request_id", rep.ID))

	var raw []model.PrivateData

	if query, ok := rep.QueryString(); ok {
		raw = append(raw, a.detect(ctx, query, "query", itemLog)...)
	} else {
		itemLog.Debug("request has no query string")
	}

	if rep.Content != "" {
		raw = append(raw, a.detect(ctx, rep.Content, "body", itemLog)...)
	} else {
		itemLog.Debug("request has no body")
	}

	findings := model.Deduplicate(raw)
	itemLog.Info("classified request",
		zap.Int("raw_findings", len(raw)),
		zap.Int("deduplicated_findings", len(findings)),
	)

	inserted, err := a.store.InsertPrivateData(ctx, rep.ID, findings)
	if err != nil {
		return err
	}
	if err := a.store.MarkRequestAnalyzed(ctx, rep.ID, a.source, a.model); err != nil {
		return err
	}
	itemLog.Debug("persisted findings", zap.Int64("newly_inserted", inserted))
	return nil
}

// detect wraps one classifier call. Terminal classifier errors degrade to an
// empty result for this item; only the store decides batch-fatal.
func (a *Analyzer) detect(ctx context.Context, prompt, kind string, log *zap.Logger) []model.PrivateData {
	findings, err := a.detector.Detect(ctx, prompt)
	if err != nil {
		log.Error("classification failed, treating as no result",
			zap.String("content_kind", kind),
			zap.Error(err),
		)
		return nil
	}
	return findings
}
