package adblock

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mobiscope/traffic-cli/internal/model"
	"github.com/mobiscope/traffic-cli/internal/store"
)

// Matcher classifies every request of an experiment against one filter list
// and persists the verdicts under that list's id.
type Matcher struct {
	store    store.Store
	rules    *RuleSet
	listName string
}

// NewMatcher creates a Matcher for the named filter list. The list row is
// created on first use.
func NewMatcher(st store.Store, rules *RuleSet, listName string) *Matcher {
	return &Matcher{store: st, rules: rules, listName: listName}
}

// Run matches all requests of the experiment and saves the results.
// Re-running only touches rows whose verdict changed, so a list update can be
// replayed over an experiment that was already matched.
func (m *Matcher) Run(ctx context.Context, experimentID int64) error {
	log := zap.L().With(
		zap.String("run_id", uuid.NewString()),
		zap.Int64("experiment_id", experimentID),
		zap.String("filter_list", m.listName),
	)

	listID, err := m.store.EnsureFilterList(ctx, m.listName)
	if err != nil {
		return err
	}

	requests, err := m.store.ExperimentRequestsForMatching(ctx, experimentID)
	if err != nil {
		return err
	}
	log.Info("matching requests against filter list", zap.Int("requests", len(requests)))

	blocked := m.matchAll(requests)

	hitRate := 0.0
	if len(requests) > 0 {
		hitRate = float64(blocked) / float64(len(requests)) * 100
	}
	log.Info("matched requests",
		zap.Int("blocked", blocked),
		zap.Float64("hit_rate_pct", hitRate),
	)

	inserted, updated, err := m.store.SaveRequestMatches(ctx, listID, requests)
	if err != nil {
		return err
	}
	log.Info("saved request matches",
		zap.Int64("newly_inserted", inserted),
		zap.Int64("updated", updated),
	)
	return nil
}

// matchAll sets the match verdict on every request and returns how many were
// blocked.
func (m *Matcher) matchAll(requests []*model.Request) int {
	blocked := 0
	for _, r := range requests {
		isBlocked := m.rules.ShouldBlock(r.URL())
		r.SetMatch(isBlocked)
		if isBlocked {
			blocked++
		}
	}
	return blocked
}
