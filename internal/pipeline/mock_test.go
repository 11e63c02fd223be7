package pipeline

import (
	"context"

	"github.com/mobiscope/traffic-cli/internal/model"
)

// analyzedKey identifies one analyzed marker.
type analyzedKey struct {
	requestID     int64
	source, model string
}

// fakeStore is an in-memory store.Store for orchestrator tests.
type fakeStore struct {
	requests    []*model.Request
	matched     []*model.Request
	appRequests []*model.Request

	links       map[int64]int64
	analyzed    map[analyzedKey]bool
	privateData map[int64][]model.PrivateData

	fetchCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		links:       map[int64]int64{},
		analyzed:    map[analyzedKey]bool{},
		privateData: map[int64][]model.PrivateData{},
	}
}

func (f *fakeStore) ExperimentRequests(context.Context, int64) ([]*model.Request, error) {
	f.fetchCalls = append(f.fetchCalls, "all")
	return f.requests, nil
}

func (f *fakeStore) ExperimentMatchedRequests(context.Context, int64) ([]*model.Request, error) {
	f.fetchCalls = append(f.fetchCalls, "matched")
	return f.matched, nil
}

func (f *fakeStore) ExperimentAppRequests(context.Context, int64, []string) ([]*model.Request, error) {
	f.fetchCalls = append(f.fetchCalls, "apps")
	return f.appRequests, nil
}

func (f *fakeStore) ExperimentRequestsForMatching(context.Context, int64) ([]*model.Request, error) {
	f.fetchCalls = append(f.fetchCalls, "matching")
	return f.requests, nil
}

func (f *fakeStore) InsertNormalizedRequests(_ context.Context, links []model.NormalizedRequest) (int64, error) {
	var inserted int64
	for _, l := range links {
		if _, exists := f.links[l.RequestID]; !exists {
			f.links[l.RequestID] = l.NormalizedID
			inserted++
		}
	}
	return inserted, nil
}

func (f *fakeStore) AnalyzedRequestIDs(_ context.Context, source, modelID string) ([]int64, error) {
	var ids []int64
	for k := range f.analyzed {
		if k.source == source && k.model == modelID {
			ids = append(ids, k.requestID)
		}
	}
	return ids, nil
}

func (f *fakeStore) InsertPrivateData(_ context.Context, requestID int64, data []model.PrivateData) (int64, error) {
	var inserted int64
	for _, d := range data {
		exists := false
		for _, have := range f.privateData[requestID] {
			if have.SameValue(d) {
				exists = true
				break
			}
		}
		if !exists {
			f.privateData[requestID] = append(f.privateData[requestID], d)
			inserted++
		}
	}
	return inserted, nil
}

func (f *fakeStore) MarkRequestAnalyzed(_ context.Context, requestID int64, source, modelID string) error {
	f.analyzed[analyzedKey{requestID, source, modelID}] = true
	return nil
}

func (f *fakeStore) EnsureFilterList(context.Context, string) (int64, error) { return 1, nil }

func (f *fakeStore) SaveRequestMatches(context.Context, int64, []*model.Request) (int64, int64, error) {
	return 0, 0, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

// fakeDetector records prompts and replays canned findings.
type fakeDetector struct {
	findings map[string][]model.PrivateData
	err      error
	prompts  []string
}

func (f *fakeDetector) Detect(_ context.Context, prompt string) ([]model.PrivateData, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return f.findings[prompt], nil
}
