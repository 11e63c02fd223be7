package pipeline

import "github.com/mobiscope/traffic-cli/internal/model"

// Group is one normalization equivalence class: a representative request and
// every later request structurally equal to it. Members never contain the
// representative itself.
type Group struct {
	Normal  *model.Request
	Members []*model.Request
}

// Size returns the total number of requests in the group including the
// representative.
func (g Group) Size() int {
	return len(g.Members) + 1
}

// Normalize partitions requests into groups of structurally equal requests
// (same scheme, host, path and content). The first request seen in input
// order becomes the representative of its group, so callers must feed
// requests in a stable order for reproducible grouping. Each incoming
// request is compared against existing representatives in insertion order;
// content bodies can be large and irregular, so no hashing shortcut is
// taken. O(n·g) where g is the number of distinct groups, which stays small
// because most traffic collapses into a few template shapes.
func Normalize(requests []*model.Request) []Group {
	var groups []Group
	for _, r := range requests {
		matched := false
		for i := range groups {
			if groups[i].Normal.SameValues(r) {
				groups[i].Members = append(groups[i].Members, r)
				matched = true
				break
			}
		}
		if !matched {
			groups = append(groups, Group{Normal: r})
		}
	}
	return groups
}

// Links flattens groups into normalization link rows: a self-link for every
// representative (including singletons) plus one link per member pointing at
// its representative. The result covers every input request exactly once.
func Links(groups []Group) []model.NormalizedRequest {
	var links []model.NormalizedRequest
	for _, g := range groups {
		links = append(links, model.NormalizedRequest{
			RequestID:    g.Normal.ID,
			NormalizedID: g.Normal.ID,
		})
		for _, m := range g.Members {
			links = append(links, model.NormalizedRequest{
				RequestID:    m.ID,
				NormalizedID: g.Normal.ID,
			})
		}
	}
	return links
}
