package model

import "strings"

// MatchResult is the tri-state outcome of evaluating a request against an
// ad-block filter list. A request starts out unknown and is set exactly once
// per matching run.
type MatchResult int

const (
	MatchUnknown MatchResult = iota
	MatchBlocked
	MatchAllowed
)

// Request is a captured network request from a traffic-collection experiment.
// ID is the stable primary key from the store; Scheme, Host, Path and Content
// are immutable once loaded. Content is never nil, an absent body is "".
type Request struct {
	ID      int64
	Scheme  string
	Host    string
	Path    string
	Content string
	Match   MatchResult
}

// SameValues reports structural equality: two requests carry the same traffic
// shape when scheme, host, path and content agree. ID and Match are excluded,
// this is the comparison normalization groups by.
func (r *Request) SameValues(other *Request) bool {
	return r.Scheme == other.Scheme &&
		r.Host == other.Host &&
		r.Path == other.Path &&
		r.Content == other.Content
}

// Equal reports full equality including identity and match state.
func (r *Request) Equal(other *Request) bool {
	return r.ID == other.ID && r.Match == other.Match && r.SameValues(other)
}

// SetMatch records the filter-list verdict. The first write wins; the matcher
// evaluates each request once per run.
func (r *Request) SetMatch(blocked bool) {
	if r.Match != MatchUnknown {
		return
	}
	if blocked {
		r.Match = MatchBlocked
	} else {
		r.Match = MatchAllowed
	}
}

// URL renders the request as scheme://host/path for filter-list matching.
func (r *Request) URL() string {
	return r.Scheme + "://" + r.Host + "/" + strings.TrimPrefix(r.Path, "/")
}

// QueryString returns the query portion of the path. It is only considered
// present when the path contains exactly one "?" and the part after it is
// non-empty; anything else (no query, several "?", empty query) yields false.
func (r *Request) QueryString() (string, bool) {
	parts := strings.Split(r.Path, "?")
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// NormalizedRequest links a request to the representative of its
// normalization group. Representatives link to themselves.
type NormalizedRequest struct {
	RequestID    int64
	NormalizedID int64
}
