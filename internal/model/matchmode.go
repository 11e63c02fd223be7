package model

import "github.com/rotisserie/eris"

// MatchMode selects which subset of an experiment's requests is analyzed.
type MatchMode string

const (
	// MatchModeTracking analyzes only requests flagged as ad/tracker traffic.
	MatchModeTracking MatchMode = "tracking"
	// MatchModeAll analyzes every request of the experiment.
	MatchModeAll MatchMode = "all"
)

// ParseMatchMode validates a match mode argument.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case MatchModeTracking:
		return MatchModeTracking, nil
	case MatchModeAll:
		return MatchModeAll, nil
	default:
		return "", eris.Errorf("model: unknown match mode %q (want %q or %q)", s, MatchModeTracking, MatchModeAll)
	}
}
