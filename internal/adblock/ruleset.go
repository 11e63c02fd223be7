// Package adblock classifies captured requests as ad or tracker traffic by
// matching their URLs against ad-blocker filter lists.
package adblock

import (
	"os"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"
	"github.com/rotisserie/eris"
)

// RuleSet matches request URLs against one compiled filter list.
type RuleSet struct {
	net     *urlfilter.Engine
	storage *filterlist.RuleStorage
}

// NewRuleSet compiles filter rules in Adblock Plus syntax. Cosmetic rules are
// ignored; only network rules matter for request classification.
func NewRuleSet(rulesText string) (*RuleSet, error) {
	list := &filterlist.StringRuleList{
		ID:             1,
		RulesText:      rulesText,
		IgnoreCosmetic: true,
	}
	storage, err := filterlist.NewRuleStorage([]filterlist.RuleList{list})
	if err != nil {
		return nil, eris.Wrap(err, "adblock: compile rule storage")
	}
	return &RuleSet{
		net:     urlfilter.NewEngine(storage),
		storage: storage,
	}, nil
}

// LoadRuleSet compiles a filter list from a file on disk.
func LoadRuleSet(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "adblock: read filter list %s", path)
	}
	return NewRuleSet(string(raw))
}

// ShouldBlock reports whether the URL matches a blocking network rule.
func (rs *RuleSet) ShouldBlock(url string) bool {
	res := rs.net.MatchRequest(rules.NewRequest(url, "", rules.TypeOther))
	rule := res.GetBasicResult()
	return rule != nil && !rule.Whitelist
}

// Close releases the compiled rule storage.
func (rs *RuleSet) Close() error {
	if rs.storage == nil {
		return nil
	}
	return rs.storage.Close()
}
