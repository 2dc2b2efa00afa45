package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesetl/internal/config"
	"github.com/JonMunkholm/salesetl/internal/quality"
)

// BuildRules derives the quality rules from configuration. A rules file, when
// given, overrides the configured values key by key; override wins over
// q.RulesFile when both are set.
func BuildRules(q config.QualityConfig, override string) (quality.Rules, error) {
	rules := quality.DefaultRules()
	rules.Tolerance = decimal.NewFromFloat(q.Tolerance)
	if q.ReferenceYear != 0 {
		rules.ReferenceYear = q.ReferenceYear
	}

	path := q.RulesFile
	if override != "" {
		path = override
	}
	if path == "" {
		return rules, nil
	}

	rf, err := config.LoadRulesFile(path)
	if err != nil {
		return quality.Rules{}, err
	}
	if len(rf.DedupKey) > 0 {
		rules.DedupKey = rf.DedupKey
	}
	if rf.Tolerance != nil {
		rules.Tolerance = decimal.NewFromFloat(*rf.Tolerance)
	}
	if len(rf.RequiredColumns) > 0 {
		rules.RequiredColumns = rf.RequiredColumns
	}
	if rf.ReferenceYear != nil {
		rules.ReferenceYear = *rf.ReferenceYear
	}
	return rules, nil
}
