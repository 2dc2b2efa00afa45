package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is the on-disk shape of a quality rules override.
//
//	dedup_key: [order_id, item_id]
//	tolerance: 0.01
//	required_columns: [order_id, item_id, sku, cust_id]
type RulesFile struct {
	DedupKey        []string `yaml:"dedup_key"`
	Tolerance       *float64 `yaml:"tolerance"`
	RequiredColumns []string `yaml:"required_columns"`
	ReferenceYear   *int     `yaml:"reference_year"`
}

// LoadRulesFile parses a YAML rules file. Unknown keys are rejected.
func LoadRulesFile(path string) (*RulesFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	var rf RulesFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("decode rules file %s: %w", path, err)
	}

	if rf.Tolerance != nil && *rf.Tolerance < 0 {
		return nil, fmt.Errorf("rules file %s: tolerance must be non-negative", path)
	}
	for _, col := range rf.DedupKey {
		if col == "" {
			return nil, fmt.Errorf("rules file %s: dedup_key contains an empty column", path)
		}
	}

	return &rf, nil
}
