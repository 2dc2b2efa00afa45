package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesetl/internal/source"
)

type cacheStatus struct {
	Cache          source.CacheState `json:"cache"`
	AgeHours       float64           `json:"age_hours"`
	HasCredentials bool              `json:"has_credentials"`
	Metadata       *source.Metadata  `json:"metadata,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the cached source file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fetcher := source.NewFetcher(cfg.Source, cfg.Paths, nil)
			state, err := fetcher.Inspect()
			if err != nil {
				return err
			}
			meta, err := source.ReadMetadata(fetcher.MetadataPath())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cacheStatus{
				Cache:          state,
				AgeHours:       state.Age.Hours(),
				HasCredentials: cfg.Source.HasCredentials(),
				Metadata:       meta,
			})
		},
	}
}
