package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/orchestrator"
	"github.com/go-cyrus/orchestrator/internal/tracker"
)

func newCheckTokensCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-tokens",
		Short: "Probe each configured repository's tracker token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cyrusHome, err := loadEnvAndHome(flags)
			if err != nil {
				return err
			}
			log := logger.Default()
			fileCfg, err := config.LoadRepositories(cyrusHome, log)
			if err != nil {
				return &orchestrator.ConfigError{Detail: "loading repository config", Err: err}
			}

			client := tracker.NewMockClient() // the real GraphQL client is an out-of-scope external collaborator
			ctx := context.Background()
			for _, repo := range fileCfg.Repositories {
				status := client.Probe(ctx, repo.TrackerToken)
				if status.Valid {
					fmt.Printf("%s: valid\n", repo.ID)
					continue
				}
				fmt.Printf("%s: invalid (%s)\n", repo.ID, status.Reason)
			}
			return nil // check-tokens always exits 0 per §6; reason strings are the signal
		},
	}
}
