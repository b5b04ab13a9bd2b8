package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/orchestrator"
)

func newRefreshTokenCommand(flags *rootFlags) *cobra.Command {
	var repositoryID string

	cmd := &cobra.Command{
		Use:   "refresh-token",
		Short: "Interactively re-run OAuth for a repository and replace its token everywhere it's shared",
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

			var target *config.RepositoryConfig
			for i := range fileCfg.Repositories {
				if fileCfg.Repositories[i].ID == repositoryID {
					target = &fileCfg.Repositories[i]
					break
				}
			}
			if target == nil {
				return fmt.Errorf("refresh-token: no repository with id %q; pass --repository", repositoryID)
			}

			token, err := runOAuthBrowserFlow(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh-token: OAuth flow failed: %w", err)
			}

			oldToken := target.TrackerToken
			replaced := 0
			for i := range fileCfg.Repositories {
				if fileCfg.Repositories[i].TrackerToken == oldToken {
					fileCfg.Repositories[i].TrackerToken = token
					replaced++
				}
			}

			if err := fileCfg.Save(config.ConfigPath(cyrusHome)); err != nil {
				return fmt.Errorf("refresh-token: saving config: %w", err)
			}
			fmt.Printf("refreshed token for %d repositor%s sharing the old token\n", replaced, plural(replaced))
			return nil
		},
	}
	cmd.Flags().StringVar(&repositoryID, "repository", "", "id of the repository whose token to refresh (required)")
	_ = cmd.MarkFlagRequired("repository")
	return cmd
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
