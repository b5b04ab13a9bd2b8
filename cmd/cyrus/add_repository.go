package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/orchestrator"
)

func newAddRepositoryCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add-repository",
		Short: "Interactively add a new repository to config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cyrusHome, err := loadEnvAndHome(flags)
			if err != nil {
				return err
			}
			if err := config.EnsureHome(cyrusHome); err != nil {
				return &orchestrator.ConfigError{Detail: "creating cyrus home", Err: err}
			}
			log := logger.Default()
			fileCfg, err := config.LoadRepositories(cyrusHome, log)
			if err != nil {
				return &orchestrator.ConfigError{Detail: "loading repository config", Err: err}
			}

			reader := bufio.NewScanner(os.Stdin)
			repo := config.RepositoryConfig{IsActive: true}

			repo.ID = prompt(reader, "Repository id")
			repo.Name = prompt(reader, "Repository name")
			repo.RootPath = prompt(reader, "Absolute path to the git repository")
			repo.BaseBranch = promptDefault(reader, "Base branch", "main")
			repo.WorkspaceRoot = promptDefault(reader, "Workspace root", config.WorkspaceRoot(cyrusHome, filepath.Base(repo.RootPath)))

			if teams := prompt(reader, "Team keys (comma-separated, blank for none)"); teams != "" {
				repo.TeamKeys = splitAndTrim(teams)
			}
			if projects := prompt(reader, "Project names (comma-separated, blank for none)"); projects != "" {
				repo.ProjectKeys = splitAndTrim(projects)
			}
			if tools := promptDefault(reader, "Allowed tools (comma-separated)", "Read,Edit,Bash"); tools != "" {
				repo.AllowedTools = splitAndTrim(tools)
			}

			fmt.Println("Authenticate with the tracker to obtain this repository's token.")
			token, err := runOAuthBrowserFlow(cmd.Context())
			if err != nil {
				return fmt.Errorf("add-repository: OAuth flow failed: %w", err)
			}
			repo.TrackerToken = token
			repo.TrackerWorkspaceID = os.Getenv("LINEAR_WORKSPACE_ID")

			for _, existing := range fileCfg.Repositories {
				if existing.ID == repo.ID {
					return fmt.Errorf("add-repository: repository id %q already exists", repo.ID)
				}
			}
			fileCfg.Repositories = append(fileCfg.Repositories, repo)

			if warnings := fileCfg.Validate(); len(warnings) > 0 {
				for _, w := range warnings {
					log.Warn(w)
				}
			}
			if err := fileCfg.Save(config.ConfigPath(cyrusHome)); err != nil {
				return fmt.Errorf("add-repository: saving config: %w", err)
			}
			fmt.Printf("added repository %q\n", repo.ID)
			return nil
		},
	}
}

func prompt(reader *bufio.Scanner, label string) string {
	fmt.Printf("%s: ", label)
	if !reader.Scan() {
		return ""
	}
	return strings.TrimSpace(reader.Text())
}

func promptDefault(reader *bufio.Scanner, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	if !reader.Scan() {
		return def
	}
	v := strings.TrimSpace(reader.Text())
	if v == "" {
		return def
	}
	return v
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
