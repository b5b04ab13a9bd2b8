// Package config loads the orchestrator's startup configuration: the
// environment-derived GlobalConfig and the human-edited repository list
// persisted at $CYRUS_HOME/config.json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/logger"
)

const defaultServerPort = 3456

// GlobalConfig holds everything sourced from the environment.
type GlobalConfig struct {
	ProxyURL               string
	BaseURL                string
	ServerPort             int
	HostExternal           bool
	AllowedTools           []string
	DisallowedTools        []string
	DefaultModel           string
	DefaultFallbackModel   string
	LinearOAuthToken       string
	LinearWorkspaceID      string
	CyrusHome              string
}

// LoadGlobal reads the environment into a GlobalConfig using viper for
// binding/defaulting, the same way internal/common/config binds its own
// Server/Database/NATS sections.
func LoadGlobal(cyrusHome string) (GlobalConfig, error) {
	v := viper.New()
	v.SetDefault("server_port", defaultServerPort)
	v.SetDefault("host_external", false)

	for _, key := range []string{
		"proxy_url", "base_url", "server_port", "host_external",
		"allowed_tools", "disallowed_tools", "default_model",
		"default_fallback_model", "linear_oauth_token", "linear_workspace_id",
	} {
		_ = v.BindEnv(key, envNameFor(key))
	}

	cfg := GlobalConfig{
		ProxyURL:             v.GetString("proxy_url"),
		BaseURL:              v.GetString("base_url"),
		ServerPort:           v.GetInt("server_port"),
		HostExternal:         parseBool(v.GetString("host_external")),
		AllowedTools:         splitCSV(v.GetString("allowed_tools")),
		DisallowedTools:      splitCSV(v.GetString("disallowed_tools")),
		DefaultModel:         v.GetString("default_model"),
		DefaultFallbackModel: v.GetString("default_fallback_model"),
		LinearOAuthToken:     v.GetString("linear_oauth_token"),
		LinearWorkspaceID:    v.GetString("linear_workspace_id"),
		CyrusHome:            cyrusHome,
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = defaultServerPort
	}
	return cfg, nil
}

// envNameFor maps a viper key to the literal environment variable name it
// must read from. viper's automatic SCREAMING_SNAKE derivation would
// produce CYRUS_SERVER_PORT correctly but not PROXY_URL or LINEAR_*, so
// every key is bound explicitly rather than relying on a single prefix.
func envNameFor(key string) string {
	switch key {
	case "proxy_url":
		return "PROXY_URL"
	case "base_url":
		return "CYRUS_BASE_URL"
	case "server_port":
		return "CYRUS_SERVER_PORT"
	case "host_external":
		return "CYRUS_HOST_EXTERNAL"
	case "allowed_tools":
		return "ALLOWED_TOOLS"
	case "disallowed_tools":
		return "DISALLOWED_TOOLS"
	case "default_model":
		return "CYRUS_DEFAULT_MODEL"
	case "default_fallback_model":
		return "CYRUS_DEFAULT_FALLBACK_MODEL"
	case "linear_oauth_token":
		return "LINEAR_OAUTH_TOKEN"
	case "linear_workspace_id":
		return "LINEAR_WORKSPACE_ID"
	default:
		return strings.ToUpper(key)
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultCyrusHome returns $CYRUS_HOME, defaulting to ~/.cyrus/.
func DefaultCyrusHome() (string, error) {
	if v := os.Getenv("CYRUS_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default cyrus home: %w", err)
	}
	return filepath.Join(home, ".cyrus"), nil
}

// ConfigPath returns $CYRUS_HOME/config.json.
func ConfigPath(cyrusHome string) string {
	return filepath.Join(cyrusHome, "config.json")
}

// SnapshotPath returns $CYRUS_HOME/state/snapshot.json.
func SnapshotPath(cyrusHome string) string {
	return filepath.Join(cyrusHome, "state", "snapshot.json")
}

// WorkspaceRoot returns the default workspace root for a repository slug.
func WorkspaceRoot(cyrusHome, repoSlug string) string {
	return filepath.Join(cyrusHome, "workspaces", repoSlug)
}

// EnsureHome creates $CYRUS_HOME and its state/ subdirectory.
func EnsureHome(cyrusHome string) error {
	if err := os.MkdirAll(cyrusHome, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(cyrusHome, "state"), 0o755)
}

// LoadRepositories reads and validates $CYRUS_HOME/config.json, migrating
// a legacy ./.edge-config.json in place first if config.json does not yet
// exist.
func LoadRepositories(cyrusHome string, log *logger.Logger) (*FileConfig, error) {
	path := ConfigPath(cyrusHome)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if migrated, merr := migrateLegacyConfig(path); merr != nil {
			return nil, merr
		} else if migrated {
			log.Info("migrated legacy .edge-config.json", zap.String("path", path))
		}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &FileConfig{SchemaVersion: currentSchemaVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	fc, err := ParseFileConfig(data)
	if err != nil {
		return nil, err
	}
	if warnings := fc.Validate(); len(warnings) > 0 {
		for _, w := range warnings {
			log.Warn(w)
		}
	}
	return fc, nil
}
