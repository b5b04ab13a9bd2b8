package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// currentSchemaVersion is bumped whenever the config.json shape changes in
// a way older readers cannot tolerate. The snapshot uses the same integer
// for consistency between the two persisted documents.
const currentSchemaVersion = 1

// RepositoryConfig is one configured repository the orchestrator can route
// sessions into.
type RepositoryConfig struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	RootPath           string            `json:"rootPath"`
	BaseBranch         string            `json:"baseBranch"`
	WorkspaceRoot      string            `json:"workspaceRoot"`
	TrackerToken       string            `json:"tracker-token"`
	TrackerWorkspaceID string            `json:"tracker-workspace-id"`
	TeamKeys           []string          `json:"teamKeys,omitempty"`
	ProjectKeys        []string          `json:"projectKeys,omitempty"`
	AllowedTools       []string          `json:"allowedTools,omitempty"`
	DisallowedTools    []string          `json:"disallowedTools,omitempty"`
	LabelPrompts       map[string]string `json:"labelPrompts,omitempty"`
	IsActive           bool              `json:"isActive"`
}

// IsCatchAll reports whether this repository has neither teamKeys nor
// projectKeys configured, making it the fallback for otherwise-unmatched
// events in its tracker workspace.
func (r RepositoryConfig) IsCatchAll() bool {
	return len(r.TeamKeys) == 0 && len(r.ProjectKeys) == 0
}

// FileConfig is the top-level shape of $CYRUS_HOME/config.json.
type FileConfig struct {
	SchemaVersion    int                `json:"schemaVersion"`
	Repositories     []RepositoryConfig `json:"repositories"`
	GlobalSetupScript string            `json:"globalSetupScript,omitempty"`
}

// ParseFileConfig decodes config.json, defaulting IsActive to true since
// the JSON zero value for a bool is false and would otherwise silently
// disable every repository that predates the field.
func ParseFileConfig(data []byte) (*FileConfig, error) {
	var raw struct {
		SchemaVersion     int               `json:"schemaVersion"`
		GlobalSetupScript string            `json:"globalSetupScript"`
		Repositories      []json.RawMessage `json:"repositories"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config.json: %w", err)
	}

	fc := &FileConfig{SchemaVersion: raw.SchemaVersion, GlobalSetupScript: raw.GlobalSetupScript}
	if fc.SchemaVersion == 0 {
		fc.SchemaVersion = currentSchemaVersion
	}

	for _, rawRepo := range raw.Repositories {
		repo := RepositoryConfig{IsActive: true}
		if err := json.Unmarshal(rawRepo, &repo); err != nil {
			return nil, fmt.Errorf("parsing repository entry: %w", err)
		}
		fc.Repositories = append(fc.Repositories, repo)
	}
	return fc, nil
}

// Validate checks repository ids are unique and that at most one
// catch-all repository claims any given tracker workspace, first in file
// order wins. A duplicate catch-all only produces a warning; a duplicate
// id is dropped outright since routing by id would otherwise be
// ambiguous.
func (fc *FileConfig) Validate() (warnings []string) {
	seenIDs := make(map[string]bool, len(fc.Repositories))
	catchAllSeen := make(map[string]string) // workspace id -> repo id that already claimed it
	kept := make([]RepositoryConfig, 0, len(fc.Repositories))
	defer func() { fc.Repositories = kept }()

	for _, repo := range fc.Repositories {
		if seenIDs[repo.ID] {
			warnings = append(warnings, fmt.Sprintf("config: duplicate repository id %q (invariant violation, ignoring duplicate)", repo.ID))
			continue
		}
		seenIDs[repo.ID] = true
		kept = append(kept, repo)

		if repo.IsCatchAll() {
			if first, ok := catchAllSeen[repo.TrackerWorkspaceID]; ok {
				warnings = append(warnings, fmt.Sprintf(
					"config: repository %q is a second catch-all for tracker workspace %q; %q already claims it and wins by file order",
					repo.ID, repo.TrackerWorkspaceID, first))
				continue
			}
			catchAllSeen[repo.TrackerWorkspaceID] = repo.ID
		}
	}
	return warnings
}

// Save writes the config atomically (temp file + rename), the same
// persistence discipline used for the session snapshot, since config.json
// is also a machine-written document whenever add-repository/refresh-token
// mutate it.
func (fc *FileConfig) Save(path string) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling config.json: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "cyrus-config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// migrateLegacyConfig one-shot migrates ./.edge-config.json into
// targetPath if the legacy file exists and targetPath does not.
func migrateLegacyConfig(targetPath string) (migrated bool, err error) {
	const legacyPath = "./.edge-config.json"
	data, err := os.ReadFile(legacyPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading legacy config: %w", err)
	}

	fc, err := ParseFileConfig(data)
	if err != nil {
		return false, fmt.Errorf("legacy config is corrupt: %w", err)
	}
	if err := fc.Save(targetPath); err != nil {
		return false, err
	}
	return true, nil
}
