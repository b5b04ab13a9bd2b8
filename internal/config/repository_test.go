package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileConfigDefaultsIsActiveTrue(t *testing.T) {
	data := []byte(`{"repositories":[{"id":"r1","name":"Repo"}]}`)
	fc, err := ParseFileConfig(data)
	require.NoError(t, err)
	require.Len(t, fc.Repositories, 1)
	assert.True(t, fc.Repositories[0].IsActive)
}

func TestParseFileConfigRespectsExplicitIsActiveFalse(t *testing.T) {
	data := []byte(`{"repositories":[{"id":"r1","isActive":false}]}`)
	fc, err := ParseFileConfig(data)
	require.NoError(t, err)
	assert.False(t, fc.Repositories[0].IsActive)
}

func TestIsCatchAllTrueWithoutTeamOrProjectKeys(t *testing.T) {
	r := RepositoryConfig{ID: "r1"}
	assert.True(t, r.IsCatchAll())

	r.TeamKeys = []string{"CEE"}
	assert.False(t, r.IsCatchAll())
}

func TestValidateWarnsOnDuplicateCatchAllSameWorkspace(t *testing.T) {
	fc := &FileConfig{Repositories: []RepositoryConfig{
		{ID: "r1", TrackerWorkspaceID: "ws-1"},
		{ID: "r2", TrackerWorkspaceID: "ws-1"},
	}}
	warnings := fc.Validate()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "r2")
}

func TestValidateDropsDuplicateRepositoryID(t *testing.T) {
	fc := &FileConfig{Repositories: []RepositoryConfig{
		{ID: "dup"},
		{ID: "dup"},
	}}
	warnings := fc.Validate()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "duplicate repository id")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	fc := &FileConfig{SchemaVersion: 1, Repositories: []RepositoryConfig{
		{ID: "r1", Name: "Repo", IsActive: true, TeamKeys: []string{"CEE"}},
	}}
	require.NoError(t, fc.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	reloaded, err := ParseFileConfig(data)
	require.NoError(t, err)
	assert.Equal(t, fc.Repositories[0].ID, reloaded.Repositories[0].ID)
	assert.Equal(t, fc.Repositories[0].TeamKeys, reloaded.Repositories[0].TeamKeys)
}

func TestMigrateLegacyConfigNoLegacyFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	migrated, err := migrateLegacyConfig(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.False(t, migrated)
}
