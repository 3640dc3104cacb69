package sagconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "grove.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_BuildsTreeAndDefaults(t *testing.T) {
	path := writeConfig(t, `
tree:
  id: root
  role: coordinator
  children:
    - id: lead
      role: lead
      children:
        - id: w1
          role: worker
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./checkpoints", cfg.CheckpointDir)

	tr, err := cfg.BuildTree()
	require.NoError(t, err)
	_, ok := tr.Node("w1")
	assert.True(t, ok)
}

func TestLoad_ExpandsEnvVarsWithDefault(t *testing.T) {
	path := writeConfig(t, `
tree:
  id: root
checkpoint_dir: ${SAG_CHECKPOINT_DIR:-/var/sag/checkpoints}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/sag/checkpoints", cfg.CheckpointDir)
}

func TestLoad_ExpandsEnvVarWhenSet(t *testing.T) {
	t.Setenv("SAG_CHECKPOINT_DIR", "/tmp/custom")
	path := writeConfig(t, `
tree:
  id: root
checkpoint_dir: ${SAG_CHECKPOINT_DIR:-/var/sag/checkpoints}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom", cfg.CheckpointDir)
}

func TestLoad_MissingTreeIDFails(t *testing.T) {
	path := writeConfig(t, `
tree:
  role: coordinator
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnknownSchemasProfileFails(t *testing.T) {
	path := writeConfig(t, `
tree:
  id: root
schemas_profile: nonexistent
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBuildSchemaRegistry_LayersInlineSchemasOverProfile(t *testing.T) {
	path := writeConfig(t, `
tree:
  id: root
schemas_profile: software_dev
schemas:
  - verb: custom_verb
    positional:
      - name: target
        type: STRING
        required: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	reg, err := cfg.BuildSchemaRegistry()
	require.NoError(t, err)
	assert.Contains(t, reg.Names(), "deploy")
	assert.Contains(t, reg.Names(), "custom_verb")
}

func TestAgentIDs_DerivedFromTreeWhenRegistryEmpty(t *testing.T) {
	path := writeConfig(t, `
tree:
  id: root
  children:
    - id: lead
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "lead"}, cfg.AgentIDs())
}

func TestAgentIDs_ExplicitRegistryWins(t *testing.T) {
	path := writeConfig(t, `
tree:
  id: root
registry:
  - root
  - external-peer
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "external-peer"}, cfg.AgentIDs())
}
