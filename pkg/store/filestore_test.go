package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/hivemind/pkg/team"
)

func testTeam() *team.Team {
	t := team.NewTeam("acre")
	t.Created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	t.Agents["scout"] = &team.AgentRecord{
		Role:        "URL discovery",
		Description: "Finds listing pages",
		Config: map[string]team.Value{
			"max_findings": team.Int(20),
			"entry_urls":   team.List(team.String("https://example.org/listings")),
		},
		Experience: team.Experience{
			Findings: []team.Finding{{
				Category:  "dead_url",
				Problem:   "listing index moved",
				Solution:  "follow the redirect once, then pin",
				Context:   "https://example.org/old",
				Engine:    "crawler-v2",
				Timestamp: time.Date(2025, 3, 2, 10, 30, 0, 0, time.UTC),
			}},
			Stats: map[string]team.Value{"run_count": team.Int(5)},
		},
	}
	t.Knowledge["encodings"] = team.Map(map[string]team.Value{
		"example.org": team.String("utf-8"),
	})
	return t
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.json")
	orig := testTeam()

	require.NoError(t, Save(orig, path))
	loaded, rev, err := Load(path)
	require.NoError(t, err)
	require.False(t, rev.Zero())

	assert.Equal(t, orig.ProjectID, loaded.ProjectID)
	assert.True(t, orig.Created.Equal(loaded.Created))
	require.Contains(t, loaded.Agents, "scout")
	scout := loaded.Agents["scout"]
	assert.Equal(t, orig.Agents["scout"].Role, scout.Role)
	assert.Equal(t, orig.Agents["scout"].Description, scout.Description)
	require.Len(t, scout.Experience.Findings, 1)
	assert.Equal(t, orig.Agents["scout"].Experience.Findings[0], scout.Experience.Findings[0])
	assert.True(t, scout.Config["entry_urls"].Equal(orig.Agents["scout"].Config["entry_urls"]))
	assert.True(t, scout.Experience.Stats["run_count"].Equal(team.Int(5)))
	assert.True(t, loaded.Knowledge["encodings"].Equal(orig.Knowledge["encodings"]))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("not found", func(t *testing.T) {
		_, _, err := Load(filepath.Join(dir, "missing.json"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, _, err := Load(path)
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("schema violation", func(t *testing.T) {
		path := filepath.Join(dir, "noid.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"agents":{}}`), 0o600))
		_, _, err := Load(path)
		assert.ErrorIs(t, err, team.ErrSchema)
	})
}

func TestLoadFillsPartialLayers(t *testing.T) {
	// An agent declared with identity only gets empty config and
	// experience instead of failing.
	path := filepath.Join(t.TempDir(), "team.json")
	raw := `{
  "project_id": "acre",
  "created": "2025-03-01T09:00:00Z",
  "agents": {
    "parser": {"role": "HTML parsing", "description": "", "experience": {}}
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	loaded, _, err := Load(path)
	require.NoError(t, err)
	parser := loaded.Agents["parser"]
	require.NotNil(t, parser)
	assert.NotNil(t, parser.Config)
	assert.NotNil(t, parser.Experience.Findings)
	assert.NotNil(t, parser.Experience.Stats)
	assert.Empty(t, parser.Experience.Findings)
}

func TestSaveAtomicOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.json")
	require.NoError(t, Save(testTeam(), path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// A team that cannot be marshaled aborts the save before any byte
	// reaches the target.
	bad := testTeam()
	bad.Agents["scout"].Experience.Stats["findings"] = team.Int(1)
	err = Save(bad, path)
	require.ErrorIs(t, err, ErrWrite)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed save must leave the artifact byte-identical")
}

func TestSaveFailureLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.json")
	bad := testTeam()
	bad.Agents["scout"].Experience.Stats["findings"] = team.Int(1)
	require.Error(t, Save(bad, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveWithBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.json")
	require.NoError(t, Save(testTeam(), path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	timeNow = func() time.Time { return time.Date(2025, 3, 3, 8, 15, 0, 0, time.UTC) }
	defer func() { timeNow = time.Now }()

	updated := testTeam()
	updated.Agents["scout"].Experience.Stats["run_count"] = team.Int(6)
	require.NoError(t, Save(updated, path, WithBackup()))

	backupPath := filepath.Join(dir, "team_backup_20250303_081500.json")
	b, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, before, b, "backup must hold the pre-save artifact")
}

func TestStatAndRevision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.json")

	rev, err := Stat(path)
	require.NoError(t, err)
	assert.True(t, rev.Zero(), "missing artifact yields the zero revision")

	require.NoError(t, Save(testTeam(), path))
	_, loadRev, err := Load(path)
	require.NoError(t, err)
	statRev, err := Stat(path)
	require.NoError(t, err)
	assert.True(t, loadRev.Equal(statRev))

	changed := testTeam()
	changed.Agents["scout"].Experience.Stats["run_count"] = team.Int(6)
	require.NoError(t, Save(changed, path))
	afterRev, err := Stat(path)
	require.NoError(t, err)
	assert.False(t, afterRev.Equal(loadRev), "revision must change with content")
}
