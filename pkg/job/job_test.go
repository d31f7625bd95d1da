package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/hivemind/pkg/runtime"
	"github.com/entrhq/hivemind/pkg/team"
)

const scraperDefaults = `role: "Web scraper"
description: "Fetches and parses listing pages"
config:
  max_findings: 40
  entry_urls:
    - "https://example.org/listings"
  politeness:
    delay_seconds: 2
    respect_robots: true
`

func TestParseDefaults(t *testing.T) {
	rec, err := ParseDefaults([]byte(scraperDefaults))
	require.NoError(t, err)

	assert.Equal(t, "Web scraper", rec.Role)
	assert.Equal(t, "Fetches and parses listing pages", rec.Description)
	assert.True(t, rec.Config["max_findings"].Equal(team.Int(40)))
	assert.Equal(t, team.KindList, rec.Config["entry_urls"].Kind())

	politeness := rec.Config["politeness"].Entries()
	require.NotNil(t, politeness)
	assert.True(t, politeness["respect_robots"].Equal(team.Bool(true)))

	// Experience always starts empty.
	assert.Empty(t, rec.Experience.Findings)
	assert.NotNil(t, rec.Experience.Stats)
}

func TestParseDefaultsErrors(t *testing.T) {
	_, err := ParseDefaults([]byte("role: [not: a: string"))
	assert.Error(t, err)

	_, err = ParseDefaults([]byte("description: no role here"))
	assert.ErrorIs(t, err, team.ErrSchema)
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scraperDefaults), 0o600))

	rec, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, "Web scraper", rec.Role)

	_, err = LoadDefaults(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInstall(t *testing.T) {
	tm := team.NewTeam("acre")
	rec, err := ParseDefaults([]byte(scraperDefaults))
	require.NoError(t, err)
	def := Definition{
		Name:     "scraper",
		Defaults: rec,
		Task:     func(context.Context, *runtime.Incarnation) error { return nil },
	}

	require.NoError(t, Install(tm, def))
	require.Contains(t, tm.Agents, "scraper")

	// A second install must not clobber accumulated memory.
	tm.Agents["scraper"].Experience.Stats["run_count"] = team.Int(7)
	require.NoError(t, Install(tm, def))
	assert.True(t, tm.Agents["scraper"].Experience.Stats["run_count"].Equal(team.Int(7)))
}

func TestInstallErrors(t *testing.T) {
	tm := team.NewTeam("acre")
	assert.ErrorIs(t, Install(tm, Definition{Defaults: &team.AgentRecord{Role: "x"}}), team.ErrSchema)
	assert.ErrorIs(t, Install(tm, Definition{Name: "scraper"}), team.ErrSchema)
}
