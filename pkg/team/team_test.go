package team

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTeam() *Team {
	t := NewTeam("acre")
	t.Agents["scout"] = &AgentRecord{
		Role:        "URL discovery",
		Description: "Finds listing pages",
		Config:      map[string]Value{"max_findings": Int(10)},
		Experience: Experience{
			Findings: []Finding{
				{Category: "dead_url", Problem: "404 on /old", Solution: "skip", Timestamp: time.Now()},
			},
			Stats: map[string]Value{"run_count": Int(3)},
		},
	}
	t.Knowledge["date_formats"] = List(String("02/01/2006"), String("2006-01-02"))
	return t
}

func TestValidate(t *testing.T) {
	tm := testTeam()
	require.NoError(t, Validate(tm))

	t.Run("nil team", func(t *testing.T) {
		assert.ErrorIs(t, Validate(nil), ErrSchema)
	})

	t.Run("missing project id", func(t *testing.T) {
		tm := testTeam()
		tm.ProjectID = ""
		assert.ErrorIs(t, Validate(tm), ErrSchema)
	})

	t.Run("empty agent name", func(t *testing.T) {
		tm := testTeam()
		tm.Agents[""] = &AgentRecord{Role: "x"}
		assert.ErrorIs(t, Validate(tm), ErrSchema)
	})

	t.Run("missing role", func(t *testing.T) {
		tm := testTeam()
		tm.Agents["scout"].Role = ""
		assert.ErrorIs(t, Validate(tm), ErrSchema)
	})

	t.Run("finding without category", func(t *testing.T) {
		tm := testTeam()
		tm.Agents["scout"].Experience.Findings[0].Category = ""
		assert.ErrorIs(t, Validate(tm), ErrSchema)
	})

	t.Run("finding without timestamp", func(t *testing.T) {
		tm := testTeam()
		tm.Agents["scout"].Experience.Findings[0].Timestamp = time.Time{}
		assert.ErrorIs(t, Validate(tm), ErrSchema)
	})

	t.Run("zero agents is valid", func(t *testing.T) {
		assert.NoError(t, Validate(NewTeam("fresh")))
	})
}

func TestMergeSection(t *testing.T) {
	tm := testTeam()

	updated := tm.Agents["scout"].Clone()
	updated.Experience.Stats["run_count"] = Int(4)
	require.NoError(t, MergeSection(tm, "scout", updated))
	n, ok := tm.Agents["scout"].Experience.Stats["run_count"].IntVal()
	require.True(t, ok)
	assert.Equal(t, 4, n)

	// Runtime merge never introduces agents.
	err := MergeSection(tm, "parser", &AgentRecord{Role: "x"})
	assert.ErrorIs(t, err, ErrUnknownAgent)

	assert.ErrorIs(t, MergeSection(tm, "scout", nil), ErrSchema)
}

func TestMergeSectionCopies(t *testing.T) {
	tm := testTeam()
	rec := tm.Agents["scout"].Clone()
	require.NoError(t, MergeSection(tm, "scout", rec))

	// Mutating the caller's record after the merge must not leak into
	// the team.
	rec.Experience.Stats["run_count"] = Int(99)
	n, _ := tm.Agents["scout"].Experience.Stats["run_count"].IntVal()
	assert.Equal(t, 3, n)
}

func TestAddAgent(t *testing.T) {
	tm := testTeam()
	require.NoError(t, AddAgent(tm, "parser", &AgentRecord{Role: "HTML parsing"}))

	rec := tm.Agents["parser"]
	require.NotNil(t, rec)
	assert.NotNil(t, rec.Config)
	assert.NotNil(t, rec.Experience.Findings)
	assert.NotNil(t, rec.Experience.Stats)

	assert.ErrorIs(t, AddAgent(tm, "parser", &AgentRecord{Role: "dup"}), ErrSchema)
	assert.ErrorIs(t, AddAgent(tm, "", &AgentRecord{Role: "x"}), ErrSchema)
	assert.ErrorIs(t, AddAgent(tm, "ghost", nil), ErrSchema)
}

func TestCloneIsDeep(t *testing.T) {
	tm := testTeam()
	c := tm.Clone()

	c.Agents["scout"].Experience.Findings[0].Solution = "changed"
	c.Agents["scout"].Config["max_findings"] = Int(1)
	c.Knowledge["date_formats"] = String("clobbered")

	assert.Equal(t, "skip", tm.Agents["scout"].Experience.Findings[0].Solution)
	n, _ := tm.Agents["scout"].Config["max_findings"].IntVal()
	assert.Equal(t, 10, n)
	assert.Equal(t, KindList, tm.Knowledge["date_formats"].Kind())
}

func TestExperienceJSONShape(t *testing.T) {
	tm := testTeam()
	b, err := json.Marshal(tm.Agents["scout"])
	require.NoError(t, err)

	// Stats are siblings of findings inside the experience object.
	var raw struct {
		Experience map[string]json.RawMessage `json:"experience"`
	}
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw.Experience, "findings")
	assert.Contains(t, raw.Experience, "run_count")

	var back AgentRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Len(t, back.Experience.Findings, 1)
	n, ok := back.Experience.Stats["run_count"].IntVal()
	require.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestExperienceReservedStatKey(t *testing.T) {
	e := Experience{Stats: map[string]Value{"findings": Int(1)}}
	_, err := json.Marshal(e)
	assert.ErrorContains(t, err, "reserved")
}
