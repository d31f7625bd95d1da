// Package team provides the data model for a persistent agent team: a
// single aggregate of named agent records plus a team-wide knowledge
// pool. The package defines the artifact's Go types, validation, and
// the section-merge primitive the coordinator builds on. It performs
// no I/O.
package team

import (
	"errors"
	"fmt"
	"time"
)

var ErrSchema = errors.New("team: schema violation")
var ErrUnknownAgent = errors.New("team: unknown agent")

// Team is the root aggregate persisted as one artifact. One file = one
// team's entire memory.
type Team struct {
	ProjectID string                  `json:"project_id"`
	Created   time.Time               `json:"created"`
	Agents    map[string]*AgentRecord `json:"agents"`
	Knowledge map[string]Value        `json:"universal_knowledge,omitempty"`
}

// AgentRecord is one agent's persistent state, owned exclusively by the
// containing Team. Identity (Role, Description) and Config are only
// changed administratively; an agent's own run mutates Experience only.
type AgentRecord struct {
	Role        string           `json:"role"`
	Description string           `json:"description"`
	Config      map[string]Value `json:"config"`
	Experience  Experience       `json:"experience"`
}

// Finding is one immutable recorded lesson. Findings are appended by an
// agent during a run and removed only by retention trimming or a
// porting reset, never edited.
type Finding struct {
	Category  string    `json:"category"`
	Problem   string    `json:"problem"`
	Solution  string    `json:"solution"`
	Context   string    `json:"context,omitempty"`
	Engine    string    `json:"engine,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTeam creates an empty team for the given project. A team with zero
// agents is valid.
func NewTeam(projectID string) *Team {
	return &Team{
		ProjectID: projectID,
		Created:   time.Now(),
		Agents:    make(map[string]*AgentRecord),
		Knowledge: make(map[string]Value),
	}
}

// FillDefaults populates empty layers on every agent record so that a
// partially specified artifact (identity only) becomes a complete one.
func (t *Team) FillDefaults() {
	if t.Agents == nil {
		t.Agents = make(map[string]*AgentRecord)
	}
	if t.Knowledge == nil {
		t.Knowledge = make(map[string]Value)
	}
	for _, rec := range t.Agents {
		rec.FillEmpty()
	}
}

// FillEmpty populates nil layers of the record with empty defaults.
func (r *AgentRecord) FillEmpty() {
	if r.Config == nil {
		r.Config = make(map[string]Value)
	}
	if r.Experience.Findings == nil {
		r.Experience.Findings = []Finding{}
	}
	if r.Experience.Stats == nil {
		r.Experience.Stats = make(map[string]Value)
	}
}

// Validate checks the structural invariants of the team. It is pure:
// it never repairs the team, it only reports the first violation found.
func Validate(t *Team) error {
	if t == nil {
		return fmt.Errorf("%w: nil team", ErrSchema)
	}
	if t.ProjectID == "" {
		return fmt.Errorf("%w: missing project_id", ErrSchema)
	}
	for name, rec := range t.Agents {
		if name == "" {
			return fmt.Errorf("%w: empty agent name", ErrSchema)
		}
		if rec == nil {
			return fmt.Errorf("%w: agent %q has no record", ErrSchema, name)
		}
		if rec.Role == "" {
			return fmt.Errorf("%w: agent %q missing role", ErrSchema, name)
		}
		for i, f := range rec.Experience.Findings {
			if f.Category == "" {
				return fmt.Errorf("%w: agent %q finding %d missing category", ErrSchema, name, i)
			}
			if f.Timestamp.IsZero() {
				return fmt.Errorf("%w: agent %q finding %d missing timestamp", ErrSchema, name, i)
			}
		}
	}
	return nil
}

// MergeSection replaces exactly one agent's record. It is the runtime
// merge call site: the agent must already exist in the team, a new name
// is rejected with ErrUnknownAgent. Administrative introduction of a
// new agent goes through AddAgent instead.
func MergeSection(t *Team, name string, rec *AgentRecord) error {
	if _, ok := t.Agents[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	if rec == nil {
		return fmt.Errorf("%w: agent %q merged with nil record", ErrSchema, name)
	}
	t.Agents[name] = rec.Clone()
	return nil
}

// AddAgent introduces a new agent record administratively. Empty layers
// are filled with defaults. Reusing an existing name is a schema
// violation; records are never replaced through this call site.
func AddAgent(t *Team, name string, rec *AgentRecord) error {
	if name == "" {
		return fmt.Errorf("%w: empty agent name", ErrSchema)
	}
	if _, ok := t.Agents[name]; ok {
		return fmt.Errorf("%w: agent %q already exists", ErrSchema, name)
	}
	if rec == nil {
		return fmt.Errorf("%w: agent %q added with nil record", ErrSchema, name)
	}
	if t.Agents == nil {
		t.Agents = make(map[string]*AgentRecord)
	}
	c := rec.Clone()
	c.FillEmpty()
	t.Agents[name] = c
	return nil
}

// Clone returns a deep copy of the team. Runtimes and coordinator
// rounds always work on copies so the loaded aggregate is never shared
// mutable state.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	c := &Team{
		ProjectID: t.ProjectID,
		Created:   t.Created,
		Agents:    make(map[string]*AgentRecord, len(t.Agents)),
		Knowledge: cloneValueMap(t.Knowledge),
	}
	for name, rec := range t.Agents {
		c.Agents[name] = rec.Clone()
	}
	return c
}

// Clone returns a deep copy of the record.
func (r *AgentRecord) Clone() *AgentRecord {
	if r == nil {
		return nil
	}
	c := &AgentRecord{
		Role:        r.Role,
		Description: r.Description,
		Config:      cloneValueMap(r.Config),
	}
	c.Experience = r.Experience.Clone()
	return c
}

func cloneValueMap(m map[string]Value) map[string]Value {
	if m == nil {
		return nil
	}
	c := make(map[string]Value, len(m))
	for k, v := range m {
		c[k] = v.Clone()
	}
	return c
}
