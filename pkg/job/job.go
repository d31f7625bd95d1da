// Package job defines the collaborator boundary between the memory
// core and the task logic that actually does work. A job contributes
// two things: a default partial record (identity + config) used to
// introduce its agent into a team, and the TaskFunc invoked during an
// incarnation's work phase. What the task does is the job's business;
// how its output is remembered is the core's.
package job

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/hivemind/pkg/runtime"
	"github.com/entrhq/hivemind/pkg/team"
)

// Definition binds an agent name to its default record fragment and
// its task logic.
type Definition struct {
	Name     string
	Defaults *team.AgentRecord
	Task     runtime.TaskFunc
}

// defaultsFile is the YAML shape of a job's default fragment.
type defaultsFile struct {
	Role        string         `yaml:"role"`
	Description string         `yaml:"description"`
	Config      map[string]any `yaml:"config"`
}

// LoadDefaults parses a YAML defaults fragment into a partial agent
// record with empty experience.
func LoadDefaults(path string) (*team.AgentRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("job: read defaults %s: %w", path, err)
	}
	return ParseDefaults(b)
}

// ParseDefaults converts raw YAML into a partial agent record. A
// fragment without a role is a schema violation; everything else is
// optional.
func ParseDefaults(b []byte) (*team.AgentRecord, error) {
	var df defaultsFile
	if err := yaml.Unmarshal(b, &df); err != nil {
		return nil, fmt.Errorf("job: parse defaults: %w", err)
	}
	if df.Role == "" {
		return nil, fmt.Errorf("%w: job defaults missing role", team.ErrSchema)
	}
	rec := &team.AgentRecord{
		Role:        df.Role,
		Description: df.Description,
		Config:      make(map[string]team.Value, len(df.Config)),
	}
	for k, raw := range df.Config {
		v, err := team.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("job: defaults config %q: %w", k, err)
		}
		rec.Config[k] = v
	}
	rec.FillEmpty()
	return rec, nil
}

// Install introduces the job's agent into the team from its defaults
// when the name is not present yet. An already present agent is left
// exactly as it is; accumulated memory always wins over defaults.
func Install(t *team.Team, def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: job definition missing name", team.ErrSchema)
	}
	if _, ok := t.Agents[def.Name]; ok {
		return nil
	}
	if def.Defaults == nil {
		return fmt.Errorf("%w: job %q has no defaults to install", team.ErrSchema, def.Name)
	}
	return team.AddAgent(t, def.Name, def.Defaults)
}
