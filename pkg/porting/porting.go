// Package porting derives new teams from existing ones. A port keeps
// what transfers between projects (identity, config, universal
// knowledge) and resets what does not (accumulated experience), so a
// new deployment starts fresh without losing its shape.
package porting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/hivemind/pkg/store"
	"github.com/entrhq/hivemind/pkg/team"
)

var timeNow = time.Now // injected for testability

// preservedStats are experience keys that survive a port verbatim:
// universal knowledge embedded per-agent rather than learned state.
var preservedStats = map[string]bool{
	"format_priority": true,
}

// Derive produces a new team for a different project. Agent names,
// identity layers, config layers, and the knowledge pool carry over
// verbatim; every agent's experience is reset. The source team is not
// modified. An invalid source fails with team.ErrSchema.
func Derive(source *team.Team, newProjectID string) (*team.Team, error) {
	if err := team.Validate(source); err != nil {
		return nil, err
	}
	if newProjectID == "" {
		return nil, fmt.Errorf("%w: empty project id", team.ErrSchema)
	}
	t := source.Clone()
	t.ProjectID = newProjectID
	t.Created = timeNow()
	for _, rec := range t.Agents {
		resetExperience(rec)
	}
	t.FillDefaults()
	return t, nil
}

// resetExperience clears findings and resets stats by shape, so a
// ported record keeps its structure with fresh counters.
func resetExperience(rec *team.AgentRecord) {
	rec.Experience.Findings = []team.Finding{}
	for k, v := range rec.Experience.Stats {
		if preservedStats[k] {
			continue
		}
		rec.Experience.Stats[k] = resetValue(v)
	}
}

func resetValue(v team.Value) team.Value {
	switch v.Kind() {
	case team.KindList:
		return team.List()
	case team.KindMap:
		entries := v.Entries()
		for _, e := range entries {
			if e.Kind() != team.KindNumber {
				return team.Map(nil)
			}
		}
		zeroed := make(map[string]team.Value, len(entries))
		for k := range entries {
			zeroed[k] = team.Int(0)
		}
		return team.Map(zeroed)
	case team.KindNumber:
		return team.Int(0)
	case team.KindString:
		return team.String("")
	case team.KindBool:
		return team.Bool(false)
	default:
		return team.Null()
	}
}

// Options tunes CreateTeam beyond the plain derive.
type Options struct {
	// AgentOverrides merges per-agent config entries into the derived
	// team, keyed by agent name. The merge is shallow: each listed key
	// replaces the derived value wholesale.
	AgentOverrides map[string]map[string]team.Value

	// OutputPath, when set, saves the derived team there.
	OutputPath string
}

// CreateTeam derives a new team and applies per-agent config overrides,
// optionally saving the result. Overrides naming unknown agents fail
// with team.ErrUnknownAgent.
func CreateTeam(source *team.Team, projectID string, opts *Options) (*team.Team, error) {
	t, err := Derive(source, projectID)
	if err != nil {
		return nil, err
	}
	if opts != nil {
		for name, overrides := range opts.AgentOverrides {
			rec, ok := t.Agents[name]
			if !ok {
				return nil, fmt.Errorf("%w: override for %q", team.ErrUnknownAgent, name)
			}
			for k, v := range overrides {
				rec.Config[k] = v.Clone()
			}
		}
		if opts.OutputPath != "" {
			if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o750); err != nil {
				return nil, fmt.Errorf("%w: create output directory: %v", store.ErrWrite, err)
			}
			if err := store.Save(t, opts.OutputPath); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// FromTemplate creates a team from a bundled template artifact at
// <templatesDir>/<name>.json. The not-found error lists the templates
// that are available.
func FromTemplate(templatesDir, name, projectID string, opts *Options) (*team.Team, error) {
	path := filepath.Join(templatesDir, name+".json")
	source, _, err := store.Load(path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: template %q (available: %s)",
			store.ErrNotFound, name, strings.Join(availableTemplates(templatesDir), ", "))
	}
	if err != nil {
		return nil, err
	}
	return CreateTeam(source, projectID, opts)
}

func availableTemplates(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names
}
