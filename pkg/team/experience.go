package team

import (
	"encoding/json"
	"fmt"
)

// findingsKey is the reserved key inside the experience object; every
// sibling key is an agent-chosen stat.
const findingsKey = "findings"

// Experience is the mutable layer of an agent record: the ordered
// findings sequence (oldest first) plus arbitrary named stats the agent
// tracks across runs. On disk the stats are siblings of "findings"
// inside one JSON object.
type Experience struct {
	Findings []Finding
	Stats    map[string]Value
}

// Clone returns a deep copy of the experience.
func (e Experience) Clone() Experience {
	c := Experience{Stats: cloneValueMap(e.Stats)}
	if e.Findings != nil {
		c.Findings = make([]Finding, len(e.Findings))
		copy(c.Findings, e.Findings)
	}
	return c
}

// MarshalJSON flattens findings and stats into a single object.
func (e Experience) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Stats)+1)
	findings := e.Findings
	if findings == nil {
		findings = []Finding{}
	}
	obj[findingsKey] = findings
	for k, v := range e.Stats {
		if k == findingsKey {
			return nil, fmt.Errorf("%w: stat key %q is reserved", ErrSchema, findingsKey)
		}
		obj[k] = v
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits the experience object back into findings and
// stats.
func (e *Experience) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Findings = []Finding{}
	e.Stats = make(map[string]Value)
	for k, msg := range raw {
		if k == findingsKey {
			if err := json.Unmarshal(msg, &e.Findings); err != nil {
				return fmt.Errorf("experience findings: %w", err)
			}
			continue
		}
		var v Value
		if err := json.Unmarshal(msg, &v); err != nil {
			return fmt.Errorf("experience stat %q: %w", k, err)
		}
		e.Stats[k] = v
	}
	return nil
}
