// Package runtime implements the single-incarnation agent lifecycle:
// recall → work → learn → deposit. An Incarnation is bound to one agent
// name and a private copy of that agent's record; it never touches the
// shared team aggregate. What survives the incarnation is exactly what
// Deposit hands to the coordinator.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/hivemind/pkg/retention"
	"github.com/entrhq/hivemind/pkg/team"
)

var ErrLifecycle = errors.New("runtime: lifecycle violation")

var timeNow = time.Now // injected for testability

// State is the incarnation's position in its lifecycle. Transitions are
// strictly sequential with no re-entry; a failed work call is terminal.
type State int

const (
	StateCreated State = iota
	StateRecalled
	StateWorked
	StateDeposited
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRecalled:
		return "recalled"
	case StateWorked:
		return "worked"
	case StateDeposited:
		return "deposited"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TaskFunc is the externally supplied task logic run during Work. It
// may call Recall and Learn any number of times; returning an error
// aborts the incarnation without a deposit.
type TaskFunc func(ctx context.Context, inc *Incarnation) error

// Deposit is the finalized result of one incarnation: the agent's
// updated record plus any staged knowledge-pool updates. The Agent
// field binds the deposit to the name the incarnation was created for;
// the coordinator rejects a deposit submitted under any other name.
type Deposit struct {
	Agent     string
	Record    *team.AgentRecord
	Knowledge map[string]team.Value
}

// Incarnation is one execution lifetime of an agent, from recall to
// deposit. Not safe for concurrent use; an incarnation belongs to the
// goroutine running its task.
type Incarnation struct {
	agent     string
	engine    string
	record    *team.AgentRecord
	state     State
	learned   []team.Finding
	knowledge map[string]team.Value
}

// Option configures a new incarnation.
type Option func(*Incarnation)

// WithEngine tags every finding learned in this incarnation with the
// model or tool that produced it, helping the next incarnation
// calibrate trust in each lesson.
func WithEngine(engine string) Option {
	return func(inc *Incarnation) { inc.engine = engine }
}

// New creates an incarnation for the named agent over a deep copy of
// its record.
func New(agent string, rec *team.AgentRecord, opts ...Option) *Incarnation {
	inc := &Incarnation{
		agent:     agent,
		record:    rec.Clone(),
		knowledge: make(map[string]team.Value),
	}
	inc.record.FillEmpty()
	for _, opt := range opts {
		opt(inc)
	}
	return inc
}

// Agent returns the agent name this incarnation is bound to.
func (inc *Incarnation) Agent() string { return inc.agent }

// State returns the current lifecycle state.
func (inc *Incarnation) State() State { return inc.state }

// Config returns the agent's config layer. Runs read it to adapt
// behavior; they must not change it.
func (inc *Incarnation) Config() map[string]team.Value {
	return inc.record.Config
}

// Stat returns a named experience stat, or the null value when unset.
func (inc *Incarnation) Stat(key string) team.Value {
	return inc.record.Experience.Stats[key]
}

// SetStat records an experience stat the agent tracks across runs.
// Valid in the same window as Learn.
func (inc *Incarnation) SetStat(key string, v team.Value) error {
	if err := inc.learnable(); err != nil {
		return err
	}
	inc.record.Experience.Stats[key] = v
	return nil
}

// Recall returns the findings whose category equals the given one,
// most recent first. An empty category returns all findings. Recall
// never mutates the record; it only advances a fresh incarnation from
// created to recalled.
func (inc *Incarnation) Recall(category string) ([]team.Finding, error) {
	return inc.recall(func(f team.Finding) bool {
		return category == "" || f.Category == category
	})
}

// RecallMatch is Recall with a glob pattern over categories, e.g.
// "parse_*" or "{dead_url,redirect}".
func (inc *Incarnation) RecallMatch(pattern string) ([]team.Finding, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("runtime: bad recall pattern %q: %w", pattern, err)
	}
	return inc.recall(func(f team.Finding) bool {
		return g.Match(f.Category)
	})
}

func (inc *Incarnation) recall(match func(team.Finding) bool) ([]team.Finding, error) {
	switch inc.state {
	case StateCreated:
		inc.state = StateRecalled
	case StateRecalled:
	default:
		return nil, fmt.Errorf("%w: recall in state %s", ErrLifecycle, inc.state)
	}
	findings := inc.record.Experience.Findings
	out := make([]team.Finding, 0, len(findings))
	for i := len(findings) - 1; i >= 0; i-- {
		if match(findings[i]) {
			out = append(out, findings[i])
		}
	}
	return out, nil
}

// Work runs the externally supplied task logic. A task error aborts the
// incarnation: the state becomes failed and nothing can be deposited,
// so partial work never reaches the store. The caller decides whether
// to retry with a fresh incarnation.
func (inc *Incarnation) Work(ctx context.Context, task TaskFunc) error {
	if inc.state != StateRecalled {
		return fmt.Errorf("%w: work in state %s", ErrLifecycle, inc.state)
	}
	if err := task(ctx, inc); err != nil {
		inc.state = StateFailed
		return err
	}
	inc.state = StateWorked
	return nil
}

// Learn records a lesson from this run. The finding is stamped with the
// current time and the incarnation's engine tag, and becomes part of
// the record at Deposit.
func (inc *Incarnation) Learn(category, problem, solution, context string) error {
	return inc.LearnEngine(category, problem, solution, context, inc.engine)
}

// LearnEngine is Learn with an explicit engine override for this one
// finding.
func (inc *Incarnation) LearnEngine(category, problem, solution, context, engine string) error {
	if err := inc.learnable(); err != nil {
		return err
	}
	if category == "" {
		return fmt.Errorf("%w: finding missing category", team.ErrSchema)
	}
	inc.learned = append(inc.learned, team.Finding{
		Category:  category,
		Problem:   problem,
		Solution:  solution,
		Context:   context,
		Engine:    engine,
		Timestamp: timeNow(),
	})
	return nil
}

func (inc *Incarnation) learnable() error {
	if inc.state != StateRecalled && inc.state != StateWorked {
		return fmt.Errorf("%w: learn in state %s", ErrLifecycle, inc.state)
	}
	return nil
}

// Share stages a knowledge-pool update carried in the deposit. The
// coordinator merges staged entries key by key, last writer wins.
func (inc *Incarnation) Share(key string, v team.Value) error {
	if err := inc.learnable(); err != nil {
		return err
	}
	inc.knowledge[key] = v
	return nil
}

// Deposit finalizes the incarnation: this run's findings are appended
// to the record, the run counter is bumped, the retention policy trims
// the result, and the incarnation becomes terminal. Calling Deposit a
// second time, or before work completed, fails with ErrLifecycle.
func (inc *Incarnation) Deposit() (Deposit, error) {
	if inc.state != StateWorked {
		return Deposit{}, fmt.Errorf("%w: deposit in state %s", ErrLifecycle, inc.state)
	}

	// Finalize on a copy so a retention failure leaves the incarnation
	// unchanged instead of half-deposited.
	rec := inc.record.Clone()
	rec.Experience.Findings = append(rec.Experience.Findings, inc.learned...)

	runs := 0
	if n, ok := rec.Experience.Stats["run_count"].IntVal(); ok {
		runs = n
	}
	rec.Experience.Stats["run_count"] = team.Int(runs + 1)

	if err := retention.Apply(rec); err != nil {
		return Deposit{}, err
	}

	inc.record = rec
	inc.state = StateDeposited
	return Deposit{
		Agent:     inc.agent,
		Record:    rec,
		Knowledge: inc.knowledge,
	}, nil
}
