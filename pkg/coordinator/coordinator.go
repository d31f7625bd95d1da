// Package coordinator merges the deposits of concurrently running
// agent incarnations into one consistent team state and commits it with
// a single atomic save. A round accepts at most one deposit per agent,
// enforces that every deposit comes from the runtime it was dispatched
// for, and detects on-disk drift between load and commit instead of
// silently picking a winner.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/entrhq/hivemind/pkg/logging"
	"github.com/entrhq/hivemind/pkg/runtime"
	"github.com/entrhq/hivemind/pkg/store"
	"github.com/entrhq/hivemind/pkg/team"
)

var ErrOwnership = errors.New("coordinator: ownership violation")
var ErrConflict = errors.New("coordinator: conflicting write")

var (
	debugLog     *logging.Logger
	debugLogOnce sync.Once
)

func log() *logging.Logger {
	debugLogOnce.Do(func() {
		debugLog, _ = logging.NewLogger("coordinator")
	})
	return debugLog
}

type slotState int

const (
	slotPending slotState = iota
	slotSubmitted
	slotFailed
)

type slot struct {
	state   slotState
	deposit runtime.Deposit
	order   int
}

// Round is one batch of concurrent incarnations whose deposits are
// merged and committed together. Safe for concurrent Submit calls.
type Round struct {
	id   string
	team *team.Team
	rev  store.Revision

	mu        sync.Mutex
	slots     map[string]*slot
	submitted int
	closed    bool
}

// BeginRound opens a round over a loaded team and the revision captured
// when it was loaded. The round works on a deep copy; the caller's team
// is never mutated.
func BeginRound(t *team.Team, rev store.Revision) *Round {
	return &Round{
		id:    uuid.New().String(),
		team:  t.Clone(),
		rev:   rev,
		slots: make(map[string]*slot),
	}
}

// ID returns the round's unique identifier.
func (r *Round) ID() string { return r.id }

// Dispatch registers a slot for the named agent and returns a fresh
// incarnation bound to it. The agent must already exist in the team;
// dispatching the same agent twice in one round is a conflict.
func (r *Round) Dispatch(name string, opts ...runtime.Option) (*runtime.Incarnation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.team.Agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", team.ErrUnknownAgent, name)
	}
	if err := r.register(name); err != nil {
		return nil, err
	}
	return runtime.New(name, rec, opts...), nil
}

// Expect registers a slot for an agent whose incarnation runs outside
// this coordinator (another process, another machine). Its finished
// deposit is handed in through Submit.
func (r *Round) Expect(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.team.Agents[name]; !ok {
		return fmt.Errorf("%w: %q", team.ErrUnknownAgent, name)
	}
	return r.register(name)
}

func (r *Round) register(name string) error {
	if r.closed {
		return fmt.Errorf("%w: round %s is closed", runtime.ErrLifecycle, r.id)
	}
	if _, ok := r.slots[name]; ok {
		return fmt.Errorf("%w: agent %q dispatched twice in round %s", ErrConflict, name, r.id)
	}
	r.slots[name] = &slot{state: slotPending}
	return nil
}

// Submit accepts a finished deposit for the named agent. A deposit
// bound to a different agent than the slot it targets is an ownership
// violation and leaves the round untouched. A second deposit for the
// same slot is a conflict. A slot reported failed no longer accepts a
// deposit, so a timed-out runtime cannot commit late.
func (r *Round) Submit(name string, dep runtime.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%w: round %s is closed", runtime.ErrLifecycle, r.id)
	}
	s, ok := r.slots[name]
	if !ok {
		return fmt.Errorf("%w: agent %q was not dispatched in round %s", ErrOwnership, name, r.id)
	}
	if dep.Agent != name {
		return fmt.Errorf("%w: deposit from runtime %q submitted as %q", ErrOwnership, dep.Agent, name)
	}
	switch s.state {
	case slotSubmitted:
		return fmt.Errorf("%w: agent %q already deposited in round %s", ErrConflict, name, r.id)
	case slotFailed:
		return fmt.Errorf("%w: slot for agent %q was reported failed", runtime.ErrLifecycle, name)
	}
	if dep.Record == nil {
		return fmt.Errorf("%w: agent %q deposited nil record", team.ErrSchema, name)
	}
	s.state = slotSubmitted
	s.deposit = dep
	s.order = r.submitted
	r.submitted++
	return nil
}

// Fail marks a dispatched slot as abandoned, typically after the
// caller's timeout policy gave up on the runtime. Failing a slot that
// already deposited is a conflict; the accepted deposit is not dropped.
func (r *Round) Fail(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[name]
	if !ok {
		return fmt.Errorf("%w: agent %q was not dispatched in round %s", ErrOwnership, name, r.id)
	}
	if s.state == slotSubmitted {
		return fmt.Errorf("%w: agent %q already deposited in round %s", ErrConflict, name, r.id)
	}
	s.state = slotFailed
	return nil
}

// Run dispatches an incarnation per task, executes them concurrently,
// and submits each successful deposit. Task failures abandon their
// slot; the first error is returned after every task has finished, and
// successful deposits from the same batch stay in the round.
func (r *Round) Run(ctx context.Context, tasks map[string]runtime.TaskFunc, opts ...runtime.Option) error {
	incs := make(map[string]*runtime.Incarnation, len(tasks))
	for name := range tasks {
		inc, err := r.Dispatch(name, opts...)
		if err != nil {
			return err
		}
		incs[name] = inc
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(tasks))
	for name, task := range tasks {
		wg.Add(1)
		go func(name string, inc *runtime.Incarnation, task runtime.TaskFunc) {
			defer wg.Done()
			if _, err := inc.Recall(""); err != nil {
				errs <- err
				return
			}
			if err := inc.Work(ctx, task); err != nil {
				_ = r.Fail(name)
				errs <- fmt.Errorf("agent %q: %w", name, err)
				return
			}
			dep, err := inc.Deposit()
			if err != nil {
				_ = r.Fail(name)
				errs <- err
				return
			}
			errs <- r.Submit(name, dep)
		}(name, incs[name], task)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Deposits returns the accepted deposits in submission order. After a
// commit fails with ErrConflict the caller reloads the team and can
// reapply these against a fresh round instead of redoing the work.
func (r *Round) Deposits() []runtime.Deposit {
	r.mu.Lock()
	defer r.mu.Unlock()
	ordered := make([]*slot, 0, r.submitted)
	for _, s := range r.slots {
		if s.state == slotSubmitted {
			ordered = append(ordered, s)
		}
	}
	sortSlots(ordered)
	out := make([]runtime.Deposit, len(ordered))
	for i, s := range ordered {
		out[i] = s.deposit
	}
	return out
}

func sortSlots(slots []*slot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].order < slots[j].order })
}

// Reapply registers and submits previously accepted deposits, typically
// taken from a round that lost its commit to ErrConflict, against this
// fresh round. Deposits whose agent conflicts again surface the usual
// Submit errors.
func (r *Round) Reapply(deps []runtime.Deposit) error {
	for _, dep := range deps {
		if err := r.Expect(dep.Agent); err != nil {
			return err
		}
		if err := r.Submit(dep.Agent, dep); err != nil {
			return err
		}
	}
	return nil
}

// Commit merges every accepted deposit into the team and writes the
// result with exactly one save, under the artifact's advisory lock. If
// the artifact changed on disk since the round's team was loaded the
// commit fails with ErrConflict and nothing is written; the round stays
// open so its deposits remain readable for reapplication.
func (r *Round) Commit(path string, opts ...store.SaveOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%w: round %s is closed", runtime.ErrLifecycle, r.id)
	}

	lock, err := store.AcquireLock(path)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	cur, err := store.Stat(path)
	if err != nil {
		return err
	}
	if !cur.Equal(r.rev) {
		return fmt.Errorf("%w: artifact %s changed since round %s was opened", ErrConflict, path, r.id)
	}

	ordered := make([]*slot, 0, r.submitted)
	for _, s := range r.slots {
		if s.state == slotSubmitted {
			ordered = append(ordered, s)
		}
	}
	sortSlots(ordered)
	for name, s := range r.slots {
		if s.state != slotSubmitted {
			continue
		}
		if err := team.MergeSection(r.team, name, s.deposit.Record); err != nil {
			return err
		}
	}
	for _, s := range ordered {
		for k, v := range s.deposit.Knowledge {
			r.team.Knowledge[k] = v.Clone()
		}
	}

	if err := team.Validate(r.team); err != nil {
		return err
	}
	if err := store.Save(r.team, path, opts...); err != nil {
		return err
	}
	r.closed = true
	log().Debugf("round %s committed %d deposit(s) to %s", r.id, len(ordered), path)
	return nil
}

// Abort closes the round without writing anything.
func (r *Round) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
