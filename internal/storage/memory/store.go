// Package memory implements the registry entity store in process memory.
// Each transaction works on a private copy of the state that replaces the
// live state only when the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/pkg/chain"
)

var _ registry.Store = (*Store)(nil)

// Option customizes the store
type Option func(*Store)

// WithClock overrides the time source used for created/minted timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// WithSimulator sets the simulator that derives token ids and tx hashes
func WithSimulator(sim *chain.Simulator) Option {
	return func(s *Store) {
		if sim != nil {
			s.simulator = sim
		}
	}
}

// CommitHook receives the candidate state of a commit while the writer lock
// is held. A non-nil error aborts the commit and leaves the live state as is.
type CommitHook func(ctx context.Context, snapshot registry.Snapshot) error

// WithCommitHook installs a hook that runs before every commit and restore
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commitHook = hook }
}

// Store is a copy-on-write in-memory entity store
type Store struct {
	mu         sync.RWMutex
	state      state
	nowFn      func() time.Time
	simulator  *chain.Simulator
	commitHook CommitHook
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:     newState(),
		nowFn:     func() time.Time { return time.Now().UTC() },
		simulator: chain.NewSimulator("", ""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTransaction runs fn against a private copy of the state under the
// writer lock and commits the copy only if fn and the commit hook return nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx registry.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone(), now: s.nowFn(), simulator: s.simulator}
	tx.reader = reader{st: &tx.state}
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.runHook(context.WithoutCancel(ctx), &tx.state); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *Store) runHook(ctx context.Context, candidate *state) error {
	if s.commitHook == nil {
		return nil
	}
	if err := s.commitHook(ctx, candidate.snapshot()); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// View runs fn against the committed state under the reader lock. Stored
// values are never mutated in place, so readers share the live tables.
func (s *Store) View(ctx context.Context, fn func(v registry.View) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(reader{st: &s.state})
}

// ExportState returns a deep copy of every collection
func (s *Store) ExportState() registry.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// ImportState replaces the store contents with the snapshot without running
// the commit hook. Durable stores use it to hydrate from their own rows.
func (s *Store) ImportState(snapshot registry.Snapshot) {
	st := stateFrom(snapshot)
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Restore replaces the store contents with the snapshot once the commit hook
// accepts it
func (s *Store) Restore(ctx context.Context, snapshot registry.Snapshot) error {
	st := stateFrom(snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.runHook(ctx, &st); err != nil {
		return err
	}
	s.state = st
	return nil
}

func stateFrom(snapshot registry.Snapshot) state {
	st := newState()
	for _, p := range snapshot.Projects {
		st.projects.insert(p.ID, p.Clone())
	}
	for _, c := range snapshot.Credits {
		st.credits.insert(c.ID, c.Clone())
		st.tokens[c.TokenID] = c.ID
	}
	for _, t := range snapshot.Transactions {
		st.transactions.insert(t.ID, t.Clone())
	}
	for _, r := range snapshot.SensorReadings {
		st.readings.insert(r.ID, r.Clone())
	}
	for _, u := range snapshot.Users {
		st.users.insert(u.ID, u.Clone())
		st.usernames[usernameKey(u.Username)] = u.ID
	}
	st.tokenSeq = snapshot.TokenSequence
	return st
}

// Close is a no-op; it lets the in-memory store stand in for the durable ones
func (s *Store) Close() error {
	return nil
}

// =====================================================
// State
// =====================================================

type table[T any] struct {
	order []string
	rows  map[string]T
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[string]T)}
}

func (t table[T]) clone() table[T] {
	return table[T]{order: slices.Clone(t.order), rows: maps.Clone(t.rows)}
}

func (t *table[T]) insert(id string, v T) {
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t table[T]) list(cp func(T) T) []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, cp(t.rows[id]))
	}
	return out
}

type state struct {
	projects     table[registry.Project]
	credits      table[registry.CarbonCredit]
	transactions table[registry.Transaction]
	readings     table[registry.SensorReading]
	users        table[registry.User]

	tokens    map[string]string // token id -> credit id
	usernames map[string]string // lowercased username -> user id
	tokenSeq  uint64
}

func newState() state {
	return state{
		projects:     newTable[registry.Project](),
		credits:      newTable[registry.CarbonCredit](),
		transactions: newTable[registry.Transaction](),
		readings:     newTable[registry.SensorReading](),
		users:        newTable[registry.User](),
		tokens:       make(map[string]string),
		usernames:    make(map[string]string),
	}
}

func (s state) clone() state {
	return state{
		projects:     s.projects.clone(),
		credits:      s.credits.clone(),
		transactions: s.transactions.clone(),
		readings:     s.readings.clone(),
		users:        s.users.clone(),
		tokens:       maps.Clone(s.tokens),
		usernames:    maps.Clone(s.usernames),
		tokenSeq:     s.tokenSeq,
	}
}

func (s *state) snapshot() registry.Snapshot {
	r := reader{st: s}
	return registry.Snapshot{
		Projects:       r.ListProjects(),
		Credits:        r.ListCredits(),
		Transactions:   r.ListTransactions(),
		SensorReadings: r.ListSensorReadings(),
		Users:          r.ListUsers(),
		TokenSequence:  s.tokenSeq,
	}
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// =====================================================
// Reads
// =====================================================

type reader struct {
	st *state
}

func (r reader) FindProject(id string) (registry.Project, bool) {
	p, ok := r.st.projects.get(id)
	return p.Clone(), ok
}

func (r reader) ListProjects() []registry.Project {
	return r.st.projects.list(registry.Project.Clone)
}

func (r reader) FindCredit(id string) (registry.CarbonCredit, bool) {
	c, ok := r.st.credits.get(id)
	return c.Clone(), ok
}

func (r reader) FindCreditByToken(tokenID string) (registry.CarbonCredit, bool) {
	id, ok := r.st.tokens[tokenID]
	if !ok {
		return registry.CarbonCredit{}, false
	}
	return r.FindCredit(id)
}

func (r reader) ListCredits() []registry.CarbonCredit {
	return r.st.credits.list(registry.CarbonCredit.Clone)
}

func (r reader) FindTransaction(id string) (registry.Transaction, bool) {
	t, ok := r.st.transactions.get(id)
	return t.Clone(), ok
}

func (r reader) ListTransactions() []registry.Transaction {
	return r.st.transactions.list(registry.Transaction.Clone)
}

func (r reader) ListSensorReadings() []registry.SensorReading {
	return r.st.readings.list(registry.SensorReading.Clone)
}

func (r reader) FindUser(id string) (registry.User, bool) {
	u, ok := r.st.users.get(id)
	return u.Clone(), ok
}

func (r reader) FindUserByUsername(username string) (registry.User, bool) {
	id, ok := r.st.usernames[usernameKey(username)]
	if !ok {
		return registry.User{}, false
	}
	return r.FindUser(id)
}

func (r reader) ListUsers() []registry.User {
	return r.st.users.list(registry.User.Clone)
}
