package bssr

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// ErrEntryRequired is returned when a stack is built without an entry configured.
var ErrEntryRequired = errors.New("bssr: no entry configured to build the stack from")

// SetupFunc registers routes and middleware on a freshly constructed stack.
type SetupFunc func(s *Stack) error

// EntryLoader resolves an entry reference into its setup function. Loading happens on every build so
// implementations may return a different function after the entry changed.
type EntryLoader interface {
	LoadEntry(ctx context.Context, entry string) (SetupFunc, error)
}

// EntryLoaderFunc allows casting a function to an [EntryLoader].
type EntryLoaderFunc func(ctx context.Context, entry string) (SetupFunc, error)

// LoadEntry implements [EntryLoader].
func (f EntryLoaderFunc) LoadEntry(ctx context.Context, entry string) (SetupFunc, error) {
	return f(ctx, entry)
}

// StacksOption configures [Stacks].
type StacksOption func(*Stacks)

// WithStackFactory sets how the empty stack handed to the setup function is constructed.
func WithStackFactory(f func() *Stack) StacksOption {
	return func(s *Stacks) { s.newStack = f }
}

// WithStacksLogger sets the logger that is informed about published stacks.
func WithStacksLogger(l Logger) StacksOption {
	return func(s *Stacks) { s.logs = l }
}

// Stacks builds middleware stacks from an entry and keeps track of the current one. Publishing a new
// stack is a single atomic swap: requests that already loaded the previous stack finish with it.
type Stacks struct {
	entry    string
	loader   EntryLoader
	newStack func() *Stack
	logs     Logger

	mu  sync.Mutex
	gen uint64
	cur atomic.Pointer[Stack]
}

// NewStacks inits the manager. No stack is available until [Stacks.Build] succeeded.
func NewStacks(entry string, loader EntryLoader, opts ...StacksOption) *Stacks {
	s := &Stacks{
		entry:    entry,
		loader:   loader,
		newStack: NewStack,
		logs:     NewStdLogger(nil),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Entry returns the configured entry reference.
func (s *Stacks) Entry() string { return s.entry }

// Build loads the entry, runs its setup function against a new stack and publishes it. On failure the
// previously published stack stays current and the error is returned.
func (s *Stacks) Build(ctx context.Context) (*Stack, error) {
	if s.entry == "" {
		return nil, ErrEntryRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	setup, err := s.loader.LoadEntry(ctx, s.entry)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load entry %q", s.entry)
	}

	stack := s.newStack()
	if err := runSetup(setup, stack); err != nil {
		return nil, errors.Wrapf(err, "failed to set up stack from entry %q", s.entry)
	}

	s.gen++
	s.cur.Store(stack)
	s.logs.LogStackReloaded(s.entry, s.gen)

	return stack, nil
}

// Generation returns how many stacks were published so far.
func (s *Stacks) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gen
}

// Current returns the published stack, or nil when none was built yet.
func (s *Stacks) Current() *Stack { return s.cur.Load() }

// Load implements [Source].
func (s *Stacks) Load() BareHandler {
	if cur := s.cur.Load(); cur != nil {
		return cur
	}

	return nil
}

func runSetup(setup SetupFunc, stack *Stack) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.Newf("panic during setup: %v", v)
		}
	}()

	return setup(stack)
}

var _ Source = (*Stacks)(nil)
