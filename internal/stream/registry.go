package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stream is the registry's record of one live source: an access token and the
// set of delivery outputs created for it so far. Outputs are created lazily,
// when a consumer first requests that variant.
type Stream struct {
	Token   Token
	Outputs map[Variant]*Output
}

// IdleFunc is invoked when an output goes idle, identifying it by stream
// token and variant. It runs on the timer goroutine and must not block.
type IdleFunc func(token Token, variant Variant)

// Registry is the concurrency-safe mapping from access tokens to live
// streams and their outputs. It owns output creation and teardown; request
// handlers hold a Registry rather than any shared global state.
type Registry struct {
	mu          sync.RWMutex
	store       Store
	maxSegments int
	idleTimeout time.Duration
	onIdle      IdleFunc
}

// NewRegistry constructs a registry with a default in-memory store.
// maxSegments and idleTimeout bound every output it creates; zero values
// select the defaults. onIdle may be nil.
func NewRegistry(maxSegments int, idleTimeout time.Duration, onIdle IdleFunc) *Registry {
	return NewRegistryWithStore(NewInMemoryStore(), maxSegments, idleTimeout, onIdle)
}

// NewRegistryWithStore constructs a registry that uses the given Store.
// Useful for testing or for plugging in a different persistence backend.
func NewRegistryWithStore(store Store, maxSegments int, idleTimeout time.Duration, onIdle IdleFunc) *Registry {
	return &Registry{
		store:       store,
		maxSegments: maxSegments,
		idleTimeout: idleTimeout,
		onIdle:      onIdle,
	}
}

// CreateStream registers a new stream under a freshly minted access token
// and returns it. Outputs are created later, on first consumer request.
func (r *Registry) CreateStream() *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &Stream{
		Token:   Token(uuid.NewString()),
		Outputs: make(map[Variant]*Output),
	}
	r.store.SetStream(st)
	return st
}

// GetStream returns the stream registered under token.
func (r *Registry) GetStream(token Token) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetStream(token)
}

// GetOrCreateOutput returns the stream's output for the given variant,
// creating it on first request. The second return is false if the token is
// unknown or the variant has no registered profile.
func (r *Registry) GetOrCreateOutput(token Token, variant Variant) (*Output, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.GetStream(token)
	if !ok {
		return nil, false
	}
	if out, ok := st.Outputs[variant]; ok {
		return out, true
	}

	profile, ok := LookupProfile(variant)
	if !ok {
		return nil, false
	}

	var onIdle func()
	if r.onIdle != nil {
		cb := r.onIdle
		onIdle = func() { cb(token, variant) }
	}
	out := NewOutput(profile, r.maxSegments, r.idleTimeout, onIdle)
	st.Outputs[variant] = out
	return out, true
}

// RemoveStream tears down all of the stream's outputs and forgets the token.
// Removing an unknown token is a no-op for idempotency.
func (r *Registry) RemoveStream(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.GetStream(token)
	if !ok {
		return
	}
	for _, out := range st.Outputs {
		out.Cleanup()
	}
	r.store.DeleteStream(token)
}

// ActiveOutputCount returns the number of outputs across all streams.
// Used for metrics.
func (r *Registry) ActiveOutputCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, token := range r.store.ListTokens() {
		if st, ok := r.store.GetStream(token); ok {
			n += len(st.Outputs)
		}
	}
	return n
}

// IdleOutputCount returns the number of outputs whose idle timer has fired
// without a subsequent reset. Used for metrics.
func (r *Registry) IdleOutputCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, token := range r.store.ListTokens() {
		st, ok := r.store.GetStream(token)
		if !ok {
			continue
		}
		for _, out := range st.Outputs {
			if out.Idle() {
				n++
			}
		}
	}
	return n
}
