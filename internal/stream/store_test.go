package stream

import (
	"testing"
	"time"
)

func TestInMemoryStore_GetSetStream(t *testing.T) {
	store := NewInMemoryStore()

	_, ok := store.GetStream(Token("t1"))
	if ok {
		t.Error("expected not found for empty store")
	}

	st := &Stream{
		Token:   Token("t1"),
		Outputs: make(map[Variant]*Output),
	}
	store.SetStream(st)

	got, ok := store.GetStream(Token("t1"))
	if !ok || got != st {
		t.Errorf("GetStream: ok=%v, got %p want %p", ok, got, st)
	}
}

func TestInMemoryStore_DeleteStream(t *testing.T) {
	store := NewInMemoryStore()
	store.SetStream(&Stream{Token: Token("t1"), Outputs: make(map[Variant]*Output)})

	store.DeleteStream(Token("t1"))
	if _, ok := store.GetStream(Token("t1")); ok {
		t.Error("stream should be gone after DeleteStream")
	}

	// Deleting again is a no-op.
	store.DeleteStream(Token("t1"))
}

func TestInMemoryStore_ListTokens(t *testing.T) {
	store := NewInMemoryStore()
	store.SetStream(&Stream{Token: Token("t1"), Outputs: make(map[Variant]*Output)})
	store.SetStream(&Stream{Token: Token("t2"), Outputs: make(map[Variant]*Output)})

	tokens := store.ListTokens()
	if len(tokens) != 2 {
		t.Errorf("ListTokens: got %v", tokens)
	}
}

func TestNewRegistryWithStore(t *testing.T) {
	// Verify the registry works with an explicitly injected store
	// (persistence abstraction).
	store := NewInMemoryStore()
	reg := NewRegistryWithStore(store, 3, time.Minute, nil)

	st := reg.CreateStream()
	if st.Token == "" {
		t.Fatal("CreateStream should mint a token")
	}

	// State should be in the store we injected.
	got, ok := store.GetStream(st.Token)
	if !ok || got != st {
		t.Error("injected store should contain the stream after CreateStream")
	}
}
