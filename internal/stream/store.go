package stream

// Store is the persistence abstraction for stream records. Implementations
// can be in-memory or remote. The Registry uses Store for all reads and
// writes; callers of Registry do not need to know which Store is used.
type Store interface {
	GetStream(token Token) (*Stream, bool)
	SetStream(s *Stream)
	DeleteStream(token Token)
	ListTokens() []Token
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	streams map[Token]*Stream
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		streams: make(map[Token]*Stream),
	}
}

// GetStream implements Store.GetStream.
func (s *InMemoryStore) GetStream(token Token) (*Stream, bool) {
	st, ok := s.streams[token]
	return st, ok
}

// SetStream implements Store.SetStream.
func (s *InMemoryStore) SetStream(st *Stream) {
	s.streams[st.Token] = st
}

// DeleteStream implements Store.DeleteStream.
func (s *InMemoryStore) DeleteStream(token Token) {
	delete(s.streams, token)
}

// ListTokens implements Store.ListTokens.
func (s *InMemoryStore) ListTokens() []Token {
	tokens := make([]Token, 0, len(s.streams))
	for token := range s.streams {
		tokens = append(tokens, token)
	}
	return tokens
}
