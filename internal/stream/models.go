package stream

// Token is the access token that identifies a live stream.
type Token string

// Variant identifies a delivery variant of a stream (e.g. "hls", "fmp4").
type Variant string

// Segment is a single finite chunk of encoded stream data.
// This also matches the input JSON payload for ingesting segments.
// Immutable once constructed; the buffer never inspects the payload format.
type Segment struct {
	Sequence int64   `json:"sequence"`
	Duration float64 `json:"duration"`
	Payload  []byte  `json:"payload"`
}
