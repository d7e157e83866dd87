package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"stream-buffer/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// DefaultPollTimeout bounds how long a long-poll read may block.
const DefaultPollTimeout = 30 * time.Second

// maxPollTimeout caps the client-requested poll duration.
const maxPollTimeout = 60 * time.Second

// Handler exposes buffer HTTP endpoints using go-chi.
type Handler struct {
	reg         *Registry
	log         *slog.Logger
	metrics     *metrics.Metrics
	pollTimeout time.Duration
	upgrader    websocket.Upgrader
}

// NewHandler returns a Handler that uses the given Registry, Logger, and
// optional Metrics. Metrics may be nil to disable metric recording (e.g. in
// tests). pollTimeout <= 0 selects DefaultPollTimeout.
func NewHandler(reg *Registry, log *slog.Logger, m *metrics.Metrics, pollTimeout time.Duration) *Handler {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Handler{
		reg:         reg,
		log:         log,
		metrics:     m,
		pollTimeout: pollTimeout,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Routes mounts all stream endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/streams", h.CreateStream)
	r.Route("/streams/{token}", func(r chi.Router) {
		r.Post("/end", h.EndStream)
		r.Route("/outputs/{variant}", func(r chi.Router) {
			r.Post("/segments", h.PutSegment)
			r.Get("/segments", h.ListSegments)
			r.Get("/segments/{sequence}", h.GetSegment)
			r.Get("/playlist.m3u8", h.GetPlaylist)
			r.Get("/next", h.NextSegment)
			r.Get("/ws", h.ServeWS)
		})
	})
}

// CreateStream handles POST /streams: registers a new stream and returns its
// access token.
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	st := h.reg.CreateStream()

	h.log.Info("stream created", slog.String("token", string(st.Token)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"token": string(st.Token)})
}

// PutSegment handles POST /streams/{token}/outputs/{variant}/segments.
// Body: { "sequence": 42, "duration": 2.0, "payload": "<base64>" }.
func (h *Handler) PutSegment(w http.ResponseWriter, r *http.Request) {
	out, ok := h.output(w, r)
	if !ok {
		return
	}

	var seg Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if seg.Sequence < 0 || seg.Duration <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out.Put(seg)

	h.log.Debug("segment stored",
		slog.String("token", chi.URLParam(r, "token")),
		slog.String("variant", chi.URLParam(r, "variant")),
		slog.Int64("sequence", seg.Sequence))
	w.WriteHeader(http.StatusCreated)
	if h.metrics != nil {
		h.metrics.IncSegmentsPut()
	}
}

// ListSegments handles GET /streams/{token}/outputs/{variant}/segments and
// returns the ordered retained sequence numbers.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	out, ok := h.output(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out.Segments())
}

// GetSegment handles GET /streams/{token}/outputs/{variant}/segments/{sequence}
// and serves the raw payload with the profile's content type.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	out, ok := h.output(w, r)
	if !ok {
		return
	}

	sequence, err := strconv.ParseInt(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	seg, ok := out.GetSegment(sequence)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", out.Profile().ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(seg.Payload)
}

// GetPlaylist handles GET /streams/{token}/outputs/{variant}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	out, ok := h.output(w, r)
	if !ok {
		return
	}

	m3u8 := BuildLivePlaylist(out.Snapshot(), out.TargetDuration())

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

// NextSegment handles GET /streams/{token}/outputs/{variant}/next: a
// long-poll that blocks until a segment newer than the output's cursor
// arrives. Responds 204 when the poll times out or the stream is torn down.
func (h *Handler) NextSegment(w http.ResponseWriter, r *http.Request) {
	out, ok := h.output(w, r)
	if !ok {
		return
	}

	timeout := h.pollTimeout
	if s := r.URL.Query().Get("poll"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	if timeout > maxPollTimeout {
		timeout = maxPollTimeout
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	seg, ok := out.Recv(ctx)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(seg)
}

// ServeWS handles GET /streams/{token}/outputs/{variant}/ws: upgrades to a
// websocket and pushes each new segment as a JSON message until the stream
// is torn down or the client disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	out, ok := h.output(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain the connection so close frames from the client are processed.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	reader := out.NewReader()
	for {
		seg, ok := reader.Recv(ctx)
		if !ok {
			return
		}
		if err := conn.WriteJSON(seg); err != nil {
			return
		}
	}
}

// EndStream handles POST /streams/{token}/end. Ending an unknown stream is a
// no-op for idempotency.
func (h *Handler) EndStream(w http.ResponseWriter, r *http.Request) {
	token := Token(chi.URLParam(r, "token"))
	if token == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.reg.RemoveStream(token)

	h.log.Info("stream ended", slog.String("token", string(token)))
	w.WriteHeader(http.StatusOK)
	if h.metrics != nil {
		h.metrics.IncStreamsEnded()
	}
}

// output resolves the token and variant path params to an Output, writing
// the error status itself when the lookup fails.
func (h *Handler) output(w http.ResponseWriter, r *http.Request) (*Output, bool) {
	token := Token(chi.URLParam(r, "token"))
	variant := Variant(chi.URLParam(r, "variant"))

	if token == "" || variant == "" {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}

	out, ok := h.reg.GetOrCreateOutput(token, variant)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return nil, false
	}
	return out, true
}
