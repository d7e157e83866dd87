package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"stream-buffer/internal/platform/logger"
	"stream-buffer/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func newTestHandler(t *testing.T) (*Handler, *Registry) {
	t.Helper()
	reg := NewRegistry(3, time.Minute, nil)
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(reg, log, nil, 2*time.Second), reg
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

// createStream POSTs /streams and returns the minted token.
func createStream(t *testing.T, r http.Handler) Token {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/streams", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create stream: expected 201, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("create stream body: %v", err)
	}
	if body["token"] == "" {
		t.Fatal("create stream: empty token")
	}
	return Token(body["token"])
}

func putSegment(t *testing.T, r http.Handler, token Token, variant string, s Segment) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(s)
	url := fmt.Sprintf("/streams/%s/outputs/%s/segments", token, variant)
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_PutSegment(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	rec := putSegment(t, r, token, "hls", Segment{Sequence: 42, Duration: 2.0, Payload: []byte("ts-bytes")})
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_PutSegment_bad_request(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	t.Run("invalid_body", func(t *testing.T) {
		url := fmt.Sprintf("/streams/%s/outputs/hls/segments", token)
		req := httptest.NewRequest(http.MethodPost, url, strings.NewReader("not json"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("non_positive_duration", func(t *testing.T) {
		rec := putSegment(t, r, token, "hls", Segment{Sequence: 1, Duration: 0})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandler_unknown_token_and_variant(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	t.Run("unknown_token", func(t *testing.T) {
		rec := putSegment(t, r, Token("missing"), "hls", Segment{Sequence: 1, Duration: 2.0})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("unknown_variant", func(t *testing.T) {
		rec := putSegment(t, r, token, "webm", Segment{Sequence: 1, Duration: 2.0})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandler_GetPlaylist(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	for i := int64(38); i <= 40; i++ {
		rec := putSegment(t, r, token, "hls", Segment{Sequence: i, Duration: 2.0, Payload: []byte("x")})
		if rec.Code != http.StatusCreated {
			t.Fatalf("put %d: expected 201, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/streams/%s/outputs/hls/playlist.m3u8", token), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("expected playlist content type, got %s", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "#EXTM3U") || !strings.Contains(body, "#EXT-X-MEDIA-SEQUENCE:38") {
		t.Errorf("unexpected playlist body: %s", body)
	}
}

func TestHandler_GetSegment_payload(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	payload := []byte("raw mpegts bytes")
	putSegment(t, r, token, "hls", Segment{Sequence: 7, Duration: 2.0, Payload: payload})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/streams/%s/outputs/hls/segments/7", token), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp2t" {
		t.Errorf("expected hls content type, got %s", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("payload mismatch: got %q", rec.Body.Bytes())
	}

	t.Run("evicted_sequence_not_found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/streams/%s/outputs/hls/segments/999", token), nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("bad_sequence", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/streams/%s/outputs/hls/segments/abc", token), nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandler_ListSegments(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	for i := int64(1); i <= 4; i++ {
		putSegment(t, r, token, "hls", Segment{Sequence: i, Duration: 2.0})
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/streams/%s/outputs/hls/segments", token), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var seqs []int64
	if err := json.Unmarshal(rec.Body.Bytes(), &seqs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(seqs) != 3 || seqs[0] != 2 || seqs[2] != 4 {
		t.Errorf("window of 3 should hold [2 3 4], got %v", seqs)
	}
}

func TestHandler_NextSegment_long_poll(t *testing.T) {
	h, reg := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	// Create the output up front so the delayed producer writes to the same
	// instance the poll is blocked on.
	out, ok := reg.GetOrCreateOutput(token, "hls")
	if !ok {
		t.Fatal("output not created")
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		out.Put(Segment{Sequence: 1, Duration: 2.0, Payload: []byte("x")})
	}()

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/streams/%s/outputs/hls/next", token), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Segment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", got.Sequence)
	}
}

func TestHandler_NextSegment_poll_timeout(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/streams/%s/outputs/hls/next?poll=1", token), nil)
	rec := httptest.NewRecorder()
	start := time.Now()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 on poll timeout, got %d", rec.Code)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("poll did not respect the requested timeout")
	}
}

func TestHandler_EndStream(t *testing.T) {
	h, reg := newTestHandler(t)
	r := newTestRouter(h)
	token := createStream(t, r)
	putSegment(t, r, token, "hls", Segment{Sequence: 1, Duration: 2.0})

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/streams/%s/end", token), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := reg.GetStream(token); ok {
		t.Error("stream should be removed after end")
	}

	t.Run("idempotent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/streams/%s/end", token), nil))
		if rec.Code != http.StatusOK {
			t.Errorf("second end: expected 200, got %d", rec.Code)
		}
	})
}

func TestHandler_ServeWS_pushes_segments(t *testing.T) {
	h, reg := newTestHandler(t)

	// Mount the full middleware stack: the upgrade must still be able to
	// hijack the connection through the wrapped response writers.
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(metrics.New()))
	h.Routes(r)
	token := createStream(t, r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		fmt.Sprintf("/streams/%s/outputs/hls/ws", token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// Give the server loop time to start waiting before producing.
	time.Sleep(100 * time.Millisecond)

	out, ok := reg.GetOrCreateOutput(token, "hls")
	if !ok {
		t.Fatal("output not found")
	}
	out.Put(Segment{Sequence: 5, Duration: 2.0, Payload: []byte("x")})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Segment
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Sequence != 5 {
		t.Errorf("pushed segment: got sequence %d want 5", got.Sequence)
	}
}
