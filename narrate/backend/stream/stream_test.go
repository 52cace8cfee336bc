package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without URL should fail")
	}
}

func TestParseMetadata(t *testing.T) {
	md, err := parseMetadata([]byte(`{"type":"boundary","char_offset":12,"audio_offset_ms":480}`))
	if err != nil {
		t.Fatalf("parseMetadata failed: %v", err)
	}
	if md.Type != "boundary" || md.CharOffset != 12 || md.AudioOffsetMS != 480 {
		t.Errorf("metadata = %+v", md)
	}

	if _, err := parseMetadata([]byte(`{"char_offset":3}`)); err == nil {
		t.Error("metadata without type should fail")
	}
	if _, err := parseMetadata([]byte(`not json`)); err == nil {
		t.Error("invalid JSON should fail")
	}
}

func TestReplayBoundaries(t *testing.T) {
	events := make(chan backend.Event, 16)
	begun := make(chan struct{})
	boundaries := []boundary{
		{charOffset: 0, audioOffset: 0},
		{charOffset: 6, audioOffset: 10 * time.Millisecond},
		{charOffset: 12, audioOffset: 20 * time.Millisecond},
	}

	go replayBoundaries(context.Background(), events, begun, 30*time.Millisecond, boundaries)
	close(begun)

	var got []backend.Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				goto done
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("replay never completed: %v", got)
		}
	}
done:
	if len(got) != 5 {
		t.Fatalf("got %d events, want Started + 3 boundaries + Ended: %v", len(got), got)
	}
	if got[0].Kind != backend.EventStarted {
		t.Errorf("first event = %+v, want Started", got[0])
	}
	wantOffsets := []int{0, 6, 12}
	for i, off := range wantOffsets {
		ev := got[i+1]
		if ev.Kind != backend.EventCharBoundary || ev.CharOffset != off {
			t.Errorf("event %d = %+v, want char boundary at %d", i+1, ev, off)
		}
	}
	if got[4].Kind != backend.EventEnded {
		t.Errorf("last event = %+v, want Ended", got[4])
	}
}

// echoService runs a WebSocket handler that speaks the test protocol.
func echoService(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn, req synthesisRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req synthesisRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("bad request: %v", err)
			return
		}
		handler(ctx, conn, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSpeakCollectsAudioAndBoundaries(t *testing.T) {
	srv := echoService(t, func(ctx context.Context, conn *websocket.Conn, req synthesisRequest) {
		if req.Text != "abcd efgh" {
			t.Errorf("service received %q", req.Text)
		}
		conn.Write(ctx, websocket.MessageBinary, make([]byte, 1000))
		writeJSON(ctx, conn, metadata{Type: "boundary", CharOffset: 0, AudioOffsetMS: 0})
		conn.Write(ctx, websocket.MessageBinary, make([]byte, 1000))
		writeJSON(ctx, conn, metadata{Type: "boundary", CharOffset: 5, AudioOffsetMS: 20})
		writeJSON(ctx, conn, metadata{Type: "end", DurationMS: 40, SampleRate: 24000})
	})

	b, err := New(Config{URL: "ws" + srv.URL[4:]})
	if err != nil {
		t.Fatal(err)
	}

	utt, err := b.Speak(context.Background(), "abcd efgh", backend.SpeakOptions{})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if utt.Audio.Size() != 2000 {
		t.Errorf("audio size = %d, want 2000", utt.Audio.Size())
	}
	if utt.Audio.SampleRate != 24000 {
		t.Errorf("sample rate = %d, want 24000", utt.Audio.SampleRate)
	}
	if utt.Audio.Duration != 40*time.Millisecond {
		t.Errorf("duration = %v, want 40ms", utt.Audio.Duration)
	}

	utt.Begin()
	var offsets []int
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-utt.Events:
			if !ok {
				goto done
			}
			if ev.Kind == backend.EventCharBoundary {
				offsets = append(offsets, ev.CharOffset)
			}
		case <-deadline:
			t.Fatal("events never completed")
		}
	}
done:
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 5 {
		t.Errorf("boundary offsets = %v, want [0 5]", offsets)
	}
}

func TestSpeakServiceError(t *testing.T) {
	srv := echoService(t, func(ctx context.Context, conn *websocket.Conn, req synthesisRequest) {
		writeJSON(ctx, conn, metadata{Type: "error", Message: "voice not found"})
	})

	b, err := New(Config{URL: "ws" + srv.URL[4:]})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Speak(context.Background(), "words", backend.SpeakOptions{}); err == nil {
		t.Fatal("Speak should surface a service error")
	}
}

func TestSpeakNoAudio(t *testing.T) {
	srv := echoService(t, func(ctx context.Context, conn *websocket.Conn, req synthesisRequest) {
		writeJSON(ctx, conn, metadata{Type: "end", DurationMS: 0})
	})

	b, err := New(Config{URL: "ws" + srv.URL[4:]})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Speak(context.Background(), "words", backend.SpeakOptions{}); err == nil {
		t.Fatal("Speak should reject a session with no audio")
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, md metadata) {
	msg, _ := json.Marshal(md)
	conn.Write(ctx, websocket.MessageText, msg)
}
