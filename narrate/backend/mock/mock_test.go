package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/francktshibala/bookbridge-narrator/narrate/backend"
)

func drain(t *testing.T, utt *backend.Utterance) []backend.Event {
	t.Helper()
	var got []backend.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-utt.Events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("events never completed: %v", got)
		}
	}
}

func TestDefaultLocalScript(t *testing.T) {
	b := New(mustFast())
	utt, err := b.Speak(context.Background(), "one two three", backend.SpeakOptions{})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if utt.Audio == nil || utt.Audio.Duration <= 0 {
		t.Fatal("mock produced no audio")
	}

	utt.Begin()
	got := drain(t, utt)

	if got[0].Kind != backend.EventStarted {
		t.Errorf("first event = %+v, want Started", got[0])
	}
	var indices []int
	for _, ev := range got {
		if ev.Kind == backend.EventWordBoundary {
			indices = append(indices, ev.WordIndex)
		}
	}
	if len(indices) != 3 {
		t.Fatalf("boundaries = %v, want 3", indices)
	}
	for i, idx := range indices {
		if idx != i {
			t.Fatalf("boundaries = %v, want 0..2", indices)
		}
	}
	if got[len(got)-1].Kind != backend.EventEnded {
		t.Errorf("last event = %+v, want Ended", got[len(got)-1])
	}
}

func TestDefaultStreamingScript(t *testing.T) {
	b := New(WithProvider(backend.ProviderRemoteStreaming), mustFast())
	utt, err := b.Speak(context.Background(), "ab cde f", backend.SpeakOptions{})
	if err != nil {
		t.Fatal(err)
	}
	utt.Begin()

	var offsets []int
	for _, ev := range drain(t, utt) {
		if ev.Kind == backend.EventCharBoundary {
			offsets = append(offsets, ev.CharOffset)
		}
	}
	expected := []int{0, 3, 7}
	if len(offsets) != len(expected) {
		t.Fatalf("offsets = %v, want %v", offsets, expected)
	}
	for i := range expected {
		if offsets[i] != expected[i] {
			t.Fatalf("offsets = %v, want %v", offsets, expected)
		}
	}
}

func TestDefaultStreamingScriptCountsRunes(t *testing.T) {
	b := New(WithProvider(backend.ProviderRemoteStreaming), mustFast())
	// "café" is five bytes but four characters; offsets must advance by
	// characters so they line up with rune-based token offsets.
	utt, err := b.Speak(context.Background(), "café au lait", backend.SpeakOptions{})
	if err != nil {
		t.Fatal(err)
	}
	utt.Begin()

	var offsets []int
	for _, ev := range drain(t, utt) {
		if ev.Kind == backend.EventCharBoundary {
			offsets = append(offsets, ev.CharOffset)
		}
	}
	expected := []int{0, 5, 8}
	if len(offsets) != len(expected) {
		t.Fatalf("offsets = %v, want %v", offsets, expected)
	}
	for i := range expected {
		if offsets[i] != expected[i] {
			t.Fatalf("offsets = %v, want %v", offsets, expected)
		}
	}
}

func TestDefaultBatchScript(t *testing.T) {
	b := New(WithProvider(backend.ProviderRemoteBatch), mustFast())
	utt, err := b.Speak(context.Background(), "some words", backend.SpeakOptions{})
	if err != nil {
		t.Fatal(err)
	}
	utt.Begin()

	got := drain(t, utt)
	if len(got) != 2 || got[0].Kind != backend.EventStarted || got[1].Kind != backend.EventEnded {
		t.Errorf("events = %v, want [started ended] with no boundaries", got)
	}
	if got[0].Duration <= 0 {
		t.Error("Started event carries no duration")
	}
}

func TestSpeakError(t *testing.T) {
	boom := errors.New("no voice")
	b := New(WithSpeakError(boom))
	if _, err := b.Speak(context.Background(), "words", backend.SpeakOptions{}); !errors.Is(err, boom) {
		t.Errorf("Speak = %v, want %v", err, boom)
	}
	if got := b.SpeakCalls(); got != 1 {
		t.Errorf("SpeakCalls = %d, want 1", got)
	}
}

func TestScriptedEvents(t *testing.T) {
	b := New(WithScript([]Step{
		{Event: backend.Event{Kind: backend.EventStarted}},
		{Event: backend.Event{Kind: backend.EventWordBoundary, WordIndex: 2}},
		{Event: backend.Event{Kind: backend.EventEnded}},
		{Event: backend.Event{Kind: backend.EventWordBoundary, WordIndex: 9}}, // never reached
	}))
	utt, err := b.Speak(context.Background(), "a b c", backend.SpeakOptions{})
	if err != nil {
		t.Fatal(err)
	}
	utt.Begin()

	got := drain(t, utt)
	if len(got) != 3 {
		t.Fatalf("events = %v, want script to stop at Ended", got)
	}
	if got[1].WordIndex != 2 {
		t.Errorf("boundary index = %d, want 2", got[1].WordIndex)
	}
}

func TestSpeakRecordsText(t *testing.T) {
	b := New(mustFast())
	if _, err := b.Speak(context.Background(), "remember me", backend.SpeakOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := b.LastText(); got != "remember me" {
		t.Errorf("LastText = %q", got)
	}
}

func TestCancelledContextStopsEvents(t *testing.T) {
	b := New(WithWordsPerMinute(60)) // one word per second
	ctx, cancel := context.WithCancel(context.Background())

	utt, err := b.Speak(ctx, "one two three four five", backend.SpeakOptions{})
	if err != nil {
		t.Fatal(err)
	}
	utt.Begin()
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-utt.Events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel not closed after cancellation")
		}
	}
}

func mustFast() Option {
	return WithWordsPerMinute(6000)
}
