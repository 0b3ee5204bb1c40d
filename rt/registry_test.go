package rt

import (
	"errors"
	"testing"

	"github.com/speechmatics/speechmatics-go"
)

func TestRegistryDispatchOrder(t *testing.T) {
	registry := NewRegistry()
	var calls []string

	registry.AddEventHandler(MessageAddTranscript, func(msg *ServerMessage) error {
		calls = append(calls, "handler1")
		return nil
	})
	registry.AddEventHandler(MessageAddTranscript, func(msg *ServerMessage) error {
		calls = append(calls, "handler2")
		return nil
	})
	registry.AddMiddleware(MessageAddTranscript, func(msg *ServerMessage) error {
		calls = append(calls, "middleware")
		return nil
	})

	msg := &ServerMessage{Message: MessageAddTranscript}
	if err := registry.Dispatch(msg); err != nil {
		t.Fatal(err)
	}

	want := []string{"middleware", "handler1", "handler2"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestRegistryDuplicateHandlerRunsTwice(t *testing.T) {
	registry := NewRegistry()
	count := 0
	handler := func(msg *ServerMessage) error {
		count++
		return nil
	}
	registry.AddEventHandler(MessageInfo, handler)
	registry.AddEventHandler(MessageInfo, handler)

	if err := registry.Dispatch(&ServerMessage{Message: MessageInfo}); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("handler ran %d times, want 2", count)
	}
}

func TestRegistryAllMessages(t *testing.T) {
	registry := NewRegistry()
	var seen []ServerMessageType
	registry.AddEventHandler(AllMessages, func(msg *ServerMessage) error {
		seen = append(seen, msg.Message)
		return nil
	})

	for _, mt := range []ServerMessageType{MessageInfo, MessageWarning, MessageAddTranscript} {
		if err := registry.Dispatch(&ServerMessage{Message: mt}); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 3 {
		t.Errorf("saw %d messages, want 3", len(seen))
	}
}

func TestRegistryUnknownType(t *testing.T) {
	registry := NewRegistry()
	if err := registry.AddEventHandler("Bogus", func(msg *ServerMessage) error { return nil }); err == nil {
		t.Error("AddEventHandler accepted an unknown type")
	}
	if err := registry.AddMiddleware("Bogus", func(msg *ServerMessage) error { return nil }); err == nil {
		t.Error("AddMiddleware accepted an unknown type")
	}
}

func TestRegistryMiddlewareMutation(t *testing.T) {
	registry := NewRegistry()
	registry.AddMiddleware(MessageAddTranscript, func(msg *ServerMessage) error {
		msg.Metadata = &TranscriptMetadata{Transcript: "rewritten"}
		return nil
	})

	var got string
	registry.AddEventHandler(MessageAddTranscript, func(msg *ServerMessage) error {
		got = msg.Metadata.Transcript
		return nil
	})

	msg := &ServerMessage{
		Message:  MessageAddTranscript,
		Metadata: &TranscriptMetadata{Transcript: "original"},
	}
	if err := registry.Dispatch(msg); err != nil {
		t.Fatal(err)
	}
	if got != "rewritten" {
		t.Errorf("handler saw %q, want the middleware's rewrite", got)
	}
}

func TestRegistrySuppressStopsDispatch(t *testing.T) {
	registry := NewRegistry()
	registry.AddMiddleware(MessageError, func(msg *ServerMessage) error {
		msg.Suppress()
		return nil
	})
	called := false
	registry.AddEventHandler(MessageError, func(msg *ServerMessage) error {
		called = true
		return nil
	})

	msg := &ServerMessage{Message: MessageError, Reason: "boom"}
	if err := registry.Dispatch(msg); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("handler ran after the message was suppressed")
	}
	if !msg.Suppressed() {
		t.Error("message should report suppressed")
	}
}

func TestRegistryForceEndPassesThrough(t *testing.T) {
	registry := NewRegistry()
	registry.AddEventHandler(MessageAddTranscript, func(msg *ServerMessage) error {
		return speechmatics.ErrForceEndSession
	})

	err := registry.Dispatch(&ServerMessage{Message: MessageAddTranscript})
	if !errors.Is(err, speechmatics.ErrForceEndSession) {
		t.Errorf("Dispatch = %v, want ErrForceEndSession", err)
	}
}

func TestRegistryHandlerErrorWrapped(t *testing.T) {
	registry := NewRegistry()
	boom := errors.New("boom")
	registry.AddEventHandler(MessageAddTranscript, func(msg *ServerMessage) error {
		return boom
	})

	err := registry.Dispatch(&ServerMessage{Message: MessageAddTranscript})
	if !errors.Is(err, boom) {
		t.Errorf("Dispatch = %v, want wrapped boom", err)
	}
}
