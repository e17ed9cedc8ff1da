package collab

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func inbound(t *testing.T, event string, data any) InboundEvent {
	t.Helper()
	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	return InboundEvent{Event: event, Data: encoded}
}

func TestHandleRoutesEventsThroughTheCoordinator(t *testing.T) {
	store := newFakeStore(map[string]string{"d1": "hello"})
	coordinator := newTestCoordinator(t, store, nil)
	alice := connect(t, coordinator, "Alice")
	bob := connect(t, coordinator, "Bob")
	ctx := context.Background()

	coordinator.Handle(ctx, alice.ID(), inbound(t, EventJoinDocument, map[string]string{"documentId": "d1"}))
	coordinator.Handle(ctx, bob.ID(), inbound(t, EventJoinDocument, map[string]string{"documentId": "d1"}))
	expectEvent(t, alice, EventContentLoaded)
	expectEvent(t, bob, EventContentLoaded)

	coordinator.Handle(ctx, alice.ID(), inbound(t, EventEdit, map[string]string{"documentId": "d1", "content": "hi"}))
	if message := expectEvent(t, bob, EventContentChanged).Data.(ContentMessage); message.Content != "hi" {
		t.Fatalf("unexpected content: %q", message.Content)
	}

	coordinator.Handle(ctx, bob.ID(), inbound(t, EventSignal, map[string]any{
		"to":   alice.ID(),
		"data": map[string]string{"type": "answer"},
	}))
	signal := expectEvent(t, alice, EventSignal).Data.(SignalMessage)
	if signal.From != bob.ID() || string(signal.Data) != `{"type":"answer"}` {
		t.Fatalf("unexpected signal: %#v", signal)
	}

	coordinator.Handle(ctx, bob.ID(), inbound(t, EventGetParticipants, map[string]string{"documentId": "d1"}))
	if names := participantNames(t, expectEvent(t, bob, EventParticipants)); len(names) != 0 {
		t.Fatalf("expected no participants, got %v", names)
	}

	coordinator.Handle(ctx, bob.ID(), inbound(t, EventSave, map[string]any{
		"documentId": "d1",
		"content":    "hi",
		"timestamp":  1767322800000,
	}))
	coordinator.Wait()
	expectEvent(t, bob, EventDocumentSaved)
	if calls := store.savedCalls(); len(calls) != 1 || calls[0].editorID != "user-Bob" {
		t.Fatalf("unexpected saves: %#v", calls)
	}
}

func TestHandleReportsRejectionsToSenderOnly(t *testing.T) {
	coordinator := newTestCoordinator(t, newFakeStore(map[string]string{"d1": ""}), nil)
	alice := connect(t, coordinator, "Alice")
	bob := connect(t, coordinator, "Bob")
	ctx := context.Background()
	joinDocument(t, coordinator, bob, "d1")

	coordinator.Handle(ctx, alice.ID(), inbound(t, EventJoinDocument, map[string]string{"documentId": "<script>"}))
	message := expectEvent(t, alice, EventError).Data.(ErrorMessage)
	if message.Code != codeInvalidDocumentID || message.Event != EventJoinDocument {
		t.Fatalf("unexpected error: %#v", message)
	}

	coordinator.Handle(ctx, alice.ID(), InboundEvent{Event: "launch-missiles"})
	if message := expectEvent(t, alice, EventError).Data.(ErrorMessage); message.Code != codeInvalidEvent {
		t.Fatalf("unexpected error: %#v", message)
	}

	coordinator.Handle(ctx, alice.ID(), InboundEvent{Event: EventEdit, Data: json.RawMessage(`not json`)})
	if message := expectEvent(t, alice, EventError).Data.(ErrorMessage); message.Code != codeInvalidEvent {
		t.Fatalf("unexpected error: %#v", message)
	}

	coordinator.Handle(ctx, alice.ID(), inbound(t, EventEdit, map[string]string{"documentId": "d1", "content": "x"}))
	if message := expectEvent(t, alice, EventError).Data.(ErrorMessage); message.Code != codeNotInRoom {
		t.Fatalf("unexpected error: %#v", message)
	}

	coordinator.Handle(ctx, alice.ID(), inbound(t, EventSendChat, map[string]string{
		"documentId":  "d1",
		"displayName": "Alice",
		"text":        strings.Repeat("x", 2001),
	}))
	expectSilence(t, alice)
	expectSilence(t, bob)
}

func TestMetricsTrackConnectionsRoomsAndDrops(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	if err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:      newFakeStore(map[string]string{"d1": ""}),
		IDProvider: &sequentialIDProvider{},
		Logger:     zap.NewNop(),
		Metrics:    metrics,
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}
	alice := connect(t, coordinator, "Alice")
	joinDocument(t, coordinator, alice, "d1")
	coordinator.Relay(alice.ID(), "gone", json.RawMessage(`{}`))

	if value := testutil.ToFloat64(metrics.connections); value != 1 {
		t.Fatalf("expected 1 connection, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.rooms); value != 1 {
		t.Fatalf("expected 1 room, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.dropped.WithLabelValues(dropReasonTargetGone)); value != 1 {
		t.Fatalf("expected 1 dropped signal, got %v", value)
	}

	coordinator.Disconnect(alice.ID())
	if value := testutil.ToFloat64(metrics.connections); value != 0 {
		t.Fatalf("expected 0 connections, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.rooms); value != 0 {
		t.Fatalf("expected 0 rooms, got %v", value)
	}

	if _, err := NewMetrics(registry); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
