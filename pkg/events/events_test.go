package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereinha3/eznas/pkg/types"
)

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{RunID: "run-1", Stage: "render", Status: types.StageOK})

	select {
	case ev := <-sub:
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, "render", ev.Stage)
		assert.Equal(t, types.StageOK, ev.Status)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBroker_RunFilter(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.SubscribeRun("run-2")
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{RunID: "run-1", Stage: "diff", Status: types.StageOK})
	broker.Publish(&Event{RunID: "run-2", Stage: "validate", Status: types.StageStarted})

	select {
	case ev := <-sub:
		require.Equal(t, "run-2", ev.RunID)
		require.Equal(t, "validate", ev.Stage)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-sub:
		t.Fatalf("unexpected event for run %s", ev.RunID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.SubscribeRun("")
	defer broker.Unsubscribe(sub)

	// Overflow the subscriber buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			broker.Publish(&Event{RunID: "run-3", Stage: "deploy.compose", Status: types.StageStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestEvent_StageEvent(t *testing.T) {
	ev := &Event{Stage: "wait.radarr", Status: types.StageFailed, Detail: "timeout"}
	se := ev.StageEvent()
	assert.Equal(t, types.StageEvent{Stage: "wait.radarr", Status: types.StageFailed, Detail: "timeout"}, se)
}
