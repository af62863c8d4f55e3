package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBroadcastNeverBlocks(t *testing.T) {
	// No Run loop draining, so the queue fills up; Broadcast must drop
	// frames instead of blocking the caller.
	hub := NewHub(zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Broadcast(TypeDashboard, map[string]int{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a saturated queue")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	finished := make(chan struct{})
	go func() {
		hub.Run()
		close(finished)
	}()

	hub.Close()
	hub.Close()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
