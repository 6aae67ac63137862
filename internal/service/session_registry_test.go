package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistryExpiresIdleEntries(t *testing.T) {
	var evicted []string
	metrics := NewMetricsService()
	reg := NewSessionRegistry[string]("wizard", time.Minute, func(id string, _ string) {
		evicted = append(evicted, id)
	}, metrics, nil)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	reg.Put("a", "A")
	reg.Put("b", "B")
	assert.Equal(t, 2.0, counterValue(t, metrics, "assignment_sessions_active", map[string]string{"kind": "wizard"}))

	now = now.Add(45 * time.Second)
	_, ok := reg.Get("a")
	assert.True(t, ok)

	now = now.Add(30 * time.Second)
	_, ok = reg.Get("b")
	assert.False(t, ok, "expired entries are not returned even before a sweep")

	assert.Equal(t, 1, reg.Sweep())
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1.0, counterValue(t, metrics, "assignment_sessions_active", map[string]string{"kind": "wizard"}))
}

func TestSessionRegistryDeleteRunsEvict(t *testing.T) {
	var evicted []string
	reg := NewSessionRegistry[int]("draft", 0, func(id string, _ int) { evicted = append(evicted, id) }, nil, nil)
	reg.Put("x", 1)

	assert.True(t, reg.Delete("x"))
	assert.False(t, reg.Delete("x"))
	assert.Equal(t, []string{"x"}, evicted)
}

func TestSessionRegistryRunStopsOnCancel(t *testing.T) {
	reg := NewSessionRegistry[int]("draft", time.Minute, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
