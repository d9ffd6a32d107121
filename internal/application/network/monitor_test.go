package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_NotifyDedups(t *testing.T) {
	m := NewMonitor(true, nil)
	ctx := context.Background()

	assert.False(t, m.Notify(ctx, true), "same state is not a transition")
	assert.True(t, m.Notify(ctx, false))
	assert.False(t, m.Notify(ctx, false))
	assert.False(t, m.Online())
	assert.True(t, m.Notify(ctx, true))
	assert.True(t, m.Online())
}

func TestMonitor_ReconnectHookOncePerTransition(t *testing.T) {
	m := NewMonitor(false, nil)
	ctx := context.Background()

	var calls []string
	m.OnReconnect(func(context.Context) { calls = append(calls, "drain") })
	m.OnReconnect(func(context.Context) { calls = append(calls, "refresh") })

	m.Notify(ctx, true)
	m.Notify(ctx, true)
	m.Notify(ctx, false)
	m.Notify(ctx, false)
	m.Notify(ctx, true)

	assert.Equal(t, []string{"drain", "refresh", "drain", "refresh"}, calls)
}

func TestMonitor_HookMayQueryState(t *testing.T) {
	m := NewMonitor(false, nil)
	var seen bool
	m.OnReconnect(func(context.Context) { seen = m.Online() })

	m.Notify(context.Background(), true)
	assert.True(t, seen, "hooks run after the state is updated and without the lock held")
}

func TestMonitor_Subscribe(t *testing.T) {
	m := NewMonitor(true, nil)
	events, cancel := m.Subscribe()
	other, cancelOther := m.Subscribe()
	defer cancelOther()

	m.Notify(context.Background(), false)
	m.Notify(context.Background(), true)

	require.Equal(t, Event{Online: false}, <-events)
	require.Equal(t, Event{Online: true}, <-events)
	require.Equal(t, Event{Online: false}, <-other)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open, "cancelled subscription is closed")

	m.Notify(context.Background(), false)
}
