package missiontransfer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetCurrentWorkItem_Success(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	item := NewSetCurrentWorkItem(sender, dispatcher, scheduler, 3, cfg, zerolog.Nop(), func(r Result) { got = r })
	item.Start()

	sent, ok := sender.last().(MissionSetCurrent)
	require.True(t, ok)
	require.EqualValues(t, 3, sent.Seq)

	// an older broadcast must be ignored, not treated as the answer.
	dispatcher.deliver(IDMissionCurrent, 1, MissionCurrent{Seq: 1})
	require.False(t, item.IsDone())

	dispatcher.deliver(IDMissionCurrent, 1, MissionCurrent{Seq: 3})
	require.True(t, item.IsDone())
	require.Equal(t, ResultSuccess, got)
}

func TestSetCurrentWorkItem_NegativeIndexRejectedBeforeAnyEmission(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	item := NewSetCurrentWorkItem(sender, dispatcher, scheduler, -1, cfg, zerolog.Nop(), func(r Result) { got = r })
	item.Start()

	require.True(t, item.IsDone())
	require.Equal(t, ResultCurrentInvalid, got)
	require.Equal(t, 0, sender.count())
	require.False(t, dispatcher.subscribed(IDMissionCurrent))
}

func TestSetCurrentWorkItem_CancelWithoutEmission(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	item := NewSetCurrentWorkItem(sender, dispatcher, scheduler, 0, cfg, zerolog.Nop(), func(r Result) { got = r })
	item.Start()
	sent := sender.count()

	require.NoError(t, item.Cancel())
	require.Equal(t, ResultCancelled, got)
	require.Equal(t, sent, sender.count())
}
