package missiontransfer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDownloadWorkItem_HappyPath(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	var items []Item
	var progress []float32
	item := NewDownloadWorkItem(sender, dispatcher, scheduler, MissionTypeFence, cfg, zerolog.Nop(),
		func(r Result, its []Item) { got, items = r, its },
		func(p float32) { progress = append(progress, p) },
	)
	item.Start()
	require.IsType(t, MissionRequestList{}, sender.last())

	dispatcher.deliver(IDMissionCount, 1, MissionCount{Count: 2, MissionType: MissionTypeFence})
	require.IsType(t, MissionRequestInt{}, sender.last())

	dispatcher.deliver(IDMissionItemInt, 1, MissionItemInt{Seq: 0, MissionType: MissionTypeFence})
	dispatcher.deliver(IDMissionItemInt, 1, MissionItemInt{Seq: 1, MissionType: MissionTypeFence})

	require.True(t, item.IsDone())
	require.Equal(t, ResultSuccess, got)
	require.Len(t, items, 2)
	require.Equal(t, []float32{0, 0.5, 1}, progress)

	sent, ok := sender.last().(MissionAck)
	require.True(t, ok)
	require.Equal(t, AckAccepted, sent.Type)
}

func TestDownloadWorkItem_EmptyList(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	var items []Item
	item := NewDownloadWorkItem(sender, dispatcher, scheduler, MissionTypeMission, cfg, zerolog.Nop(),
		func(r Result, its []Item) { got, items = r, its }, nil)
	item.Start()

	dispatcher.deliver(IDMissionCount, 1, MissionCount{Count: 0, MissionType: MissionTypeMission})

	require.True(t, item.IsDone())
	require.Equal(t, ResultSuccess, got)
	require.Len(t, items, 0)
}

func TestDownloadWorkItem_DeniedDuringRequestListIsNoMissionAvailable(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	item := NewDownloadWorkItem(sender, dispatcher, scheduler, MissionTypeMission, cfg, zerolog.Nop(),
		func(r Result, _ []Item) { got = r }, nil)
	item.Start()

	dispatcher.deliver(IDMissionAck, 1, MissionAck{Type: AckDenied, MissionType: MissionTypeMission})

	require.True(t, item.IsDone())
	require.Equal(t, ResultNoMissionAvailable, got)
}

func TestDownloadWorkItem_DuplicateItemDeliveryIsIgnored(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	var items []Item
	item := NewDownloadWorkItem(sender, dispatcher, scheduler, MissionTypeMission, cfg, zerolog.Nop(),
		func(r Result, its []Item) { got, items = r, its }, nil)
	item.Start()

	dispatcher.deliver(IDMissionCount, 1, MissionCount{Count: 1, MissionType: MissionTypeMission})
	dispatcher.deliver(IDMissionItemInt, 1, MissionItemInt{Seq: 0, MissionType: MissionTypeMission})
	require.True(t, item.IsDone())

	// a resend of the same final item must not be mistaken for a second list.
	dispatcher.deliver(IDMissionItemInt, 1, MissionItemInt{Seq: 0, MissionType: MissionTypeMission})
	require.Equal(t, ResultSuccess, got)
	require.Len(t, items, 1)
}

func TestDownloadWorkItem_CancelMidPullDiscardsPartialItems(t *testing.T) {
	sender, dispatcher, scheduler := newFakeSender(), newFakeDispatcher(), newFakeTimeoutScheduler()
	cfg := &Config{TimeoutSeconds: 1, MaxRetries: 2}

	var got Result
	var items []Item
	item := NewDownloadWorkItem(sender, dispatcher, scheduler, MissionTypeMission, cfg, zerolog.Nop(),
		func(r Result, its []Item) { got, items = r, its }, nil)
	item.Start()

	dispatcher.deliver(IDMissionCount, 1, MissionCount{Count: 5, MissionType: MissionTypeMission})
	dispatcher.deliver(IDMissionItemInt, 1, MissionItemInt{Seq: 0, MissionType: MissionTypeMission})

	require.NoError(t, item.Cancel())
	require.Equal(t, ResultCancelled, got)
	require.Nil(t, items)

	sent, ok := sender.last().(MissionAck)
	require.True(t, ok)
	require.Equal(t, AckOperationCancelled, sent.Type)
}
