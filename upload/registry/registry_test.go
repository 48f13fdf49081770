package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCancellation struct {
	calls     []string
	requestID int64
	notifyErr error
}

func (c *fakeCancellation) Abort() {
	c.calls = append(c.calls, "abort")
}

func (c *fakeCancellation) NotifyServer(_ context.Context, requestID int64) error {
	c.calls = append(c.calls, "notify")
	c.requestID = requestID
	return c.notifyErr
}

func keys(tasks []Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.Key)
	}
	return out
}

var ignoreCancellation = cmpopts.IgnoreFields(Task{}, "Cancellation")

func TestRegistry_Ordering(t *testing.T) {
	r := New(nil, log.NewLogger())
	t1 := Task{Key: "ds-1", Title: "first", RequestID: NoRequestID}
	t2 := Task{Key: "ds-2", Title: "second", RequestID: NoRequestID}

	r.Create(t1)
	r.Create(t2)
	assert.Equal(t, []string{"ds-2", "ds-1"}, keys(r.Snapshot()))

	updated := t1
	updated.Percent = 42
	updated.Size = 1024
	require.True(t, r.Update(updated))

	want := []Task{t2, updated}
	if diff := cmp.Diff(want, r.Snapshot(), ignoreCancellation); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	require.True(t, r.Remove(context.Background(), t2))
	if diff := cmp.Diff([]Task{updated}, r.Snapshot(), ignoreCancellation); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_CreateExistingKeyReplacesInPlace(t *testing.T) {
	r := New(nil, log.NewLogger())
	r.Create(Task{Key: "a"})
	r.Create(Task{Key: "b"})
	r.Create(Task{Key: "a", Title: "again"})

	assert.Equal(t, []string{"b", "a"}, keys(r.Snapshot()))
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "again", got.Title)
}

func TestRegistry_UpdateUnknownKey(t *testing.T) {
	r := New(nil, log.NewLogger())
	assert.False(t, r.Update(Task{Key: "missing"}))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Mutate(t *testing.T) {
	r := New(nil, log.NewLogger())
	r.Create(Task{Key: "a", Size: 10})

	got, ok := r.Mutate("a", func(t *Task) {
		t.Size += 5
		t.Key = "renamed"
	})
	require.True(t, ok)
	assert.Equal(t, int64(15), got.Size)
	assert.Equal(t, "a", got.Key)

	_, ok = r.Mutate("missing", func(t *Task) {})
	assert.False(t, ok)
}

func TestRegistry_Remove(t *testing.T) {
	tests := []struct {
		name      string
		isCancel  bool
		notifyErr error
		wantCalls []string
	}{
		{name: "completed", isCancel: false, wantCalls: nil},
		{name: "cancelled", isCancel: true, wantCalls: []string{"abort", "notify"}},
		{name: "cancelled, server notification fails", isCancel: true, notifyErr: errors.New("offline"), wantCalls: []string{"abort", "notify"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil, log.NewLogger())
			cancellation := &fakeCancellation{notifyErr: tt.notifyErr}
			task := Task{Key: "a", RequestID: 7, Cancellation: cancellation}
			r.Create(task)

			task.IsCancel = tt.isCancel
			assert.True(t, r.Remove(context.Background(), task))

			assert.Equal(t, tt.wantCalls, cancellation.calls)
			if tt.isCancel {
				assert.Equal(t, int64(7), cancellation.requestID)
			}
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRegistry_RemoveUnknownKey(t *testing.T) {
	bus := NewBus()
	var events []Event
	bus.Subscribe(func(e Event) { events = append(events, e) })
	r := New(bus, log.NewLogger())

	assert.False(t, r.Remove(context.Background(), Task{Key: "missing", UpdateEvent: "dataset"}))
	assert.Empty(t, events)
}

func TestRegistry_Notifications(t *testing.T) {
	bus := NewBus()
	var events []Event
	bus.Subscribe(func(e Event) { events = append(events, e) })
	r := New(bus, log.NewLogger())

	task := Task{Key: "ds-1", UpdateEvent: "dataset-updated"}
	r.Create(task)
	r.SetTaskCenterVisible(true)
	r.Update(Task{Key: "ds-1", UpdateEvent: "dataset-updated", Percent: 50})
	r.Remove(context.Background(), task)

	want := []Event{
		{Kind: EventEntityChanged, Name: "dataset-updated", Key: "ds-1"},
		{Kind: EventTaskCenterVisibility, Show: true},
		{Kind: EventEntityChanged, Name: "dataset-updated", Key: "ds-1"},
		{Kind: EventTaskCenterVisibility, Show: false},
	}
	assert.Equal(t, want, events)
}

func TestRegistry_Watch(t *testing.T) {
	r := New(nil, log.NewLogger())
	var snapshots [][]string
	stop := r.Watch(func(tasks []Task) {
		snapshots = append(snapshots, keys(tasks))
	})

	r.Create(Task{Key: "a"})
	r.Create(Task{Key: "b"})
	r.Mutate("a", func(t *Task) { t.Percent = 10 })
	r.Remove(context.Background(), Task{Key: "b"})
	stop()
	r.Create(Task{Key: "c"})

	want := [][]string{
		{"a"},
		{"b", "a"},
		{"b", "a"},
		{"a"},
	}
	assert.Equal(t, want, snapshots)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := New(nil, log.NewLogger())
	r.Create(Task{Key: "a"})

	snapshot := r.Snapshot()
	snapshot[0].Percent = 99

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Zero(t, got.Percent)
}
