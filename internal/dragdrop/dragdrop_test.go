package dragdrop

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

// ========================================
// Mock Objects
// ========================================

type recorder struct {
	calls [][]int64
	err   error
}

func (r *recorder) reorder(_ context.Context, ids []int64) error {
	r.calls = append(r.calls, ids)
	return r.err
}

func staticView(global, visible []int64) View {
	return func() ([]int64, []int64) { return global, visible }
}

// ========================================
// Order arithmetic
// ========================================

func TestMove(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		expected []int64
	}{
		{"forward", 0, 2, []int64{2, 3, 1, 4}},
		{"backward", 3, 1, []int64{1, 4, 2, 3}},
		{"same", 1, 1, []int64{1, 2, 3, 4}},
		{"out of range", 0, 9, []int64{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []int64{1, 2, 3, 4}
			assert.Equal(t, tt.expected, Move(ids, tt.from, tt.to))
			assert.Equal(t, []int64{1, 2, 3, 4}, ids, "input untouched")
		})
	}
}

func TestMove_IsPermutation(t *testing.T) {
	ids := []int64{10, 20, 30, 40, 50}
	for from := range ids {
		for to := range ids {
			got := Move(ids, from, to)
			require.Len(t, got, len(ids))
			assert.Equal(t, ids[from], got[to])

			sorted := append([]int64(nil), got...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			assert.Equal(t, ids, sorted, "from %d to %d", from, to)
		}
	}
}

func TestResolveDrop(t *testing.T) {
	visible := []int64{1, 2, 3}

	_, ok := ResolveDrop(visible, 1, nil)
	assert.False(t, ok, "no target")
	_, ok = ResolveDrop(visible, 1, ptr(1))
	assert.False(t, ok, "same target")
	_, ok = ResolveDrop(visible, 7, ptr(1))
	assert.False(t, ok, "hidden item")

	order, ok := ResolveDrop(visible, 3, ptr(1))
	require.True(t, ok)
	assert.Equal(t, []int64{3, 1, 2}, order)
}

func TestKeyboardMove(t *testing.T) {
	visible := []int64{1, 2, 3}

	order, ok := KeyboardMove(visible, 1, 99)
	require.True(t, ok)
	assert.Equal(t, []int64{2, 3, 1}, order, "position clamped")

	order, ok = KeyboardMove(visible, 3, -1)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 1, 2}, order)

	_, ok = KeyboardMove(visible, 2, 1)
	assert.False(t, ok)
}

func TestMergeVisible(t *testing.T) {
	tests := []struct {
		name     string
		global   []int64
		visible  []int64
		expected []int64
	}{
		{"no filter", []int64{1, 2, 3}, []int64{3, 1, 2}, []int64{3, 1, 2}},
		{"hidden keep their slots", []int64{1, 2, 3, 4, 5}, []int64{5, 3, 1}, []int64{5, 2, 3, 4, 1}},
		{"nothing visible", []int64{1, 2}, nil, []int64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MergeVisible(tt.global, tt.visible))
		})
	}
}

// ========================================
// Tracker
// ========================================

func TestTracker_ActivationThreshold(t *testing.T) {
	tr := NewTracker(0)
	tr.PointerDown(5, Point{X: 0, Y: 0})

	assert.False(t, tr.PointerMove(Point{X: 3, Y: 4}), "5px is still a click")
	_, active := tr.ActiveID()
	assert.False(t, active)

	assert.True(t, tr.PointerMove(Point{X: 6, Y: 6}))
	id, active := tr.ActiveID()
	require.True(t, active)
	assert.Equal(t, int64(5), id)

	id, ok := tr.End()
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
	_, active = tr.ActiveID()
	assert.False(t, active)
}

func TestTracker_MoveWithoutPress(t *testing.T) {
	tr := NewTracker(2)
	assert.False(t, tr.PointerMove(Point{X: 50}))
}

// ========================================
// Interaction
// ========================================

func TestInteraction_ClickNeverReorders(t *testing.T) {
	rec := &recorder{}
	in := NewInteraction(8, staticView([]int64{1, 2}, []int64{1, 2}), rec.reorder)

	in.PointerDown(1, Point{})
	in.PointerMove(Point{X: 2})
	require.NoError(t, in.PointerUp(context.Background(), ptr(2)))
	assert.Empty(t, rec.calls)
}

func TestInteraction_DropOutsideOrOnSelf(t *testing.T) {
	rec := &recorder{}
	in := NewInteraction(8, staticView([]int64{1, 2}, []int64{1, 2}), rec.reorder)

	in.PointerDown(1, Point{})
	in.PointerMove(Point{X: 20})
	require.NoError(t, in.PointerUp(context.Background(), nil))

	in.PointerDown(1, Point{})
	in.PointerMove(Point{X: 20})
	require.NoError(t, in.PointerUp(context.Background(), ptr(1)))

	assert.Empty(t, rec.calls)
}

func TestInteraction_DragSendsFullGlobalOrder(t *testing.T) {
	rec := &recorder{}
	// 2 and 4 are filtered out of view
	in := NewInteraction(8, staticView([]int64{1, 2, 3, 4, 5}, []int64{1, 3, 5}), rec.reorder)

	in.PointerDown(5, Point{})
	require.True(t, in.PointerMove(Point{Y: 40}))
	require.NoError(t, in.PointerUp(context.Background(), ptr(1)))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []int64{5, 2, 1, 4, 3}, rec.calls[0])
}

func TestInteraction_KeyboardMatchesDrag(t *testing.T) {
	view := staticView([]int64{1, 2, 3}, []int64{1, 2, 3})
	dragged, keyed := &recorder{}, &recorder{}

	drag := NewInteraction(8, view, dragged.reorder)
	require.NoError(t, drag.Drop(context.Background(), 3, ptr(1)))

	keys := NewInteraction(8, view, keyed.reorder)
	require.NoError(t, keys.MoveTo(context.Background(), 3, 0))

	assert.Equal(t, dragged.calls, keyed.calls)
	_, active := keys.Tracker().ActiveID()
	assert.False(t, active)
}

func TestInteraction_ReorderErrorReturned(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{err: boom}
	in := NewInteraction(8, staticView([]int64{1, 2}, []int64{1, 2}), rec.reorder)

	assert.ErrorIs(t, in.Drop(context.Background(), 2, ptr(1)), boom)
}
