// Package dragdrop turns pointer and keyboard gestures over an ordered
// list into the full id list a collection store persists.
package dragdrop

// Move returns a copy of ids with the element at from placed at to. Out of
// range indexes return an unchanged copy.
func Move(ids []int64, from, to int) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) || from == to {
		return out
	}

	moved := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = moved
	return out
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// ResolveDrop computes the order after dropping active onto over within
// the visible list. ok is false for a no-op: no target, the same target,
// or ids that are not visible.
func ResolveDrop(visible []int64, active int64, over *int64) (order []int64, ok bool) {
	if over == nil || *over == active {
		return nil, false
	}
	from, to := indexOf(visible, active), indexOf(visible, *over)
	if from < 0 || to < 0 {
		return nil, false
	}
	return Move(visible, from, to), true
}

// KeyboardMove moves id to position within visible, clamping position to
// the list. ok is false when id is not visible or already there.
func KeyboardMove(visible []int64, id int64, position int) (order []int64, ok bool) {
	from := indexOf(visible, id)
	if from < 0 || len(visible) == 0 {
		return nil, false
	}
	if position < 0 {
		position = 0
	}
	if position >= len(visible) {
		position = len(visible) - 1
	}
	if position == from {
		return nil, false
	}
	return Move(visible, from, position), true
}

// MergeVisible maps a reordered filtered view back onto the global order.
// Hidden items keep their slots; the slots of visible items are refilled in
// the new visible order.
func MergeVisible(global, visibleReordered []int64) []int64 {
	shown := make(map[int64]bool, len(visibleReordered))
	for _, id := range visibleReordered {
		shown[id] = true
	}

	out := make([]int64, 0, len(global))
	next := 0
	for _, id := range global {
		if !shown[id] {
			out = append(out, id)
			continue
		}
		if next < len(visibleReordered) {
			out = append(out, visibleReordered[next])
			next++
		}
	}
	return out
}
