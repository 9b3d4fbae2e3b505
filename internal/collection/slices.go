package collection

// Helpers below never modify their input; every change yields a new
// backing array so published snapshots stay immutable.

func prepend[T any](items []T, v T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, v)
	return append(out, items...)
}

func appendItem[T any](items []T, v T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, items...)
	return append(out, v)
}

// replaceByID swaps in v for the entry with the same id. ok is false when
// no entry matched.
func replaceByID[T any](items []T, v T, id func(T) int64) (out []T, ok bool) {
	out = make([]T, len(items))
	copy(out, items)
	for i := range out {
		if id(out[i]) == id(v) {
			out[i] = v
			ok = true
		}
	}
	return out, ok
}

// removeByID drops every entry with the given id and returns the first one
// removed.
func removeByID[T any](items []T, target int64, id func(T) int64) (out []T, removed *T) {
	out = make([]T, 0, len(items))
	for i := range items {
		if id(items[i]) == target {
			if removed == nil {
				v := items[i]
				removed = &v
			}
			continue
		}
		out = append(out, items[i])
	}
	return out, removed
}

func findByID[T any](items []T, target int64, id func(T) int64) (T, bool) {
	for _, v := range items {
		if id(v) == target {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// projectOrder maps ids onto the cached entries, dropping ids that are not
// loaded and repeats of an id already placed. Loaded entries missing from
// ids follow in their current order.
func projectOrder[T any](items []T, ids []int64, id func(T) int64) []T {
	byID := make(map[int64]T, len(items))
	for _, v := range items {
		byID[id(v)] = v
	}

	out := make([]T, 0, len(ids))
	placed := make(map[int64]bool, len(ids))
	for _, want := range ids {
		v, ok := byID[want]
		if !ok || placed[want] {
			continue
		}
		placed[want] = true
		out = append(out, v)
	}
	for _, v := range items {
		if !placed[id(v)] {
			placed[id(v)] = true
			out = append(out, v)
		}
	}
	return out
}

func idsOf[T any](items []T, id func(T) int64) []int64 {
	out := make([]int64, len(items))
	for i, v := range items {
		out[i] = id(v)
	}
	return out
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
