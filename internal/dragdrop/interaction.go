package dragdrop

import (
	"context"
	"math"
	"sync"
)

// DefaultActivationDistance is the pointer travel in pixels that turns a
// press into a drag.
const DefaultActivationDistance = 8.0

// Point is a pointer position in pixels.
type Point struct {
	X, Y float64
}

func (p Point) distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Tracker follows one pointer gesture.
//
// A press is pending until the pointer travels the activation distance;
// releasing earlier is a click and never reorders.
type Tracker struct {
	threshold float64

	mu      sync.Mutex
	pressed bool
	pending int64
	origin  Point
	active  *int64
}

// NewTracker uses the default distance when threshold is not positive.
func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 {
		threshold = DefaultActivationDistance
	}
	return &Tracker{threshold: threshold}
}

func (t *Tracker) PointerDown(id int64, at Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pressed = true
	t.pending = id
	t.origin = at
	t.active = nil
}

// PointerMove reports whether the drag is active after the move.
func (t *Tracker) PointerMove(at Point) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pressed {
		return false
	}
	if t.active == nil && t.origin.distance(at) >= t.threshold {
		id := t.pending
		t.active = &id
	}
	return t.active != nil
}

// Start activates a drag directly, as a keyboard pick-up does.
func (t *Tracker) Start(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pressed = true
	t.pending = id
	t.active = &id
}

// ActiveID returns the dragged id while a drag is active.
func (t *Tracker) ActiveID() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return 0, false
	}
	return *t.active, true
}

// End finishes the gesture and returns the dragged id, if the press had
// become a drag.
func (t *Tracker) End() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := t.active
	t.pressed = false
	t.active = nil
	if active == nil {
		return 0, false
	}
	return *active, true
}

// ========================================
// Interaction
// ========================================

// View returns the global order of a list and the ids currently shown.
// Without a filter both are the same.
type View func() (global, visible []int64)

// ReorderFunc persists a full ordered id list.
type ReorderFunc func(ctx context.Context, ids []int64) error

// Interaction wires a tracker over one list to its reorder protocol.
type Interaction struct {
	tracker *Tracker
	view    View
	reorder ReorderFunc
}

// NewInteraction wires a tracker to a list view and its reorder action.
func NewInteraction(threshold float64, view View, reorder ReorderFunc) *Interaction {
	return &Interaction{tracker: NewTracker(threshold), view: view, reorder: reorder}
}

func (i *Interaction) Tracker() *Tracker { return i.tracker }

func (i *Interaction) PointerDown(id int64, at Point) { i.tracker.PointerDown(id, at) }

func (i *Interaction) PointerMove(at Point) bool { return i.tracker.PointerMove(at) }

// PointerUp ends the gesture over the item over (nil outside any item). A
// click, no target or the dragged item itself calls nothing.
func (i *Interaction) PointerUp(ctx context.Context, over *int64) error {
	active, ok := i.tracker.End()
	if !ok {
		return nil
	}
	return i.Drop(ctx, active, over)
}

// Drop reorders active onto over and hands the whole list to the store.
func (i *Interaction) Drop(ctx context.Context, active int64, over *int64) error {
	global, visible := i.view()
	order, ok := ResolveDrop(visible, active, over)
	if !ok {
		return nil
	}
	return i.reorder(ctx, MergeVisible(global, order))
}

// MoveTo is the keyboard path: id goes to position within the visible
// list.
func (i *Interaction) MoveTo(ctx context.Context, id int64, position int) error {
	i.tracker.Start(id)
	defer i.tracker.End()

	global, visible := i.view()
	order, ok := KeyboardMove(visible, id, position)
	if !ok {
		return nil
	}
	return i.reorder(ctx, MergeVisible(global, order))
}
