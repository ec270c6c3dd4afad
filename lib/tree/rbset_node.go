package tree

import "math"

// rbHandle addresses a node inside the set's arena.
// The zero handle is the absent (NIL) position, it is never allocated.
type rbHandle uint32

const nilHandle rbHandle = 0

// newRBHandle converts an arena index into a handle. Indexes past
// the handle range would wrap around onto the NIL sentinel.
func newRBHandle(idx uint64) rbHandle {
	if idx > math.MaxUint32 {
		// impossible run to here
		panic( /* debug assertion */ "[rbset] arena handles exhausted")
	}
	return rbHandle(idx)
}

// The parent handle is navigational only. Ownership flows
// strictly from the arena through the left and right handles.
type rbNode[T any] struct {
	val    T
	left   rbHandle
	right  rbHandle
	parent rbHandle
	color  RBColor
	inUse  bool
}

func (node *rbNode[T]) child(dir RBDirection) rbHandle {
	switch dir {
	case Left:
		return node.left
	case Right:
		return node.right
	default:
	}
	// impossible run to here
	panic( /* debug assertion */ "[rbset] root direction has no child slot")
}

func (node *rbNode[T]) setChild(dir RBDirection, h rbHandle) {
	switch dir {
	case Left:
		node.left = h
	case Right:
		node.right = h
	default:
		// impossible run to here
		panic( /* debug assertion */ "[rbset] root direction has no child slot")
	}
}

// rbArena stores nodes in a flat slice. Slot 0 is the NIL sentinel
// and stays zero (black, unlinked) forever.
//
// Node pointers from node() are invalidated by allocate, callers
// keep handles across allocations.
type rbArena[T any] struct {
	nodes    []rbNode[T]
	recycled []rbHandle
}

func newRBArena[T any](capacity int) *rbArena[T] {
	if capacity < 0 {
		capacity = 0
	}
	arena := &rbArena[T]{
		nodes:    make([]rbNode[T], 1, capacity+1),
		recycled: make([]rbHandle, 0, capacity>>2),
	}
	return arena
}

func (arena *rbArena[T]) node(h rbHandle) *rbNode[T] {
	return &arena.nodes[h]
}

// allocate a red node without links. Recycled slots are reused first.
func (arena *rbArena[T]) allocate(val T) rbHandle {
	var h rbHandle
	if rl := len(arena.recycled); rl > 0 {
		h = arena.recycled[rl-1]
		arena.recycled = arena.recycled[:rl-1]
	} else {
		h = newRBHandle(uint64(len(arena.nodes)))
		arena.nodes = append(arena.nodes, rbNode[T]{})
	}
	arena.nodes[h] = rbNode[T]{
		val:   val,
		color: Red,
		inUse: true,
	}
	return h
}

func (arena *rbArena[T]) recycle(h rbHandle) {
	if h == nilHandle || !arena.nodes[h].inUse {
		// impossible run to here
		panic( /* debug assertion */ "[rbset] recycle a nil or free node")
	}
	// Drop the value so the GC is able to reclaim what it references.
	arena.nodes[h] = rbNode[T]{}
	arena.recycled = append(arena.recycled, h)
}

// live nodes count.
func (arena *rbArena[T]) len() int {
	return len(arena.nodes) - 1 - len(arena.recycled)
}

func (arena *rbArena[T]) reset() {
	clear(arena.nodes)
	arena.nodes = arena.nodes[:1]
	arena.recycled = arena.recycled[:0]
}
