package tree

type RBColor uint8

const (
	Black RBColor = iota
	Red
)

func (c RBColor) String() string {
	switch c {
	case Black:
		return "Black"
	case Red:
		return "Red"
	default:
	}
	return "Unknown"
}

type RBDirection int8

const (
	Left RBDirection = -1 + iota
	Root
	Right
)

func (dir RBDirection) String() string {
	switch dir {
	case Left:
		return "Left"
	case Root:
		return "Root"
	case Right:
		return "Right"
	default:
	}
	return "Unknown"
}

// opposite of Root is Root.
func (dir RBDirection) opposite() RBDirection {
	return -dir
}

// OrderedSet is a set of unique, totally ordered elements.
// It is not safe for concurrent use; callers serialize access.
type OrderedSet[T any] interface {
	Len() int64
	// Height is the number of nodes on the longest root-to-leaf path.
	Height() int
	// Insert an element equal to an existing one is a no-op.
	Insert(val T)
	// Remove an absent element is a no-op.
	Remove(val T)
	Contains(val T) bool
	Min() (T, bool)
	Max() (T, bool)
	// Release drops every element and stops publishing stats.
	// The set stays usable afterwards.
	Release()
}
