package tree

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrRBSetRootColorViolation = errors.New("[rbset] root color violation")
	ErrRBSetRedViolation       = errors.New("[rbset] red violation")
	ErrRBSetBlackViolation     = errors.New("[rbset] black violation")
	ErrRBSetOrderViolation     = errors.New("[rbset] order violation")
	ErrRBSetLinkViolation      = errors.New("[rbset] parent link violation")
	ErrRBSetSizeViolation      = errors.New("[rbset] size violation")
	ErrRBSetUnknownImpl        = errors.New("[rbset] unknown ordered set implementation")
)

// rbset rule validation utilities.

// References:
// https://github1s.com/minghu6/rust-minghu6/blob/master/coll_st/src/bst/rb.rs

// ValidateRBSet checks every red-black and ordering invariant of
// a set built by NewRBSet or NewRBSetFunc.
func ValidateRBSet[T any](set OrderedSet[T]) error {
	s, ok := set.(*rbSet[T])
	if !ok {
		return ErrRBSetUnknownImpl
	}
	return s.validate()
}

func (set *rbSet[T]) validate() error {
	return multierr.Combine(
		set.rootColorViolationValidate(),
		set.orderViolationValidate(),
		set.redViolationValidate(),
		set.blackViolationValidate(),
	)
}

func (set *rbSet[T]) rootColorViolationValidate() error {
	if set.root == nilHandle {
		return nil
	}
	if set.node(set.root).parent != nilHandle {
		return fmt.Errorf("%w: root has a parent", ErrRBSetLinkViolation)
	}
	if set.isRed(set.root) {
		return ErrRBSetRootColorViolation
	}
	return nil
}

// Inorder traversal to validate the strictly increasing order, the
// parent back-references and the element count.
func (set *rbSet[T]) orderViolationValidate() error {
	var merr error
	prev, size := nilHandle, int64(0)
	set.foreach(func(idx int64, h rbHandle) bool {
		size++
		node := set.node(h)
		if prev != nilHandle && set.kcmp(set.node(prev).val, node.val) >= 0 {
			merr = multierr.Append(merr, fmt.Errorf("%w: index %d", ErrRBSetOrderViolation, idx))
		}
		if (node.left != nilHandle && set.node(node.left).parent != h) ||
			(node.right != nilHandle && set.node(node.right).parent != h) {
			merr = multierr.Append(merr, fmt.Errorf("%w: index %d", ErrRBSetLinkViolation, idx))
		}
		prev = h
		return true
	})
	if size != set.Len() || size != int64(set.arena.len()) {
		merr = multierr.Append(merr, fmt.Errorf("%w: walked %d, len %d, arena %d",
			ErrRBSetSizeViolation, size, set.Len(), set.arena.len()))
	}
	return merr
}

func (set *rbSet[T]) redViolationValidate() error {
	var err error
	set.foreach(func(idx int64, h rbHandle) bool {
		if node := set.node(h); set.isRed(h) && (set.isRed(node.left) || set.isRed(node.right)) {
			err = fmt.Errorf("%w: index %d", ErrRBSetRedViolation, idx)
			return false
		}
		return true
	})
	return err
}

func (set *rbSet[T]) blackDepthToRoot(h rbHandle) int {
	depth := 0
	for aux := h; aux != nilHandle; aux = set.node(aux).parent {
		if set.isBlack(aux) {
			depth++
		}
	}
	return depth
}

/*
<X> is a RED node.
[X] is a BLACK node (or NIL).

	        [13]
			/  \
		 <8>    [15]
		 / \    /  \
	  [6] [11] [14] [17]
	  /              /
	<1>            <16>

Each node owning a NIL child must see the same black depth to root.
*/
func (set *rbSet[T]) blackViolationValidate() error {
	var err error
	blackDepth := -1
	set.foreach(func(idx int64, h rbHandle) bool {
		if node := set.node(h); node.left != nilHandle && node.right != nilHandle {
			return true
		}
		depth := set.blackDepthToRoot(h)
		if blackDepth < 0 {
			blackDepth = depth
		} else if depth != blackDepth {
			err = fmt.Errorf("%w: index %d, depth %d, expected %d", ErrRBSetBlackViolation, idx, depth, blackDepth)
			return false
		}
		return true
	})
	return err
}
