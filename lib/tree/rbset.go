package tree

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/benz9527/xset/lib/infra"
	"github.com/benz9527/xset/lib/xlog"
)

var _ OrderedSet[int] = (*rbSet[int])(nil)

type rbSet[T any] struct {
	arena          *rbArena[T]
	kcmp           infra.OrderedKeyComparator[T]
	logger         xlog.XLogger // debug assertion enabled if not nil
	stats          *rbSetStats
	statsName      string
	count          int64
	initCap        int
	root           rbHandle
	isDesc         bool
	isRmBorrowSucc bool
}

func (set *rbSet[T]) node(h rbHandle) *rbNode[T] {
	return set.arena.node(h)
}

func (set *rbSet[T]) isRed(h rbHandle) bool {
	return h != nilHandle && set.node(h).color == Red
}

// NIL position is black.
func (set *rbSet[T]) isBlack(h rbHandle) bool {
	return !set.isRed(h)
}

func (set *rbSet[T]) direction(h rbHandle) RBDirection {
	if h == nilHandle {
		// impossible run to here
		panic( /* debug assertion */ "[rbset] nil leaf node without direction")
	}
	p := set.node(h).parent
	if p == nilHandle {
		return Root
	}
	if set.node(p).left == h {
		return Left
	}
	return Right
}

func (set *rbSet[T]) sibling(h rbHandle) rbHandle {
	switch dir := set.direction(h); dir {
	case Left, Right:
		return set.node(set.node(h).parent).child(dir.opposite())
	default:
	}
	return nilHandle
}

// replace links c into the position (p, dir). A Root position
// means c becomes the set's root.
func (set *rbSet[T]) replace(p rbHandle, dir RBDirection, c rbHandle) {
	if p == nilHandle || dir == Root {
		set.root = c
	} else {
		set.node(p).setChild(dir, c)
	}
	if c != nilHandle {
		set.node(c).parent = p
	}
}

func (set *rbSet[T]) minimum(h rbHandle) rbHandle {
	for h != nilHandle && set.node(h).left != nilHandle {
		h = set.node(h).left
	}
	return h
}

func (set *rbSet[T]) maximum(h rbHandle) rbHandle {
	for h != nilHandle && set.node(h).right != nilHandle {
		h = set.node(h).right
	}
	return h
}

// locate descends from root by comparing the probe against each node.
// If the value is absent, (parent, dir) is the empty position where
// it belongs. A found value carries no position.
func (set *rbSet[T]) locate(val T) (found, parent rbHandle, dir RBDirection) {
	dir = Root
	depth := int64(0)
	defer func() {
		set.stats.RecordSearchDepth(depth)
	}()
	for aux := set.root; aux != nilHandle; {
		depth++
		node := set.node(aux)
		res := set.kcmp(val, node.val)
		if /* equal */ res == 0 {
			return aux, nilHandle, Root
		}
		parent = aux
		if /* less */ res < 0 {
			dir, aux = Left, node.left
		} else /* greater */ {
			dir, aux = Right, node.right
		}
	}
	return nilHandle, parent, dir
}

func (set *rbSet[T]) Len() int64 {
	return atomic.LoadInt64(&set.count)
}

func (set *rbSet[T]) Height() int {
	if set.root == nilHandle {
		return 0
	}
	type frame struct {
		h     rbHandle
		depth int
	}
	height := 0
	stack := make([]frame, 0, 64)
	stack = append(stack, frame{set.root, 1})
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		height = max(height, f.depth)
		node := set.node(f.h)
		if node.left != nilHandle {
			stack = append(stack, frame{node.left, f.depth + 1})
		}
		if node.right != nilHandle {
			stack = append(stack, frame{node.right, f.depth + 1})
		}
	}
	return height
}

func (set *rbSet[T]) Contains(val T) bool {
	found, _, _ := set.locate(val)
	return found != nilHandle
}

func (set *rbSet[T]) Min() (T, bool) {
	if set.root == nilHandle {
		var zero T
		return zero, false
	}
	return set.node(set.minimum(set.root)).val, true
}

func (set *rbSet[T]) Max() (T, bool) {
	if set.root == nilHandle {
		var zero T
		return zero, false
	}
	return set.node(set.maximum(set.root)).val, true
}

// References:
// https://elixir.bootlin.com/linux/latest/source/lib/rbtree.c
// rbtree properties:
// https://en.wikipedia.org/wiki/Red%E2%80%93black_tree#Properties
// p1. Every node is either red or black.
// p2. All NIL nodes are considered black.
// p3. A red node does not have a red child. (red-violation)
// p4. Every path from a given node to any of its descendant
//   NIL nodes goes through the same number of black nodes. (black-violation)
// p5. The root is black.

/*
		 |                         |
		 X                         S
		/ \     leftRotate(X)     / \
	   L   S    ============>    X   Sd
		  / \                   / \
		Sc   Sd                L   Sc
*/
func (set *rbSet[T]) leftRotate(x rbHandle) {
	if x == nilHandle || set.node(x).right == nilHandle {
		// impossible run to here
		panic( /* debug assertion */ "[rbset] left rotate node x is nil or x.right is nil")
	}

	xn := set.node(x)
	p, dir, y := xn.parent, set.direction(x), xn.right
	yn := set.node(y)
	xn.right, yn.left = yn.left, x
	if xn.right != nilHandle {
		set.node(xn.right).parent = x
	}
	xn.parent = y
	set.replace(p, dir, y)
	set.stats.IncreaseRotationCount(Left)
}

/*
			 |                         |
			 X                         L
			/ \     rightRotate(X)    / \
	       L   S    ============>   Ld   X
		  / \                           / \
		Ld   Lc                       Lc   S
*/
func (set *rbSet[T]) rightRotate(x rbHandle) {
	if x == nilHandle || set.node(x).left == nilHandle {
		// impossible run to here
		panic( /* debug assertion */ "[rbset] right rotate node x is nil or x.left is nil")
	}

	xn := set.node(x)
	p, dir, y := xn.parent, set.direction(x), xn.left
	yn := set.node(y)
	xn.left, yn.right = yn.right, x
	if xn.left != nilHandle {
		set.node(xn.left).parent = x
	}
	xn.parent = y
	set.replace(p, dir, y)
	set.stats.IncreaseRotationCount(Right)
}

// rotate x toward dir. Left means x moves down to the left.
func (set *rbSet[T]) rotate(x rbHandle, dir RBDirection) {
	switch dir {
	case Left:
		set.leftRotate(x)
	case Right:
		set.rightRotate(x)
	default:
		// impossible run to here
		panic( /* debug assertion */ "[rbset] unknown direction to rotate")
	}
}

// i1: Empty rbset, the new node becomes the black root.
func (set *rbSet[T]) Insert(val T) {
	if /* i1 */ set.root == nilHandle {
		set.root = set.arena.allocate(val)
		set.node(set.root).color = Black
		atomic.AddInt64(&set.count, 1)
		set.stats.RecordElementCount(1)
		set.debugAssert("insert")
		return
	}

	found, parent, dir := set.locate(val)
	if /* duplicate */ found != nilHandle {
		return
	}
	if parent == nilHandle {
		// impossible run to here
		panic( /* debug assertion */ "[rbset] insert a new value into nil node")
	}

	z := set.arena.allocate(val)
	set.replace(parent, dir, z)
	atomic.AddInt64(&set.count, 1)
	set.stats.RecordElementCount(1)
	set.insertRebalance(z)
	set.debugAssert("insert")
}

/*
New node X is red by default.

<X> is a RED node.
[X] is a BLACK node (or NIL).

im1: X is root, repaint it into black.

im2: X's parent P is black, nothing violated.

im3: If both the parent P and the uncle U are red, grandpa G is black.
(red-violation)
After repainted G into red may be still red-violation.
Continue to fix grandpa.

	    [G]             <G>
	    / \             / \
	  <P> <U>  ====>  [P] [U]
	  /               /
	<X>             <X>

im4: The parent P is red but the uncle U is black. (red-violation)
X is opposite direction to P. Rotate P to straighten the line.
Then im5 must be entered to fix.

	  [G]                 [G]
	  / \    rotate(P)    / \
	<P> [U]  ========>  <X> [U]
	  \                 /
	  <X>             <P>

im5: Current node is the same direction as parent.

	    [G]                 <P>               [P]
	    / \    rotate(G)    / \    repaint    / \
	  <P> [U]  ========>  <X> [G]  ======>  <X> <G>
	  /                         \                 \
	<X>                         [U]               [U]
*/
func (set *rbSet[T]) insertRebalance(x rbHandle) {
	for loops := int64(1); ; loops++ {
		p := set.node(x).parent
		if /* im1 */ p == nilHandle {
			set.node(x).color = Black
			set.stats.IncreaseFixupCount(opInsert, loops)
			return
		}
		if /* im2 */ set.isBlack(p) {
			set.stats.IncreaseFixupCount(opInsert, loops)
			return
		}

		// A red parent is never the root, so grandpa exists.
		g := set.node(p).parent
		if g == nilHandle {
			// impossible run to here
			panic( /* debug assertion */ "[rbset] red root found while insert rebalance")
		}

		if u := set.sibling(p); /* im3 */ set.isRed(u) {
			set.node(p).color = Black
			set.node(u).color = Black
			set.node(g).color = Red
			x = g
			continue
		}

		dir, pDir := set.direction(x), set.direction(p)
		if /* im4 */ dir != pDir {
			set.rotate(p, pDir)
			x, p = p, x // enter im5 to fix
		}

		/* im5 */
		set.node(p).color = Black
		set.node(g).color = Red
		set.rotate(g, pDir.opposite())
		set.stats.IncreaseFixupCount(opInsert, loops)
		return
	}
}

func (set *rbSet[T]) Remove(val T) {
	if set.root == nilHandle {
		return
	}
	z, _, _ := set.locate(val)
	if z == nilHandle {
		return
	}
	set.removeNode(z)
	atomic.AddInt64(&set.count, -1)
	set.stats.RecordElementCount(-1)
	set.debugAssert("remove")
}

/*
r1: Current node Z has left and right node.
Find Z's pred (or succ) Y, copy Y's value into Z, and splice Y out
instead. Y has at most one child.

Find pred:

	  |                    |
	  Z                    Y
	 / \                  / \
	L  ..   copy(Z, Y)   L  ..
	 \      =========>    \
	  ..                   ..
	   \                    \
	    Y                   (Y removed)

r2: The spliced node Y is red, no black height changed.

r3: The spliced node Y is black and its only child C is red.
Repaint C into black.

r4: The spliced node Y is black and its child position is NIL or black.
(black-violation) Fix the deficient position.
*/
func (set *rbSet[T]) removeNode(z rbHandle) {
	y := z
	if zn := set.node(z); /* r1 */ zn.left != nilHandle && zn.right != nilHandle {
		if set.isRmBorrowSucc {
			y = set.minimum(zn.right)
		} else {
			y = set.maximum(zn.left)
		}
		zn.val = set.node(y).val
	}

	yn := set.node(y)
	c := yn.left
	if c == nilHandle {
		c = yn.right
	}
	p, dir, color := yn.parent, set.direction(y), yn.color
	set.replace(p, dir, c)
	set.arena.recycle(y)

	if /* r2 */ color == Red {
		return
	}
	if /* r3 */ set.isRed(c) {
		set.node(c).color = Black
		return
	}
	/* r4 */
	set.removeRebalance(p, dir)
}

/*
<X> is a RED node.
[X] is a BLACK node (or NIL).
{X} is either a RED node or a BLACK node.

X is the deficient position (P, dir), it may be a NIL.
Sc is the sibling's child on X's side (near nephew).
Sd is the sibling's child away from X's side (far nephew).

rm1: Sibling S is red, so P, Sc and Sd must be black.
Rotate P toward X, repaint S into black and P into red.
Then the new sibling is black, enter rm2-rm5.

	  [P]                   <S>               [S]
	  / \    l-rotate(P)    / \    repaint    / \
	[X] <S>  ==========>  [P] [Sd]  =====>  <P> [Sd]
	    / \               / \               / \
	 [Sc] [Sd]          [X] [Sc]          [X] [Sc]

rm2: P is red, S, Sc and Sd are black.
Repaint S into red and P into black. Done.

	  <P>             [P]
	  / \             / \
	[X] [S]  ====>  [X] <S>
	    / \             / \
	 [Sc] [Sd]       [Sc] [Sd]

rm3: P, S, Sc and Sd are all black.
Repaint S into red to balance P locally. P's position becomes
deficient, continue from P.

rm4: S is black, Sc is red and Sd is black.
Rotate S away from X, swap the colors of S and Sc.
Enter rm5 to fix.

	                        {P}                {P}
	  {P}                   / \                / \
	  / \    r-rotate(S)  [X] <Sc>   repaint  [X] [Sc]
	[X] [S]  ==========>        \    ======>       \
	    / \                     [S]                <S>
	  <Sc> [Sd]                   \                  \
	                              [Sd]               [Sd]

rm5: S is black, Sd is red.
Paint S with P's color, P and Sd into black, rotate P toward X. Done.

	  {P}                   [S]                {S}
	  / \    l-rotate(P)    / \     repaint    / \
	[X] [S]  ==========>  {P} <Sd>  ======>  [P] [Sd]
	    / \               / \                / \
	 [Sc] <Sd>          [X] [Sc]           [X] [Sc]
*/
func (set *rbSet[T]) removeRebalance(p rbHandle, dir RBDirection) {
	loops := int64(0)
	defer func() {
		set.stats.IncreaseFixupCount(opRemove, loops)
	}()

	for p != nilHandle {
		loops++
		s := set.node(p).child(dir.opposite())
		if s == nilHandle {
			// impossible run to here
			panic( /* debug assertion */ "[rbset] deficient position without sibling")
		}

		if /* rm1 */ set.isRed(s) {
			set.rotate(p, dir)
			set.node(s).color = Black
			set.node(p).color = Red
			s = set.node(p).child(dir.opposite())
		}

		sc, sd := set.node(s).child(dir), set.node(s).child(dir.opposite())
		if set.isBlack(sc) && set.isBlack(sd) {
			set.node(s).color = Red
			if /* rm2 */ set.isRed(p) {
				set.node(p).color = Black
				return
			}
			/* rm3 */
			dir = set.direction(p)
			p = set.node(p).parent
			continue
		}

		if /* rm4 */ set.isBlack(sd) {
			set.rotate(s, dir.opposite())
			set.node(sc).color = Black
			set.node(s).color = Red
			s, sd = sc, s
		}

		/* rm5 */
		set.node(s).color = set.node(p).color
		set.node(p).color = Black
		set.node(sd).color = Black
		set.rotate(p, dir)
		return
	}

	// The deficiency moved up to the root, which removes one
	// black from every path at once.
	if set.root != nilHandle {
		set.node(set.root).color = Black
	}
}

// Inorder traversal to implement the DFS.
func (set *rbSet[T]) foreach(action func(idx int64, h rbHandle) bool) {
	aux := set.root
	if aux == nilHandle {
		return
	}

	stack := make([]rbHandle, 0, 64)
	for ; aux != nilHandle; aux = set.node(aux).left {
		stack = append(stack, aux)
	}

	idx := int64(0)
	for size := len(stack); size > 0; size = len(stack) {
		if aux = stack[size-1]; !action(idx, aux) {
			return
		}
		idx++
		stack = stack[:size-1]
		for aux = set.node(aux).right; aux != nilHandle; aux = set.node(aux).left {
			stack = append(stack, aux)
		}
	}
}

func (set *rbSet[T]) Release() {
	set.arena.reset()
	set.root = nilHandle
	if n := atomic.SwapInt64(&set.count, 0); n > 0 {
		set.stats.RecordElementCount(-n)
	}
	if set.stats != nil {
		if err := set.stats.Unregister(); err != nil && set.logger != nil {
			set.logger.Error(err, "[rbset] unregister stats", zap.String("name", set.statsName))
		}
		set.stats = nil
	}
	set.debugAssert("release")
}

func (set *rbSet[T]) debugAssert(op string) {
	if set.logger == nil {
		return
	}
	if err := set.validate(); err != nil {
		set.logger.Error(err, "[rbset] invariant violation",
			zap.String("op", op),
			zap.Int64("len", set.Len()),
			zap.Int("height", set.Height()),
		)
		panic(err)
	}
}

type RBSetOption[T any] func(*rbSet[T])

func WithRBSetDesc[T any]() RBSetOption[T] {
	return func(set *rbSet[T]) {
		set.isDesc = true
	}
}

// WithRBSetRemoveBorrowSucc removes a node with two children by
// its in-order successor instead of the predecessor.
func WithRBSetRemoveBorrowSucc[T any]() RBSetOption[T] {
	return func(set *rbSet[T]) {
		set.isRmBorrowSucc = true
	}
}

func WithRBSetInitCap[T any](capacity int) RBSetOption[T] {
	return func(set *rbSet[T]) {
		set.initCap = capacity
	}
}

// WithRBSetDebugAssert validates every invariant after each mutation.
// A violation is logged and then panics.
func WithRBSetDebugAssert[T any](logger xlog.XLogger) RBSetOption[T] {
	return func(set *rbSet[T]) {
		set.logger = logger
	}
}

func WithRBSetStats[T any](name string) RBSetOption[T] {
	return func(set *rbSet[T]) {
		set.statsName = name
		if len(set.statsName) == 0 {
			set.statsName = "default"
		}
	}
}

func NewRBSet[T infra.OrderedKey](opts ...RBSetOption[T]) OrderedSet[T] {
	return NewRBSetFunc[T](infra.NaturalOrder[T](), opts...)
}

func NewRBSetFunc[T any](cmp infra.OrderedKeyComparator[T], opts ...RBSetOption[T]) OrderedSet[T] {
	if cmp == nil {
		panic("[rbset] nil comparator")
	}
	return newRBSet[T](cmp, opts...)
}

func newRBSet[T any](cmp infra.OrderedKeyComparator[T], opts ...RBSetOption[T]) *rbSet[T] {
	set := &rbSet[T]{
		kcmp:           cmp,
		isDesc:         false,
		isRmBorrowSucc: false,
	}
	for _, o := range opts {
		o(set)
	}
	if set.isDesc {
		set.kcmp = infra.ReverseOrder(set.kcmp)
	}
	set.arena = newRBArena[T](set.initCap)
	if len(set.statsName) > 0 {
		set.stats = newRBSetStats(set.statsName, &set.count)
	}
	return set
}
