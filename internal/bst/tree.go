package bst

// Tree is a concurrent BST mapping name to value, ordered by strict
// lexicographic byte comparison on name. The zero value is not usable; use
// New.
type Tree struct {
	root *node
}

// New returns an empty tree, already holding its never-destroyed sentinel
// root. All real data lives in the sentinel's right subtree, since the
// sentinel's empty name compares less than every non-empty name.
func New() *Tree {
	return &Tree{root: &node{}}
}

// descend performs the hand-over-hand (lock-coupling) traversal described in
// spec.md §4.1. The caller picks write for add/remove or read (write=false)
// for query/print; every lock taken during the walk is taken in that same
// mode. descend starts at the sentinel root and, at each step, locks the
// next child before releasing the current node's lock, so a concurrent
// mutator can never observe a path with no lock held anywhere along it.
//
// It stops either on an exact name match or once the next child pointer is
// nil. parent is returned locked unless retainParent is false, in which
// case its lock is released before returning in both outcomes — a match
// (nothing left for the caller to do with it) or a miss (the last node on
// the search path must not be left locked; see Query, the only !retainParent
// caller, which has no use for parent either way). target is non-nil and
// separately locked, in the same mode, exactly when found is true.
func (t *Tree) descend(name string, write, retainParent bool) (parent *node, target *node, found bool) {
	parent = t.root
	parent.lock(write)

	for {
		childp := parent.childPtr(name)
		child := *childp
		if child == nil {
			if !retainParent {
				parent.unlock(write)
				return nil, nil, false
			}
			return parent, nil, false
		}

		child.lock(write)
		if child.name == name {
			if !retainParent {
				parent.unlock(write)
				return nil, child, true
			}
			return parent, child, true
		}

		parent.unlock(write)
		parent = child
	}
}

// Query returns the value stored under name, or ErrNotFound.
func (t *Tree) Query(name string) (string, error) {
	_, target, found := t.descend(name, false, false)
	if !found {
		return "", ErrNotFound
	}
	value := target.value
	target.mu.RUnlock()
	return value, nil
}

// Add inserts name/value. It returns ErrDuplicate if name is already
// present, or ErrKeyTooLong if either exceeds MaxKeyLen bytes.
func (t *Tree) Add(name, value string) error {
	parent, target, found := t.descend(name, true, true)
	if found {
		target.mu.Unlock()
		parent.mu.Unlock()
		return ErrDuplicate
	}

	n, err := newNode(name, value)
	if err != nil {
		parent.mu.Unlock()
		return err
	}

	*parent.childPtr(name) = n
	parent.mu.Unlock()
	return nil
}

// Remove deletes name. It returns ErrNotFound if name is absent.
func (t *Tree) Remove(name string) error {
	parent, target, found := t.descend(name, true, true)
	if !found {
		parent.mu.Unlock()
		return ErrNotFound
	}
	defer parent.mu.Unlock()
	defer target.mu.Unlock()

	childp := parent.childPtr(name)

	switch {
	case target.right == nil:
		*childp = target.left
	case target.left == nil:
		*childp = target.right
	default:
		t.spliceSuccessor(target)
	}
	return nil
}

// spliceSuccessor implements the two-child removal case: the in-order
// successor (the smallest key in target's right subtree) is copied over
// target's fields and then unlinked from where it was. target and its
// original parent are already write-locked by the caller; spliceSuccessor
// additionally lock-couples down the left spine of target's right subtree.
func (t *Tree) spliceSuccessor(target *node) {
	succParent := target // conceptually: the location holding succ is succParent's right-or-left child
	succ := target.right
	succ.mu.Lock()

	for succ.left != nil {
		next := succ.left
		next.mu.Lock()
		if succParent != target {
			succParent.mu.Unlock()
		}
		succParent = succ
		succ = next
	}

	target.name = succ.name
	target.value = succ.value

	if succParent == target {
		target.right = succ.right
	} else {
		succParent.left = succ.right
		succParent.mu.Unlock()
	}
	succ.mu.Unlock()
}
