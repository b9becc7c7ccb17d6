package bst

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Print writes a textual dump of the tree to w: one line per node, indented
// proportionally to depth, "name value" for real nodes and "(root)" for the
// sentinel, with "(null)" standing in for absent children at the matching
// indent. Each subtree root is read-locked for the duration of its own
// traversal only; siblings do not block each other, so the result is a
// snapshot consistent within each subtree but not atomic across the whole
// tree.
func (t *Tree) Print(w io.Writer) error {
	bw := bufio.NewWriter(w)
	t.root.mu.RLock()
	printNode(bw, t.root, 0, true)
	t.root.mu.RUnlock()
	return bw.Flush()
}

// PrintFile truncates (or creates) path and writes the tree dump to it.
func (t *Tree) PrintFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.Print(f)
}

func printNode(w *bufio.Writer, n *node, depth int, isRoot bool) {
	indent := strings.Repeat("  ", depth)
	if isRoot {
		fmt.Fprintf(w, "%s(root)\n", indent)
		// The sentinel's left child is a structural invariant, always nil
		// (the empty name compares least); printing it would just be a
		// second, permanently-"(null)" line with no information in it.
		printChild(w, n.right, depth+1)
		return
	}

	fmt.Fprintf(w, "%s%s %s\n", indent, n.name, n.value)
	printChild(w, n.left, depth+1)
	printChild(w, n.right, depth+1)
}

func printChild(w *bufio.Writer, n *node, depth int) {
	if n == nil {
		fmt.Fprintf(w, "%s(null)\n", strings.Repeat("  ", depth))
		return
	}
	n.mu.RLock()
	printNode(w, n, depth, false)
	n.mu.RUnlock()
}
