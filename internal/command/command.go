// Package command implements the textual command interpreter (spec.md
// §4.2): it parses one command line, dispatches to the shared Tree, and
// formats a response string. The per-line parse-then-dispatch shape
// generalizes the path-segment parser used for HTTP routes elsewhere in the
// retrieval pack (a first-token dispatch into per-verb handling) to this
// protocol's four single-letter verbs.
package command

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/go-kvtree/kvtree/internal/bst"
)

// MaxFieldLen is the maximum length, in bytes, of a name or value once
// scanned off a command line. It is one less than bst.MaxKeyLen: the tree
// itself tolerates exactly MaxKeyLen bytes, but the wire protocol commits to
// a tighter 255-byte bound per spec.md §4.2.
const MaxFieldLen = 255

const (
	// Fixed response strings; a successful query responds with the stored
	// value instead.
	respIllFormed    = "ill-formed command"
	respNotFound     = "not found"
	respAdded        = "added"
	respDuplicate    = "already in database"
	respRemoved      = "removed"
	respNotInDB      = "not in database"
	respFileOK       = "file processed"
	respBadFileName  = "bad file name"
)

// Interp executes command lines against a shared Tree.
type Interp struct {
	tree *bst.Tree
}

// New returns an interpreter bound to tree.
func New(tree *bst.Tree) *Interp {
	return &Interp{tree: tree}
}

// Execute parses and runs one command line, returning the response text
// (without a trailing newline). ctx is consulted as a cancellation point
// between each line of a batch file (the "f" command); it is otherwise
// unused, since Tree operations themselves do not block.
func (in *Interp) Execute(ctx context.Context, line string) string {
	if len(line) < 2 || line[1] != ' ' {
		return respIllFormed
	}

	op, rest := line[0], strings.TrimLeft(line[2:], " \t")
	switch op {
	case 'q':
		return in.query(rest)
	case 'a':
		return in.add(rest)
	case 'd':
		return in.remove(rest)
	case 'f':
		return in.file(ctx, rest)
	default:
		return respIllFormed
	}
}

func (in *Interp) query(rest string) string {
	name := rest
	if name == "" || strings.ContainsAny(name, " \t") || len(name) > MaxFieldLen {
		return respIllFormed
	}

	value, err := in.tree.Query(name)
	if err != nil {
		return respNotFound
	}
	return value
}

func (in *Interp) add(rest string) string {
	name, value, ok := splitTwo(rest)
	if !ok || len(name) > MaxFieldLen || len(value) > MaxFieldLen {
		return respIllFormed
	}

	if err := in.tree.Add(name, value); err != nil {
		if errors.Is(err, bst.ErrDuplicate) {
			return respDuplicate
		}
		return respIllFormed
	}
	return respAdded
}

func (in *Interp) remove(rest string) string {
	name := rest
	if name == "" || strings.ContainsAny(name, " \t") || len(name) > MaxFieldLen {
		return respIllFormed
	}

	if err := in.tree.Remove(name); err != nil {
		return respNotInDB
	}
	return respRemoved
}

// file reads path line by line, recursively interpreting each line as a
// command. A cooperative cancellation check runs after every line so a
// worker canceled mid-batch can still exit.
func (in *Interp) file(ctx context.Context, path string) string {
	if path == "" || strings.ContainsAny(path, " \t") {
		return respBadFileName
	}

	f, err := os.Open(path)
	if err != nil {
		return respBadFileName
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return respIllFormed
		}
		in.Execute(ctx, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return respBadFileName
	}
	return respFileOK
}

func splitTwo(s string) (first, second string, ok bool) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return "", "", false
	}
	first = s[:i]
	second = strings.TrimLeft(s[i+1:], " \t")
	if first == "" || second == "" || strings.ContainsAny(second, " \t") {
		return "", "", false
	}
	return first, second, true
}
