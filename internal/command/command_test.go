package command

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kvtree/kvtree/internal/bst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS1BasicRoundTrip(t *testing.T) {
	in := New(bst.New())
	ctx := context.Background()

	assert.Equal(t, "added", in.Execute(ctx, "a foo 1"))
	assert.Equal(t, "1", in.Execute(ctx, "q foo"))
	assert.Equal(t, "removed", in.Execute(ctx, "d foo"))
	assert.Equal(t, "not found", in.Execute(ctx, "q foo"))
}

func TestS2DuplicateInsert(t *testing.T) {
	in := New(bst.New())
	ctx := context.Background()

	assert.Equal(t, "added", in.Execute(ctx, "a x 1"))
	assert.Equal(t, "already in database", in.Execute(ctx, "a x 2"))
	assert.Equal(t, "1", in.Execute(ctx, "q x"))
}

func TestS3TwoChildRemoval(t *testing.T) {
	in := New(bst.New())
	ctx := context.Background()

	for _, k := range []string{"m", "c", "t", "a", "f", "p", "w"} {
		require.Equal(t, "added", in.Execute(ctx, "a "+k+" 0"))
	}

	assert.Equal(t, "removed", in.Execute(ctx, "d m"))
	assert.Equal(t, "not found", in.Execute(ctx, "q m"))
	assert.Equal(t, "0", in.Execute(ctx, "q p"))
	assert.Equal(t, "0", in.Execute(ctx, "q f"))
	assert.Equal(t, "0", in.Execute(ctx, "q t"))
}

func TestIllFormedCommands(t *testing.T) {
	in := New(bst.New())
	ctx := context.Background()

	cases := []string{
		"",
		"q",
		"z foo",
		"q ",
		"a foo",
		"a foo bar baz",
		"d",
	}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			assert.Equal(t, "ill-formed command", in.Execute(ctx, c))
		})
	}
}

func TestBoundaryKeyLengths(t *testing.T) {
	in := New(bst.New())
	ctx := context.Background()

	ok := strings.Repeat("a", MaxFieldLen)
	assert.Equal(t, "added", in.Execute(ctx, "a "+ok+" v"))

	tooLong := strings.Repeat("b", MaxFieldLen+1)
	assert.Equal(t, "ill-formed command", in.Execute(ctx, "a "+tooLong+" v"))
}

func TestRemoveOnEmptyTree(t *testing.T) {
	in := New(bst.New())
	assert.Equal(t, "not in database", in.Execute(context.Background(), "d x"))
}

func TestFileCommandProcessesEachLine(t *testing.T) {
	in := New(bst.New())
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "batch.txt")
	require.NoError(t, os.WriteFile(path, []byte("a foo 1\na bar 2\n"), 0o600))

	assert.Equal(t, "file processed", in.Execute(ctx, "f "+path))
	assert.Equal(t, "1", in.Execute(ctx, "q foo"))
	assert.Equal(t, "2", in.Execute(ctx, "q bar"))
}

func TestFileCommandBadPath(t *testing.T) {
	in := New(bst.New())
	assert.Equal(t, "bad file name", in.Execute(context.Background(), "f /no/such/path"))
}

func TestFileCommandCancellationStopsBatch(t *testing.T) {
	in := New(bst.New())

	dir := t.TempDir()
	path := filepath.Join(dir, "batch.txt")
	require.NoError(t, os.WriteFile(path, []byte("a foo 1\na bar 2\na baz 3\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in.Execute(ctx, "f "+path)
	assert.Equal(t, "not found", in.Execute(context.Background(), "q foo"))
}
