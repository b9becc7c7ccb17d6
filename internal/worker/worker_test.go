package worker

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-kvtree/kvtree/internal/bst"
	"github.com/go-kvtree/kvtree/internal/command"
	"github.com/go-kvtree/kvtree/internal/gate"
	"github.com/go-kvtree/kvtree/internal/roster"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeps() (Deps, *roster.Roster, *roster.Counter) {
	counter := roster.NewCounter()
	r := roster.New(counter)
	return Deps{
		Roster: r,
		Gate:   gate.New(),
		Interp: command.New(bst.New()),
		Log:    discardLogger(),
	}, r, counter
}

func TestServeRoundTripAddThenQuery(t *testing.T) {
	deps, _, counter := newTestDeps()
	client, server := net.Pipe()

	done := make(chan struct{})
	go func() {
		Serve(context.Background(), server, deps)
		close(done)
	}()

	rd := bufio.NewReader(client)

	_, err := client.Write([]byte("a foo bar\n"))
	require.NoError(t, err)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "added\n", line)

	_, err = client.Write([]byte("q foo\n"))
	require.NoError(t, err)
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bar\n", line)

	client.Close()
	<-done
	waitForZero(t, counter)
}

func TestServeRejectsAdmissionOnClosedRoster(t *testing.T) {
	deps, r, counter := newTestDeps()
	r.Close()

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		Serve(context.Background(), server, deps)
		close(done)
	}()

	// A rejected worker closes its end; the client side observes EOF rather
	// than any response.
	buf := make([]byte, 1)
	_, err := client.Read(buf)
	assert.Error(t, err)

	<-done
	assert.Equal(t, 0, counter.N())
}

func TestServeGateStopBlocksResponseUntilRelease(t *testing.T) {
	deps, _, counter := newTestDeps()
	deps.Gate.Stop()

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		Serve(context.Background(), server, deps)
		close(done)
	}()

	rd := bufio.NewReader(client)
	_, err := client.Write([]byte("q foo\n"))
	require.NoError(t, err)

	readDone := make(chan struct{})
	go func() {
		rd.ReadString('\n')
		close(readDone)
	}()

	select {
	case <-readDone:
		t.Fatal("response arrived while gate was stopped")
	case <-time.After(50 * time.Millisecond):
	}

	deps.Gate.Release()

	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("response never arrived after gate release")
	}

	client.Close()
	<-done
	waitForZero(t, counter)
}

func TestServeExitsOnClientClose(t *testing.T) {
	deps, _, counter := newTestDeps()
	client, server := net.Pipe()

	done := make(chan struct{})
	go func() {
		Serve(context.Background(), server, deps)
		close(done)
	}()

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after client closed")
	}
	waitForZero(t, counter)
}

func TestServeExitsOnContextCancellation(t *testing.T) {
	deps, _, counter := newTestDeps()
	deps.Gate.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		Serve(ctx, server, deps)
		close(done)
	}()

	_, err := client.Write([]byte("q foo\n"))
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
	waitForZero(t, counter)
}

func TestServeExitsOnContextCancellationWhileIdleOnRead(t *testing.T) {
	deps, _, counter := newTestDeps()

	ctx, cancel := context.WithCancel(context.Background())
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		Serve(ctx, server, deps)
		close(done)
	}()

	// No command sent: the worker is blocked inside ReadCommand with no
	// gate wait and no pending response to race against. Only closing the
	// connection out from under that read can unblock it.
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation while idle on read")
	}
	waitForZero(t, counter)
}

func waitForZero(t *testing.T, counter *roster.Counter) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for counter.N() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, counter.N())
}
