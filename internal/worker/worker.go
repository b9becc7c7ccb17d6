// Package worker implements the per-connection task (spec.md §4.5): admit,
// register, serve-loop, and clean up on every exit path exactly once. The
// scoped-cleanup shape is the same "every lock/acquire is paired with a
// deferred release on every exit path, including cancellation" discipline
// used for condition-variable waits elsewhere in this module (internal/gate)
// and for per-request scoped state elsewhere in the ecosystem.
package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/go-kvtree/kvtree/internal/command"
	"github.com/go-kvtree/kvtree/internal/gate"
	"github.com/go-kvtree/kvtree/internal/roster"
	"github.com/go-kvtree/kvtree/internal/wire"
)

// Deps are the shared collaborators every worker serves against.
type Deps struct {
	Roster *roster.Roster
	Gate   *gate.Gate
	Interp *command.Interp
	Log    *slog.Logger
}

// Serve runs one connection's full lifecycle: admission, registration,
// the read/gate/execute/write loop, and cleanup. It returns once the
// connection is fully torn down. ctx is the parent context; Serve derives
// its own cancellable child and registers that child's cancel function as
// its roster.Client.Cancel, so CancelAll (spec.md §4.4) reaches each worker
// individually without cancelling ctx or affecting siblings.
//
// Serve takes ownership of conn: it is closed on every exit path.
func Serve(ctx context.Context, conn wire.Stream, deps Deps) {
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := roster.NewClient(cancel)
	if !deps.Roster.TryRegister(client) {
		// The server is closed; admission must not proceed past this point.
		conn.Close()
		return
	}
	defer func() {
		deps.Roster.Unregister(client)
		conn.Close()
	}()

	// The blocking stream read is itself a cancellation point (spec.md §5):
	// with no I/O deadline of its own, ReadCommand only ever unblocks by
	// closing conn out from under it, so a cancel arriving while idle on a
	// read must force that close instead of merely canceling workerCtx.
	stop := context.AfterFunc(workerCtx, func() { conn.Close() })
	defer stop()

	reader := bufio.NewReader(conn)
	for {
		line, err := wire.ReadCommand(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && workerCtx.Err() == nil {
				deps.Log.Info("client connection error", "error", err)
			}
			return
		}

		if err := deps.Gate.Wait(workerCtx); err != nil {
			return
		}

		start := time.Now()
		resp := deps.Interp.Execute(workerCtx, line)
		deps.Log.Debug("command executed",
			slog.String("op", opName(line)),
			slog.String("result", resp),
			slog.Duration("latency", time.Since(start)),
		)

		if err := wire.WriteResponse(conn, resp); err != nil {
			deps.Log.Info("client connection error", "error", err)
			return
		}
	}
}

func opName(line string) string {
	if len(line) == 0 {
		return ""
	}
	return string(line[0])
}
