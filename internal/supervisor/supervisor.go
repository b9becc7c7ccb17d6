// Package supervisor implements the process driver (spec.md §4.7, component
// C7): it owns every shared singleton behind one ServerContext, starts the
// listener and signal monitor, runs the administrative input loop, and
// executes the strict shutdown sequence. The constructor/options shape here
// follows the top-level `New(opts ...GlobalOption)` idiom used for HTTP
// router construction elsewhere in the ecosystem, generalized to this
// server's handful of process-lifetime collaborators.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/go-kvtree/kvtree/internal/bst"
	"github.com/go-kvtree/kvtree/internal/command"
	"github.com/go-kvtree/kvtree/internal/gate"
	"github.com/go-kvtree/kvtree/internal/roster"
	"github.com/go-kvtree/kvtree/internal/sigmon"
	"github.com/go-kvtree/kvtree/internal/worker"
)

// Server is the top-level ServerContext spec.md §9 calls for: every
// process-lifetime singleton (Gate, Roster, counter, Tree) lives here
// instead of as a free-floating package global, and is handed explicitly to
// the admission callback and every task that needs it.
type Server struct {
	addr string
	log  *slog.Logger

	tree    *bst.Tree
	gate    *gate.Gate
	counter *roster.Counter
	roster  *roster.Roster
	interp  *command.Interp

	addrReady atomic.Value // string, set once the listener is bound.
}

// Addr returns the listener's bound address once Run has started it, or
// "" before that. Useful in tests that bind to port 0.
func (s *Server) Addr() string {
	v, _ := s.addrReady.Load().(string)
	return v
}

// Option configures a Server at construction: a function over the
// not-yet-returned value, applied in New before the Server is handed back
// to the caller.
type Option func(*Server)

// WithLogger overrides the default io.Discard-free stderr-text logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New returns a Server listening at addr once Run is called, with its own
// Tree, Gate, Roster and counter, all freshly constructed and not shared
// with any other Server in the process.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		log:     slog.Default(),
		tree:    bst.New(),
		gate:    gate.New(),
		counter: roster.NewCounter(),
	}
	s.roster = roster.New(s.counter)
	s.interp = command.New(s.tree)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the listener and signal monitor, drives the administrative
// loop against stdin/stdout until EOF, then executes the shutdown sequence
// of spec.md §4.7 before returning. It returns once every task the Server
// started has been joined; the only error it can return is a listener
// startup failure.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("supervisor: listen %s: %w", s.addr, err)
	}
	s.addrReady.Store(ln.Addr().String())
	s.log.Info("listening", slog.String("addr", ln.Addr().String()))

	workerCtx := context.Background()
	monCtx, cancelMon := context.WithCancel(ctx)

	var monGroup, lnGroup errgroup.Group
	mon := sigmon.New(s.log)
	monGroup.Go(func() error {
		mon.Run(monCtx, s.roster.CancelAll)
		return nil
	})
	lnGroup.Go(func() error {
		return acceptLoop(ln, func(conn net.Conn) {
			worker.Serve(workerCtx, conn, worker.Deps{
				Roster: s.roster,
				Gate:   s.gate,
				Interp: s.interp,
				Log:    s.log,
			})
		})
	})

	s.adminLoop(stdin, stdout)

	// Shutdown sequence, spec.md §4.7, strict order.
	s.roster.Close()     // 1: mark closed, under the roster mutex.
	s.roster.CancelAll() // 2.
	s.counter.WaitZero() // 3: only safe moment to assume no lock holders.
	cancelMon()          // 4: cancel the signal monitor,
	_ = monGroup.Wait()  //    and join it.
	s.tree.Cleanup()     // 5.
	_ = ln.Close()       // 6: cancel the listener,
	_ = lnGroup.Wait()   //    and join it.
	s.log.Info("shutdown complete")
	return nil
}

// acceptLoop runs until ln is closed, handing each accepted connection to
// onAccept in its own goroutine. A closed listener is the normal exit path
// (step 6 of the shutdown sequence), not an error.
func acceptLoop(ln net.Listener, onAccept func(net.Conn)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go onAccept(conn)
	}
}

// adminLoop reads administrative commands from stdin until EOF, per
// spec.md §6's "Administrative CLI (supervisor stdin)".
func (s *Server) adminLoop(stdin io.Reader, stdout io.Writer) {
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "s":
			s.gate.Stop()
			s.log.Info("gate stopped")
		case "g":
			s.gate.Release()
			s.log.Info("gate released")
		case "p":
			s.handlePrint(fields[1:], stdout)
		default:
			fmt.Fprintf(stdout, "unrecognized command: %s\n", fields[0])
		}
	}
}

func (s *Server) handlePrint(args []string, stdout io.Writer) {
	if len(args) == 0 {
		if err := s.tree.Print(stdout); err != nil {
			s.log.Info("print failed", slog.String("error", err.Error()))
		}
		return
	}

	if err := s.tree.PrintFile(args[0]); err != nil {
		s.log.Info("print to file failed",
			slog.String("path", args[0]), slog.String("error", err.Error()))
		fmt.Fprintf(stdout, "could not open %s\n", args[0])
	}
}
