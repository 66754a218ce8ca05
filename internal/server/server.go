package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mvp-joe/cindex/internal/indexer"
	"github.com/mvp-joe/cindex/internal/symbols"
)

// Protocol responses.
const (
	Sentinel = "DONE"
	Indexing = "INDEXING"
	Busy     = "BUSY"
)

// DefaultAddr is the address used when none is configured.
const DefaultAddr = "localhost:10000"

// acceptBackoff is the pause after a failed Accept on an open listener.
const acceptBackoff = 50 * time.Millisecond

// Indexer starts indexing jobs.
type Indexer interface {
	Start(ctx context.Context, req indexer.Request) (*indexer.Job, error)
}

// Resolver answers symbol queries.
type Resolver interface {
	Autocomplete(prefix string) []string
	Declaration(name string) (symbols.Location, bool)
	Implementation(name string) (symbols.Location, bool)
	Calls(name string) ([]symbols.Occurrence, bool)
}

// Options configures a Server.
type Options struct {
	// Addr is the TCP address for ListenAndServe.
	Addr string

	// CallContent appends ":<content>" to CALLS lines that have content.
	CallContent bool

	// Watch asks INDEX jobs to install a directory watch on completion.
	Watch bool

	Verbose bool
}

// State is the server lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Server speaks the line protocol. Connections are served one at a time: a
// new connection waits until the current one closes or quits.
type Server struct {
	indexer  Indexer
	resolver Resolver
	opts     Options

	state atomic.Int32

	mu   sync.Mutex
	ln   net.Listener
	conn net.Conn
}

// New creates a server dispatching to idx and resolver.
func New(idx Indexer, resolver Resolver, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	return &Server{
		indexer:  idx,
		resolver: resolver,
		opts:     opts,
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds Options.Addr and serves until QUIT or ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	log.Printf("[server] Listening on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until a client sends QUIT, which returns
// nil, or ctx ends, which closes the listener and any open connection and
// returns ctx.Err(). In-flight indexing jobs are never aborted.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.state.Store(int32(StateRunning))
	defer s.state.Store(int32(StateStopped))
	defer ln.Close()

	stop := context.AfterFunc(ctx, s.closeAll)
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept failed: %w", err)
			}
			log.Printf("[server] Accept error: %v; retrying in %s", err, acceptBackoff)
			select {
			case <-time.After(acceptBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		s.setConn(conn)
		quit := s.serveConn(ctx, conn)
		s.setConn(nil)

		if quit {
			s.state.Store(int32(StateShuttingDown))
			log.Printf("[server] QUIT received, shutting down")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Server) setConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

// closeAll unblocks Accept and any pending read.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		s.ln.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// serveConn runs the read/dispatch loop for one connection and reports
// whether the client asked the server to quit.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) bool {
	defer conn.Close()

	id := uuid.NewString()[:8]
	if s.opts.Verbose {
		log.Printf("[server] Connection %s from %s", id, conn.RemoteAddr())
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, readErr := r.ReadString('\n')
		if line != "" {
			cmd := ParseCommand(line)
			if s.opts.Verbose {
				log.Printf("[server] %s: %s %q", id, cmd.Kind, cmd.Arg)
			}

			s.dispatch(ctx, w, cmd)
			fmt.Fprintln(w, Sentinel)
			if err := w.Flush(); err != nil {
				log.Printf("[server] Connection %s write error: %v", id, err)
				return false
			}
			if cmd.Kind == Quit {
				return true
			}
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && ctx.Err() == nil {
				log.Printf("[server] Connection %s read error: %v", id, readErr)
			} else if s.opts.Verbose {
				log.Printf("[server] Connection %s closed", id)
			}
			return false
		}
	}
}

// dispatch writes the response lines for cmd, without the sentinel.
func (s *Server) dispatch(ctx context.Context, w io.Writer, cmd Command) {
	switch cmd.Kind {
	case Index:
		s.handleIndex(ctx, w, cmd.Arg)
	case Auto:
		for _, name := range s.resolver.Autocomplete(cmd.Arg) {
			fmt.Fprintln(w, name)
		}
	case Impl:
		if loc, ok := s.resolver.Implementation(cmd.Arg); ok {
			fmt.Fprintln(w, loc.String())
		}
	case Decl:
		if loc, ok := s.resolver.Declaration(cmd.Arg); ok {
			fmt.Fprintln(w, loc.String())
		}
	case Calls:
		calls, _ := s.resolver.Calls(cmd.Arg)
		for _, call := range calls {
			fmt.Fprintln(w, s.formatCall(call))
		}
	case Quit, Unknown:
	}
}

// handleIndex resets the index and crawls path. An empty path starts a job
// over an empty file set, which only resets.
func (s *Server) handleIndex(ctx context.Context, w io.Writer, path string) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			log.Printf("[server] Warning: INDEX %s: %v", path, err)
		}
	}

	job, err := s.indexer.Start(ctx, indexer.Request{Root: path, Reset: true, Watch: s.opts.Watch})
	switch {
	case errors.Is(err, indexer.ErrBusy):
		fmt.Fprintln(w, Busy)
	case err != nil:
		log.Printf("[server] Failed to start indexing %s: %v", path, err)
	default:
		log.Printf("[server] Indexing %s (job %s)", path, job.ID)
		fmt.Fprintln(w, Indexing)
	}
}

func (s *Server) formatCall(call symbols.Occurrence) string {
	if s.opts.CallContent && call.Content != "" {
		return call.Location.String() + ":" + call.Content
	}
	return call.Location.String()
}
