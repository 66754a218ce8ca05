package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"
)

// ErrIncompleteResponse is returned when the server closes the connection
// before sending the DONE sentinel.
var ErrIncompleteResponse = errors.New("connection closed before DONE")

const sentinel = "DONE"

// DefaultTimeout bounds one command round trip.
const DefaultTimeout = 10 * time.Second

// Searcher sends one command per connection to a running index server.
type Searcher struct {
	addr    string
	timeout time.Duration
	verbose bool
}

// NewSearcher creates a client for the server at addr ("host:port").
func NewSearcher(addr string, timeout time.Duration, verbose bool) *Searcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Searcher{addr: addr, timeout: timeout, verbose: verbose}
}

// Index asks the server to re-index path. The reply is INDEXING or BUSY.
func (s *Searcher) Index(ctx context.Context, path string) ([]string, error) {
	return s.Command(ctx, "INDEX "+path)
}

// Implementation returns the implementation location of name, if any.
func (s *Searcher) Implementation(ctx context.Context, name string) ([]string, error) {
	return s.Command(ctx, "IMPL "+name)
}

// Declaration returns the declaration location of name, if any.
func (s *Searcher) Declaration(ctx context.Context, name string) ([]string, error) {
	return s.Command(ctx, "DECL "+name)
}

// Calls returns the call-sites or references of name.
func (s *Searcher) Calls(ctx context.Context, name string) ([]string, error) {
	return s.Command(ctx, "CALLS "+name)
}

// Complete returns the names starting with prefix.
func (s *Searcher) Complete(ctx context.Context, prefix string) ([]string, error) {
	return s.Command(ctx, "AUTO "+prefix)
}

// Quit stops the server.
func (s *Searcher) Quit(ctx context.Context) error {
	_, err := s.Command(ctx, "QUIT")
	return err
}

// Command sends one raw command line and returns the response lines that
// precede the sentinel.
func (s *Searcher) Command(ctx context.Context, line string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if s.verbose {
		log.Printf("[client] -> %s", line)
	}
	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	lines := []string{}
	r := bufio.NewReader(conn)
	for {
		reply, err := r.ReadString('\n')
		reply = strings.TrimRight(reply, "\r\n")
		if s.verbose && reply != "" {
			log.Printf("[client] <- %s", reply)
		}
		if reply == sentinel {
			return lines, nil
		}
		if reply != "" {
			lines = append(lines, reply)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, ErrIncompleteResponse
			}
			if ctx.Err() != nil {
				return lines, fmt.Errorf("command %q: %w", line, ctx.Err())
			}
			return lines, fmt.Errorf("failed to read response: %w", err)
		}
	}
}
