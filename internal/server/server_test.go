package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cindex/internal/indexer"
	"github.com/mvp-joe/cindex/internal/indexer/parsers"
	"github.com/mvp-joe/cindex/internal/symbols"
)

// Test Plan for Server:
// - DECL/IMPL/CALLS/AUTO answer the a.h/a.c scenario over the wire
// - Every response ends with DONE; unknown and malformed commands get only DONE
// - CALLS appends content only when enabled
// - INDEX answers INDEXING, a second INDEX during the job answers BUSY and starts nothing
// - INDEX with no argument starts an empty job that resets the index
// - A transient Accept error is logged and the server keeps accepting
// - QUIT answers DONE, stops the server and closes the listener
// - Connections are served one at a time
// - Peer disconnect returns the server to accepting
// - Cancelling the context closes an idle connection and returns

const (
	headerSrc = "void foo(void);\n"
	sourceSrc = `#include "a.h"

/* foo calls bar */

int counter;

void foo(void)
{
    counter++;
    bar();
}
`
	barSrc = "void bar(void)\n{\n}\n"
)

// gatedAnalyzer blocks every analysis until gate is closed.
type gatedAnalyzer struct {
	inner *parsers.Analyzer
	gate  chan struct{}
}

func (g *gatedAnalyzer) Analyze(ctx context.Context, path string) ([]symbols.Event, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Analyze(ctx, path)
}

func newAnalyzer() *parsers.Analyzer {
	return parsers.NewAnalyzer([]string{".c", ".cpp"}, []string{".h", ".hpp"})
}

func scenarioDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{"a.h": headerSrc, "a.c": sourceSrc, "b.c": barSrc} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

// indexedCoordinator returns a coordinator whose index already holds dir.
func indexedCoordinator(t *testing.T, dir string) (*indexer.Coordinator, *symbols.Index) {
	t.Helper()
	idx := symbols.NewIndex()
	coord := indexer.NewCoordinator(idx, newAnalyzer(), nil)
	job, err := coord.Start(context.Background(), indexer.Request{Root: dir, Reset: true})
	require.NoError(t, err)
	_, err = job.Wait()
	require.NoError(t, err)
	return coord, idx
}

type running struct {
	addr   string
	cancel context.CancelFunc
	errCh  chan error
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func serve(t *testing.T, srv *Server) *running {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{addr: ln.Addr().String(), cancel: cancel, errCh: make(chan error, 1)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.errCh <- srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

// send writes one command and returns the lines before the sentinel.
func (c *client) send(t *testing.T, line string) []string {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	return c.readResponse(t)
}

func (c *client) readResponse(t *testing.T) []string {
	t.Helper()
	lines := []string{}
	for {
		line, err := c.r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == Sentinel {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestServer_Queries(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{})
	r := serve(t, srv)
	c := dial(t, r.addr)

	assert.Equal(t, []string{filepath.Join(dir, "a.h") + ":1:6"}, c.send(t, "DECL foo"))
	assert.Equal(t, []string{filepath.Join(dir, "a.c") + ":7:6"}, c.send(t, "IMPL foo"))
	assert.Equal(t, []string{filepath.Join(dir, "a.c") + ":10:5"}, c.send(t, "CALLS bar"))
	assert.Equal(t, []string{"foo"}, c.send(t, "AUTO fo"))
	assert.Equal(t, []string{"bar", "foo"}, c.send(t, "AUTO"))

	// Known implementation without calls and unknown names look the same.
	assert.Empty(t, c.send(t, "CALLS foo"))
	assert.Empty(t, c.send(t, "CALLS nothing"))

	assert.Empty(t, c.send(t, "DECL missing"))
	assert.Empty(t, c.send(t, "IMPL missing"))
	assert.Empty(t, c.send(t, "HELLO"))
	assert.Empty(t, c.send(t, "INDEXX "+dir))
	assert.Empty(t, c.send(t, ""))

	assert.Equal(t, StateRunning, srv.State())
	assert.Equal(t, r.addr, srv.Addr().String())
}

func TestServer_CallContent(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{CallContent: true})
	r := serve(t, srv)
	c := dial(t, r.addr)

	assert.Equal(t, []string{filepath.Join(dir, "a.c") + ":10:5:bar();"}, c.send(t, "CALLS bar"))
}

func TestServer_IndexSingleFlight(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	analyzer := &gatedAnalyzer{inner: newAnalyzer(), gate: make(chan struct{})}
	idx := symbols.NewIndex()
	coord := indexer.NewCoordinator(idx, analyzer, nil)
	srv := New(coord, symbols.NewResolver(idx), Options{})
	r := serve(t, srv)
	c := dial(t, r.addr)

	assert.Equal(t, []string{Indexing}, c.send(t, "INDEX "+dir))
	assert.Equal(t, []string{Busy}, c.send(t, "INDEX "+dir))
	assert.Equal(t, []string{Busy}, c.send(t, "INDEX /elsewhere"))
	assert.EqualValues(t, 1, coord.JobsStarted())

	close(analyzer.gate)
	_, err := coord.Wait()
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "a.h") + ":1:6"}, c.send(t, "DECL foo"))

	assert.EqualValues(t, 1, coord.JobsStarted())
}

func TestServer_IndexWithoutPathResets(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{Watch: true})
	r := serve(t, srv)
	c := dial(t, r.addr)

	assert.Equal(t, []string{Indexing}, c.send(t, "INDEX"))
	stats, err := coord.Wait()
	require.NoError(t, err)
	assert.Zero(t, stats.FilesDiscovered)
	assert.EqualValues(t, 2, coord.JobsStarted())

	assert.Empty(t, c.send(t, "DECL foo"))
	assert.Equal(t, symbols.Stats{}, idx.Stats())
}

// flakyListener fails its first Accept with a non-closed error.
type flakyListener struct {
	net.Listener
	failed atomic.Bool
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failed.CompareAndSwap(false, true) {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	return l.Listener.Accept()
}

func TestServer_AcceptErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{})

	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln := &flakyListener{Listener: inner}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	c := dial(t, inner.Addr().String())
	assert.Equal(t, []string{filepath.Join(dir, "a.h") + ":1:6"}, c.send(t, "DECL foo"))
	assert.True(t, ln.failed.Load())

	assert.Empty(t, c.send(t, "QUIT"))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_IndexMissingPathResets(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{})
	r := serve(t, srv)
	c := dial(t, r.addr)

	assert.Equal(t, []string{Indexing}, c.send(t, "INDEX "+filepath.Join(dir, "missing")))
	_, err := coord.Wait()
	require.NoError(t, err)

	assert.Empty(t, c.send(t, "DECL foo"))
}

func TestServer_Quit(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{})
	r := serve(t, srv)
	c := dial(t, r.addr)

	assert.Empty(t, c.send(t, "QUIT"))
	require.NoError(t, r.wait(t))
	assert.Equal(t, StateStopped, srv.State())

	// The connection is closed and nothing accepts anymore.
	_, err := c.r.ReadString('\n')
	assert.Error(t, err)
	_, err = net.DialTimeout("tcp", r.addr, time.Second)
	assert.Error(t, err)
}

func TestServer_QuitDoesNotAbortJob(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	analyzer := &gatedAnalyzer{inner: newAnalyzer(), gate: make(chan struct{})}
	idx := symbols.NewIndex()
	coord := indexer.NewCoordinator(idx, analyzer, nil)
	srv := New(coord, symbols.NewResolver(idx), Options{})
	r := serve(t, srv)
	c := dial(t, r.addr)

	assert.Equal(t, []string{Indexing}, c.send(t, "INDEX "+dir))
	assert.Empty(t, c.send(t, "QUIT"))
	require.NoError(t, r.wait(t))

	close(analyzer.gate)
	stats, err := coord.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesIndexed)
}

func TestServer_SerialConnections(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{})
	r := serve(t, srv)

	first := dial(t, r.addr)
	assert.Equal(t, []string{"foo"}, first.send(t, "AUTO fo"))

	second := dial(t, r.addr)
	_, err := second.conn.Write([]byte("AUTO ba\n"))
	require.NoError(t, err)

	// Not served while the first connection is open.
	require.NoError(t, second.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = second.r.ReadString('\n')
	var ne net.Error
	require.True(t, errors.As(err, &ne) && ne.Timeout(), "expected timeout, got %v", err)

	// Peer disconnect returns the server to accepting.
	require.NoError(t, first.conn.Close())
	require.NoError(t, second.conn.SetReadDeadline(time.Time{}))
	assert.Equal(t, []string{"bar"}, second.readResponse(t))
}

func TestServer_ContextCancel(t *testing.T) {
	t.Parallel()

	dir := scenarioDir(t)
	coord, idx := indexedCoordinator(t, dir)
	srv := New(coord, symbols.NewResolver(idx), Options{})
	r := serve(t, srv)

	c := dial(t, r.addr)
	assert.Equal(t, []string{"foo"}, c.send(t, "AUTO fo"))

	r.cancel()
	assert.ErrorIs(t, r.wait(t), context.Canceled)
	assert.Equal(t, StateStopped, srv.State())
}

func TestServer_ListenAndServeBindError(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(nil, symbols.NewResolver(symbols.NewIndex()), Options{Addr: ln.Addr().String()})
	err = srv.ListenAndServe(context.Background())
	assert.Error(t, err)
}
