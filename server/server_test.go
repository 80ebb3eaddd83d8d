package server_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/treestore/config"
	"github.com/brettbedarf/treestore/executor"
	"github.com/brettbedarf/treestore/internal/mocks"
	"github.com/brettbedarf/treestore/server"
	"github.com/brettbedarf/treestore/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Port = 0
	cfg.Seed = nil
	return cfg
}

// startServer serves exec on an ephemeral port until the test ends
func startServer(t *testing.T, cfg *config.Config, exec server.CommandExecutor) (*server.Server, <-chan error) {
	t.Helper()

	srv := server.New(cfg, exec)
	done := srv.Start(context.Background())
	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(waitTimeout):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv, done
}

func startTreeServer(t *testing.T) (*server.Server, *tree.Guard) {
	t.Helper()
	g := tree.NewGuard(tree.NewStore())
	srv, _ := startServer(t, testConfig(), executor.New(g))
	return srv, g
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// dial connects and consumes the banner
func dial(t *testing.T, addr string) *client {
	t.Helper()
	c := dialRaw(t, addr)
	assert.Equal(t, server.Banner, c.readLine())
	return c
}

func dialRaw(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, waitTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) readLine() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line
}

// send writes one request line and returns the first reply line
func (c *client) send(line string) string {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
	return c.readLine()
}

func (c *client) expectEOF() {
	c.t.Helper()
	_, err := c.r.ReadString('\n')
	assert.ErrorIs(c.t, err, io.EOF)
}

func TestServer_BannerAndHello(t *testing.T) {
	t.Parallel()

	srv, _ := startTreeServer(t)
	c := dial(t, srv.Addr())

	assert.Equal(t, "Hello from server!\n", c.send("hello"))
	assert.Equal(t, "400 Bad Request: Unknown command 'BOGUS'\n", c.send("BOGUS /x"))
}

func TestServer_ProtocolScenario(t *testing.T) {
	t.Parallel()

	srv, g := startTreeServer(t)
	c := dial(t, srv.Addr())

	assert.Equal(t, "200 OK: Node /Users created.\n", c.send("CREATE_NODE /Users"))
	assert.Equal(t, "200 OK: Leaf /Users/bob created.\n", c.send("CREATE_LEAF /Users/bob bob_data"))
	assert.Equal(t, "200 OK: Leaf /Users/kate created.\n", c.send("CREATE_LEAF /Users/kate kate_data"))
	assert.Equal(t, "200 OK: Node /Users/Login created.\n", c.send("CREATE_NODE /Users/Login\r"))
	assert.Equal(t, "500 Internal Server Error: Failed to create node /Ghost/x: parent not found.\n",
		c.send("CREATE_NODE /Ghost/x"))
	assert.Equal(t, "400 Bad Request: Path /Users already exists.\n", c.send("CREATE_NODE /Users"))
	assert.Equal(t, "400 Bad Request: Path is required for CREATE_NODE.\n", c.send("CREATE_NODE"))

	// PRINT_TREE replies span one line per rendered entry
	assert.Equal(t, "200 OK\n", c.send("PRINT_TREE /Users"))
	lines := []string{c.readLine(), c.readLine(), c.readLine(), c.readLine()}
	assert.Equal(t, "/Users\n", lines[0])
	assert.Contains(t, lines[1], "/Users/Login")
	assert.Contains(t, lines[2], "/Users/bob = bob_data")
	assert.Contains(t, lines[3], "/Users/kate = kate_data")

	assert.Equal(t, "200 OK: Leaf /Users/bob deleted.\n", c.send("DELETE_LEAF /Users/bob"))
	assert.Equal(t, "200 OK: Node /Users deleted.\n", c.send("DELETE_NODE /Users"))
	assert.Equal(t, "404 Not Found: Node /Users/Login not found.\n", c.send("PRINT_TREE /Users/Login"))
	assert.Equal(t, "400 Bad Request: Path is required and cannot be root for DELETE_NODE.\n", c.send("DELETE_NODE /"))

	assert.Equal(t, tree.Stats{Nodes: 1}, g.Stats())
}

func TestServer_ValueWithSpaces(t *testing.T) {
	t.Parallel()

	srv, g := startTreeServer(t)
	c := dial(t, srv.Addr())

	assert.Equal(t, "200 OK: Leaf /motd created.\n", c.send("CREATE_LEAF /motd hello,  wide world "))
	leaf, err := g.FindLeaf("/motd")
	require.NoError(t, err)
	assert.Equal(t, "hello,  wide world ", string(leaf.Value))
}

func TestServer_PassesParsedRequest(t *testing.T) {
	t.Parallel()

	exec := &mocks.MockExecutor{}
	exec.On("Execute", "CREATE_LEAF", "/a", " padded value").Return("200 OK: stub\n").Once()
	exec.On("Execute", "", "", "").Return("400 Bad Request: Unknown command ''\n").Once()

	srv, _ := startServer(t, testConfig(), exec)
	c := dial(t, srv.Addr())

	assert.Equal(t, "200 OK: stub\n", c.send("CREATE_LEAF /a  padded value\r"))
	assert.Equal(t, "400 Bad Request: Unknown command ''\n", c.send(""))
	exec.AssertExpectations(t)
}

func TestServer_ConcurrentClientsShareTree(t *testing.T) {
	t.Parallel()

	srv, g := startTreeServer(t)
	const clients = 8
	const leaves = 20

	var wg sync.WaitGroup
	for i := range clients {
		wg.Go(func() {
			conn, err := net.DialTimeout("tcp", srv.Addr(), waitTimeout)
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()
			r := bufio.NewReader(conn)
			banner, err := r.ReadString('\n')
			assert.NoError(t, err)
			assert.Equal(t, server.Banner, banner)

			dir := fmt.Sprintf("/client%d", i)
			fmt.Fprintf(conn, "CREATE_NODE %s\n", dir)
			reply, err := r.ReadString('\n')
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("200 OK: Node %s created.\n", dir), reply)

			for j := range leaves {
				fmt.Fprintf(conn, "CREATE_LEAF %s/leaf%d v%d\n", dir, j, j)
				reply, err := r.ReadString('\n')
				assert.NoError(t, err)
				assert.True(t, strings.HasPrefix(reply, "200 OK"), reply)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, tree.Stats{Nodes: clients + 1, Leaves: clients * leaves}, g.Stats())
}

func TestServer_ConnectionLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxConnections = 1
	srv, _ := startServer(t, cfg, executor.New(tree.NewGuard(tree.NewStore())))

	first := dial(t, srv.Addr())

	second := dialRaw(t, srv.Addr())
	assert.Equal(t, server.ReplyTooManyConnections, second.readLine())
	second.expectEOF()

	// the first session is unaffected
	assert.Equal(t, "Hello from server!\n", first.send("hello"))

	// its slot frees once it leaves
	first.conn.Close()
	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, waitTimeout, 10*time.Millisecond)
	third := dial(t, srv.Addr())
	assert.Equal(t, "Hello from server!\n", third.send("hello"))
}

func TestServer_LineTooLong(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxLineBytes = 32
	srv, _ := startServer(t, cfg, executor.New(tree.NewGuard(tree.NewStore())))

	c := dial(t, srv.Addr())
	assert.Equal(t, "Hello from server!\n", c.send("hello"))

	reply := c.send("CREATE_LEAF /a " + strings.Repeat("x", 100))
	assert.Equal(t, "400 Bad Request: Line exceeds 32 bytes.\n", reply)
	c.expectEOF()
}

func TestServer_SessionTracking(t *testing.T) {
	t.Parallel()

	srv, _ := startTreeServer(t)
	assert.Equal(t, 0, srv.SessionCount())

	a := dial(t, srv.Addr())
	b := dial(t, srv.Addr())
	assert.Equal(t, 2, srv.SessionCount())

	a.conn.Close()
	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, waitTimeout, 10*time.Millisecond)
	b.conn.Close()
	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestServer_ShutdownDisconnectsClients(t *testing.T) {
	t.Parallel()

	srv, done := startServer(t, testConfig(), executor.New(tree.NewGuard(tree.NewStore())))
	addr := srv.Addr()
	c := dial(t, addr)

	srv.Shutdown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, server.ErrServerClosed)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return after Shutdown")
	}
	c.expectEOF()

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed")

	// serving again is refused
	assert.ErrorIs(t, srv.Serve(context.Background()), server.ErrServerClosed)
}

func TestServer_ContextCancel(t *testing.T) {
	t.Parallel()

	srv := server.New(testConfig(), &mocks.MockExecutor{})
	ctx, cancel := context.WithCancel(context.Background())
	done := srv.Start(ctx)
	<-srv.Ready()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, server.ErrServerClosed)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_ShutdownBeforeServe(t *testing.T) {
	t.Parallel()

	srv := server.New(testConfig(), &mocks.MockExecutor{})
	srv.Shutdown()
	assert.ErrorIs(t, srv.Serve(context.Background()), server.ErrServerClosed)
	assert.Empty(t, srv.Addr())
}

func TestServer_BindFailure(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.Port = taken.Addr().(*net.TCPAddr).Port

	err = server.New(cfg, &mocks.MockExecutor{}).Serve(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, server.ErrServerClosed)
}

func TestServer_MetricsBindFailureStopsServer(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.MetricsAddr = taken.Addr().String()

	err = server.New(cfg, &mocks.MockExecutor{}).Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics server")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	// reserve a free port for the metrics listener
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsAddr := probe.Addr().String()
	require.NoError(t, probe.Close())

	cfg := testConfig()
	cfg.MetricsAddr = metricsAddr
	exec := &mocks.MockExecutor{}
	exec.On("Execute", "hello", "", "").Return("Hello from server!\n")
	srv, _ := startServer(t, cfg, exec)

	c := dial(t, srv.Addr())
	c.send("hello")

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + metricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(b)
		return true
	}, waitTimeout, 20*time.Millisecond)

	assert.Contains(t, body, "treestore_connections_active")
	assert.Contains(t, body, `treestore_connections_total{outcome="accepted"}`)
	exec.AssertCalled(t, "Execute", "hello", "", "")
}
