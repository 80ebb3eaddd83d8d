// Package executor turns parsed protocol commands into tree operations and
// formats the textual reply for each one.
package executor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brettbedarf/treestore/internal/util"
	"github.com/brettbedarf/treestore/tree"
)

// Protocol commands
const (
	CmdHello      = "hello"
	CmdCreateNode = "CREATE_NODE"
	CmdCreateLeaf = "CREATE_LEAF"
	CmdDeleteNode = "DELETE_NODE"
	CmdDeleteLeaf = "DELETE_LEAF"
	CmdPrintTree  = "PRINT_TREE"
)

// Reply status codes
const (
	CodeConnected   = 100
	CodeOK          = 200
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeServerError = 500
	CodeUnavailable = 503
)

// TreeStore is the guarded store surface the executor drives.
// [*tree.Guard] satisfies it.
type TreeStore interface {
	CreateNode(path string) error
	CreateLeaf(path string, value []byte) error
	DeleteNode(path string) (bool, error)
	DeleteLeaf(path string) (bool, error)
	RenderPath(path string) (string, error)
	Stats() tree.Stats
}

var _ TreeStore = (*tree.Guard)(nil)

// reply is a status code plus the full reply text without the trailing newline
type reply struct {
	code int
	text string
}

type handlerFunc func(e *Executor, path, value string) reply

type command struct {
	handle      handlerFunc
	needsPath   bool
	mutatesTree bool
}

// commands is the dispatch table. Matching is exact and case-sensitive.
var commands = map[string]command{
	CmdHello:      {handle: (*Executor).hello},
	CmdCreateNode: {handle: (*Executor).createNode, needsPath: true, mutatesTree: true},
	CmdCreateLeaf: {handle: (*Executor).createLeaf, needsPath: true, mutatesTree: true},
	CmdDeleteNode: {handle: (*Executor).deleteNode, needsPath: true, mutatesTree: true},
	CmdDeleteLeaf: {handle: (*Executor).deleteLeaf, needsPath: true, mutatesTree: true},
	CmdPrintTree:  {handle: (*Executor).printTree, needsPath: true},
}

// Executor executes protocol commands against a TreeStore.
// It holds no per-call state and is safe for concurrent use as long as the
// store is.
type Executor struct {
	store TreeStore
}

// New returns an Executor bound to store.
func New(store TreeStore) *Executor {
	return &Executor{store: store}
}

// Execute runs one command and returns its reply. The reply always ends in a
// newline. Command errors are reported in the reply text, never returned.
func (e *Executor) Execute(cmd, path, value string) string {
	logger := util.GetLogger("Executor.Execute")
	start := time.Now()

	r := e.dispatch(cmd, path, value)

	label := cmd
	if _, ok := commands[cmd]; !ok {
		label = "unknown"
	}
	commandsTotal.WithLabelValues(label, strconv.Itoa(r.code)).Inc()
	commandDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	logger.Debug().Str("command", cmd).Str("path", path).Int("code", r.code).Msg("Executed command")

	if !strings.HasSuffix(r.text, "\n") {
		return r.text + "\n"
	}
	return r.text
}

func (e *Executor) dispatch(cmd, path, value string) reply {
	c, ok := commands[cmd]
	if !ok {
		return reply{CodeBadRequest, fmt.Sprintf("400 Bad Request: Unknown command '%s'", cmd)}
	}
	if c.needsPath && path == "" {
		return reply{CodeBadRequest, fmt.Sprintf("400 Bad Request: Path is required for %s.", cmd)}
	}

	r := c.handle(e, path, value)
	if c.mutatesTree && r.code == CodeOK {
		setTreeGauges(e.store)
	}
	return r
}

func (e *Executor) hello(_, _ string) reply {
	return reply{CodeOK, "Hello from server!"}
}

func (e *Executor) createNode(path, _ string) reply {
	if err := e.store.CreateNode(path); err != nil {
		return createFailure("node", path, err)
	}
	return reply{CodeOK, fmt.Sprintf("200 OK: Node %s created.", path)}
}

func (e *Executor) createLeaf(path, value string) reply {
	if err := e.store.CreateLeaf(path, []byte(value)); err != nil {
		return createFailure("leaf", path, err)
	}
	return reply{CodeOK, fmt.Sprintf("200 OK: Leaf %s created.", path)}
}

func createFailure(kind, path string, err error) reply {
	switch {
	case errors.Is(err, tree.ErrInvalidPath):
		return reply{CodeBadRequest, fmt.Sprintf("400 Bad Request: Invalid path %s.", path)}
	case errors.Is(err, tree.ErrPathExists):
		return reply{CodeBadRequest, fmt.Sprintf("400 Bad Request: Path %s already exists.", path)}
	case errors.Is(err, tree.ErrParentNotFound):
		return reply{CodeServerError, fmt.Sprintf("500 Internal Server Error: Failed to create %s %s: parent not found.", kind, path)}
	default:
		return failure(path, err)
	}
}

func (e *Executor) deleteNode(path, _ string) reply {
	if path == "/" {
		return reply{CodeBadRequest, "400 Bad Request: Path is required and cannot be root for DELETE_NODE."}
	}
	deleted, err := e.store.DeleteNode(path)
	if err != nil {
		return failure(path, err)
	}
	if !deleted {
		return reply{CodeNotFound, fmt.Sprintf("404 Not Found: Failed to delete node %s.", path)}
	}
	return reply{CodeOK, fmt.Sprintf("200 OK: Node %s deleted.", path)}
}

func (e *Executor) deleteLeaf(path, _ string) reply {
	deleted, err := e.store.DeleteLeaf(path)
	if err != nil {
		return failure(path, err)
	}
	if !deleted {
		return reply{CodeNotFound, fmt.Sprintf("404 Not Found: Failed to delete leaf %s.", path)}
	}
	return reply{CodeOK, fmt.Sprintf("200 OK: Leaf %s deleted.", path)}
}

func (e *Executor) printTree(path, _ string) reply {
	out, err := e.store.RenderPath(path)
	if errors.Is(err, tree.ErrNotFound) {
		return reply{CodeNotFound, fmt.Sprintf("404 Not Found: Node %s not found.", path)}
	}
	if err != nil {
		return failure(path, err)
	}
	return reply{CodeOK, "200 OK\n" + out}
}

// failure maps unexpected store errors. A broken invariant gets its own text
// so it cannot be mistaken for a missing parent.
func failure(path string, err error) reply {
	logger := util.GetLogger("Executor")
	if errors.Is(err, tree.ErrInconsistent) {
		logger.Error().Err(err).Str("path", path).Msg("Store invariant violated")
		return reply{CodeServerError, fmt.Sprintf("500 Internal Server Error: Store inconsistency at %s.", path)}
	}
	logger.Error().Err(err).Str("path", path).Msg("Unexpected store error")
	return reply{CodeServerError, fmt.Sprintf("500 Internal Server Error: %s.", err)}
}
