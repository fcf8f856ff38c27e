// Package lsp implements the sail-lsp stdio server. Editor requests are
// thin translations over shared project state; the heavy lifting lives in
// the session coordinator that owns the interactive sail process.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TinyuengKwan/sail-lsp/internal/index"
	"github.com/TinyuengKwan/sail-lsp/internal/repl"
	"github.com/TinyuengKwan/sail-lsp/internal/watch"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// ReanalyzeFunc consumes one drained batch of pending re-analysis requests,
// keyed by document URI with the merged force flag.
type ReanalyzeFunc func(batch map[string]bool)

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	// SailPath is the sail executable. Defaults to "sail".
	SailPath string
	// Debounce is the quiet window for coalescing change events.
	Debounce time.Duration
	// CommandTimeout and SpawnTimeout bound session round trips.
	CommandTimeout time.Duration
	SpawnTimeout   time.Duration
	// Watch enables the project-tree file watcher.
	Watch bool
	// Reanalyze replaces the re-analysis pipeline; used by tests.
	Reanalyze ReanalyzeFunc
}

type diagEvent struct {
	uri   string
	force bool
}

// Server handles stdio JSON-RPC for the Sail LSP.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex

	mu                sync.RWMutex
	openDocs          map[string]string
	projectRoot       string
	published         map[string]struct{}
	shutdownRequested bool

	session *repl.Session
	store   *index.Store
	cache   *index.Cache
	watcher *watch.Watcher

	sailPath     string
	debounce     time.Duration
	watchEnabled bool

	diagCh    chan diagEvent
	quit      chan struct{}
	reanalyze ReanalyzeFunc
	loopDone  chan struct{}
}

// NewServer constructs a server over the given streams.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	sailPath := opts.SailPath
	if sailPath == "" {
		sailPath = "sail"
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	s := &Server{
		in:       bufio.NewReader(in),
		out:      bufio.NewWriter(out),
		openDocs: make(map[string]string),
		published: make(map[string]struct{}),
		session: repl.NewSession(repl.Options{
			SailPath:       sailPath,
			SpawnTimeout:   opts.SpawnTimeout,
			CommandTimeout: opts.CommandTimeout,
		}),
		store:        index.NewStore(),
		sailPath:     sailPath,
		debounce:     debounce,
		watchEnabled: opts.Watch,
		diagCh:       make(chan diagEvent, 1024),
		quit:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	if cache, err := index.OpenCache("sail-lsp"); err == nil {
		s.cache = cache
	}
	s.reanalyze = opts.Reanalyze
	if s.reanalyze == nil {
		s.reanalyze = s.runReanalysis
	}
	return s
}

// Run serves LSP requests until shutdown. Notifications are handled
// synchronously so edits apply in arrival order; requests get one goroutine
// each and may block on the session without stalling the read loop.
func (s *Server) Run(ctx context.Context) error {
	go s.diagnosticsLoop()
	defer func() {
		s.mu.Lock()
		w := s.watcher
		s.watcher = nil
		s.mu.Unlock()
		if w != nil {
			w.Stop()
		}
		close(s.quit)
		<-s.loopDone
		s.session.Close()
	}()
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		s.mu.RLock()
		requested := s.shutdownRequested
		s.mu.RUnlock()
		if requested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/hover":
		s.dispatch(msg, s.handleHover)
		return nil
	case "textDocument/definition":
		s.dispatch(msg, s.handleDefinition)
		return nil
	case "textDocument/documentSymbol":
		s.dispatch(msg, s.handleDocumentSymbol)
		return nil
	case "workspace/symbol":
		s.dispatch(msg, s.handleWorkspaceSymbol)
		return nil
	case "textDocument/completion":
		s.dispatch(msg, s.handleCompletion)
		return nil
	case "textDocument/formatting":
		s.dispatch(msg, s.handleFormatting)
		return nil
	case "textDocument/references":
		s.dispatch(msg, s.handleReferences)
		return nil
	case "textDocument/rename":
		s.dispatch(msg, s.handleRename)
		return nil
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, -32601, "method not found")
		}
		return nil
	}
}

// dispatch runs one request handler on its own goroutine. Handler errors
// are send failures; they are logged, not returned, because the client that
// caused them may already be gone.
func (s *Server) dispatch(msg *rpcMessage, handler func(*rpcMessage) error) {
	go func() {
		if err := handler(msg); err != nil {
			s.logf("%s failed: %v", msg.Method, err)
		}
	}()
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	s.mu.Lock()
	s.projectRoot = root
	s.mu.Unlock()

	if root != "" {
		s.cache.Load(root, s.store)
		go func() {
			s.store.Rescan(root)
			if err := s.cache.Save(root, s.store); err != nil {
				s.logf("failed to save index cache: %v", err)
			}
		}()
		if s.watchEnabled {
			s.startWatcher(root)
		}
	}

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save: saveOptions{
					IncludeText: true,
				},
			},
			HoverProvider: true,
			CompletionProvider: &completionOptions{
				TriggerCharacters: []string{"$", "#", ".", ":", " "},
			},
			DefinitionProvider:         true,
			DocumentSymbolProvider:     true,
			WorkspaceSymbolProvider:    true,
			DocumentFormattingProvider: true,
			ReferencesProvider:         true,
			RenameProvider:             true,
		},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) startWatcher(root string) {
	w, err := watch.New(root, index.SourceExt, func(path string) {
		s.enqueue(pathToURI(path), false)
	})
	if err != nil {
		s.logf("file watcher unavailable: %v", err)
		return
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.openDocs[uri] = params.TextDocument.Text
	s.mu.Unlock()
	s.enqueue(uri, true)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	if text, ok := s.openDocs[uri]; ok {
		s.openDocs[uri] = applyChanges(text, params.ContentChanges)
	}
	s.mu.Unlock()
	s.enqueue(uri, false)
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	if params.Text != nil {
		s.mu.Lock()
		s.openDocs[uri] = *params.Text
		s.mu.Unlock()
	}
	// A save may change the entry point sail has loaded, so force a clean
	// restart rather than an incremental reload.
	s.enqueue(uri, true)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.openDocs, uri)
	_, hadDiagnostics := s.published[uri]
	delete(s.published, uri)
	s.mu.Unlock()
	if hadDiagnostics {
		if err := s.sendPublish(uri, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
	return nil
}

// enqueue hands one (document, force) event to the debounce coordinator.
func (s *Server) enqueue(uri string, force bool) {
	select {
	case s.diagCh <- diagEvent{uri: uri, force: force}:
	case <-s.quit:
	}
}

// docText returns the open document's current text.
func (s *Server) docText(uri string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.openDocs[uri]
	return text, ok
}

func (s *Server) root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectRoot
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": publishDiagnosticsParams{
			URI:         uri,
			Diagnostics: list,
		},
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "lsp: "+format+"\n", args...)
}
