package lsp

import (
	"time"

	"github.com/TinyuengKwan/sail-lsp/internal/project"
)

// diagnosticsLoop is the debounce coordinator. It accumulates (document,
// force) events, OR-merging the force flag per document, and flushes the
// whole pending map as one batch once a quiet window passes without new
// events. Coalescing keeps a burst of keystrokes from costing one full
// re-analysis each.
func (s *Server) diagnosticsLoop() {
	defer close(s.loopDone)
	pending := make(map[string]bool)
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.diagCh:
			pending[ev.uri] = pending[ev.uri] || ev.force
		case <-time.After(s.debounce):
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = make(map[string]bool)
			s.reanalyze(batch)
		}
	}
}

// runReanalysis performs one flushed batch: a session round trip (reload or
// restart), a full index rescan, then one diagnostics publication covering
// every document that was pending, so documents whose diagnostics went away
// receive an explicit empty batch.
func (s *Server) runReanalysis(batch map[string]bool) {
	anyForce := false
	representative := ""
	for uri, force := range batch {
		anyForce = anyForce || force
		if representative == "" {
			representative = uri
		}
	}
	repPath := uriToPath(representative)
	if repPath == "" {
		return
	}
	root := s.root()

	entryFile := project.FindEntryFile(root, repPath)
	output := s.session.Reanalyze(anyForce, entryFile)

	if root != "" {
		s.store.Rescan(root)
		if err := s.cache.Save(root, s.store); err != nil {
			s.logf("failed to save index cache: %v", err)
		}
	}

	diags := parseDiagnostics(output, root, repPath)
	s.publishBatch(batch, diags)
}

// publishBatch sends one publication per document in the union of the
// pending set and the documents named by the parsed diagnostics.
func (s *Server) publishBatch(batch map[string]bool, diags map[string][]lspDiagnostic) {
	union := make(map[string]struct{}, len(batch)+len(diags))
	for uri := range batch {
		union[uri] = struct{}{}
	}
	for uri := range diags {
		union[uri] = struct{}{}
	}
	for uri := range union {
		list := diags[uri]
		if err := s.sendPublish(uri, list); err != nil {
			s.logf("failed to publish diagnostics: %v", err)
			continue
		}
		s.mu.Lock()
		if len(list) > 0 {
			s.published[uri] = struct{}{}
		} else {
			delete(s.published, uri)
		}
		s.mu.Unlock()
	}
}
