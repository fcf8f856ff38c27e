package lsp

import (
	"encoding/json"
	"os"
	"strings"
)

func (s *Server) handleReferences(msg *rpcMessage) error {
	var params referenceParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	content, ok := s.docText(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}
	word := wordAt(content, params.Position)
	if word == "" {
		return s.sendResponse(msg.ID, nil)
	}

	var refs []location
	s.scanProject(word, func(uri string, edits []lspRange) {
		for _, r := range edits {
			refs = append(refs, location{URI: uri, Range: r})
		}
	})
	return s.sendResponse(msg.ID, refs)
}

func (s *Server) handleRename(msg *rpcMessage) error {
	var params renameParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	content, ok := s.docText(params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}
	word := wordAt(content, params.Position)
	if word == "" {
		return s.sendResponse(msg.ID, nil)
	}

	changes := make(map[string][]textEdit)
	s.scanProject(word, func(uri string, ranges []lspRange) {
		edits := make([]textEdit, 0, len(ranges))
		for _, r := range ranges {
			edits = append(edits, textEdit{Range: r, NewText: params.NewName})
		}
		changes[uri] = edits
	})
	return s.sendResponse(msg.ID, workspaceEdit{Changes: changes})
}

// scanProject runs the boundary-checked word scan over every project file,
// preferring open-document text over what is on disk, and reports the match
// ranges per document. This is substring matching, not resolution: it finds
// textual occurrences only.
func (s *Server) scanProject(word string, report func(uri string, ranges []lspRange)) {
	for _, path := range s.store.Files() {
		uri := pathToURI(path)
		if uri == "" {
			continue
		}
		text, open := s.docText(uri)
		if !open {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			text = string(data)
		}

		var ranges []lspRange
		for lineNo, line := range strings.Split(text, "\n") {
			for _, off := range wordMatches(line, word) {
				ranges = append(ranges, lspRange{
					Start: position{Line: lineNo, Character: byteToUTF16(line, off)},
					End:   position{Line: lineNo, Character: byteToUTF16(line, off+len(word))},
				})
			}
		}
		if len(ranges) > 0 {
			report(uri, ranges)
		}
	}
}
