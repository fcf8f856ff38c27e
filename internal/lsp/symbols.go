package lsp

import (
	"encoding/json"
	"sort"
	"strings"
)

func (s *Server) handleDocumentSymbol(msg *rpcMessage) error {
	var params documentSymbolParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	path := uriToPath(params.TextDocument.URI)
	if path == "" {
		return s.sendResponse(msg.ID, nil)
	}
	syms := s.store.FileSymbols(path)
	out := make([]documentSymbol, 0, len(syms))
	for _, sym := range syms {
		r := lspRange{
			Start: position{Line: sym.Line, Character: sym.StartChar},
			End:   position{Line: sym.Line, Character: sym.EndChar},
		}
		out = append(out, documentSymbol{
			Name:           sym.Name,
			Kind:           sym.Kind.LSP(),
			Range:          r,
			SelectionRange: r,
		})
	}
	return s.sendResponse(msg.ID, out)
}

func (s *Server) handleWorkspaceSymbol(msg *rpcMessage) error {
	var params workspaceSymbolParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	query := strings.ToLower(params.Query)
	syms := s.store.Match(func(lowerName string) bool {
		return strings.Contains(lowerName, query)
	})
	out := make([]symbolInformation, 0, len(syms))
	for _, sym := range syms {
		out = append(out, symbolInformation{
			Name:     sym.Name,
			Kind:     sym.Kind.LSP(),
			Location: symbolLocation(sym),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Location.URI != out[j].Location.URI {
			return out[i].Location.URI < out[j].Location.URI
		}
		return out[i].Location.Range.Start.Line < out[j].Location.Range.Start.Line
	})
	return s.sendResponse(msg.ID, out)
}
