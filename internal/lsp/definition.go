package lsp

import (
	"encoding/json"

	"github.com/TinyuengKwan/sail-lsp/internal/index"
)

func (s *Server) handleDefinition(msg *rpcMessage) error {
	var params definitionParams
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
	syms := s.store.Lookup(word)
	if len(syms) == 0 {
		return s.sendResponse(msg.ID, nil)
	}
	if len(syms) == 1 {
		return s.sendResponse(msg.ID, symbolLocation(syms[0]))
	}
	locations := make([]location, 0, len(syms))
	for _, sym := range syms {
		locations = append(locations, symbolLocation(sym))
	}
	return s.sendResponse(msg.ID, locations)
}

func symbolLocation(sym index.Symbol) location {
	return location{
		URI: pathToURI(sym.Path),
		Range: lspRange{
			Start: position{Line: sym.Line, Character: sym.StartChar},
			End:   position{Line: sym.Line, Character: sym.EndChar},
		},
	}
}
