package lsp

import (
	"encoding/json"
	"strings"

	"github.com/TinyuengKwan/sail-lsp/internal/format"
)

func (s *Server) handleFormatting(msg *rpcMessage) error {
	var params documentFormattingParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	uri := params.TextDocument.URI
	content, ok := s.docText(uri)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}
	formatted, ok := format.Run(s.sailPath, uriToPath(uri), content)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, []textEdit{
		{
			Range:   fullDocumentRange(content),
			NewText: formatted,
		},
	})
}

// fullDocumentRange spans from the document start to the end of its last
// line, with the end column in UTF-16 units.
func fullDocumentRange(content string) lspRange {
	lines := strings.Split(content, "\n")
	last := len(lines) - 1
	return lspRange{
		Start: position{Line: 0, Character: 0},
		End:   position{Line: last, Character: utf16Width(lines[last])},
	}
}
