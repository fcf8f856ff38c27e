package lsp

import (
	"encoding/json"
	"strings"
)

// handleHover is the one handler that talks to the session directly: it
// asks sail for the type of the word under the cursor. The call competes
// with the debounce coordinator for the session lock, so a hover issued
// mid-reanalysis may block up to the command timeout and come back empty.
func (s *Server) handleHover(msg *rpcMessage) error {
	var params hoverParams
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

	output := s.session.Execute(":t " + word)
	joined := strings.TrimSpace(strings.Join(output, "\n"))
	if joined == "" || strings.Contains(joined, "not found") {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, &hover{
		Contents: markupContent{
			Kind:  "markdown",
			Value: "```sail\n" + joined + "\n```",
		},
	})
}
