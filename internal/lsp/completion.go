package lsp

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TinyuengKwan/sail-lsp/internal/index"
)

var completionKeywords = []string{
	"val", "function", "type", "struct", "union", "enum", "let", "var",
	"if", "then", "else", "match", "register", "mapping", "overload",
	"outcome", "clause", "forall", "pure", "impure", "monadic",
	"scattered", "end",
}

var completionBuiltinTypes = []string{
	"int", "nat", "bool", "unit", "bit", "string", "real", "list",
	"vector", "bitvector", "bits", "atom", "range",
}

var completionDirectives = []string{
	"$define", "$include", "$ifdef", "$ifndef", "$endif", "$iftarget",
	"$option",
}

func (s *Server) handleCompletion(msg *rpcMessage) error {
	var params completionParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, -32602, "invalid params")
		}
	}
	prefix := ""
	if content, ok := s.docText(params.TextDocument.URI); ok {
		prefix = wordPrefixAt(content, params.Position)
	}

	var items []completionItem
	for _, kw := range completionKeywords {
		if strings.HasPrefix(kw, prefix) {
			items = append(items, completionItem{Label: kw, Kind: completionKindKeyword})
		}
	}
	for _, t := range completionBuiltinTypes {
		if strings.HasPrefix(t, prefix) {
			items = append(items, completionItem{Label: t, Kind: completionKindClass})
		}
	}
	for _, d := range completionDirectives {
		if strings.HasPrefix(d, prefix) {
			items = append(items, completionItem{Label: d, Kind: completionKindKeyword})
		}
	}

	syms := s.store.Match(func(lowerName string) bool {
		return strings.HasPrefix(lowerName, prefix)
	})
	sort.Slice(syms, func(i, j int) bool { return syms[i].Name < syms[j].Name })
	seen := make(map[string]struct{}, len(syms))
	for _, sym := range syms {
		if _, dup := seen[sym.Name]; dup {
			continue
		}
		seen[sym.Name] = struct{}{}
		items = append(items, completionItem{
			Label:  sym.Name,
			Kind:   completionItemKind(sym.Kind),
			Detail: filepath.Base(sym.Path),
		})
	}
	return s.sendResponse(msg.ID, items)
}

func completionItemKind(k index.Kind) int {
	switch k {
	case index.KindFunction:
		return completionKindFunction
	case index.KindType:
		return completionKindClass
	case index.KindField:
		return completionKindField
	case index.KindVariable:
		return completionKindVariable
	default:
		return completionKindConstant
	}
}
