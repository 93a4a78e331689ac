package llm

import (
	"encoding/json"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractStructured walks the reply's Markdown AST looking for the first
// fenced ```json block and decodes it. Models asked for structured findings
// habitually wrap them in a fenced block inside prose; surfacing the decoded
// value as Output lets routing expressions and downstream checks consume it
// without re-parsing Content.
func extractStructured(reply string) (any, bool) {
	source := []byte(reply)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var decoded any
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok || string(block.Language(source)) != "json" {
			return ast.WalkContinue, nil
		}

		var body []byte
		for i := 0; i < block.Lines().Len(); i++ {
			line := block.Lines().At(i)
			body = append(body, line.Value(source)...)
		}
		if json.Unmarshal(body, &decoded) == nil {
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return decoded, found
}
