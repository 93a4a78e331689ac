package cli

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"

	"github.com/dshills/checkrun/engine"
)

// reportHTML converts the report's Markdown rendering to a standalone HTML
// fragment suitable for CI artifact upload.
func reportHTML(report *engine.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(report.RenderMarkdown()), &buf); err != nil {
		return nil, fmt.Errorf("render report HTML: %w", err)
	}
	return buf.Bytes(), nil
}
