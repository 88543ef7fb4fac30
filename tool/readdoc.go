package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kadirpekel/loom/message"
)

// ReadDocDeclaration is the schema for the read_document tool: read a local
// file and return its text, exercising the Attachment pipeline (spec.md
// §4.1's attachments-on-tool-results path) by also returning the original
// bytes as an Attachment so a later message can reference the source file
// directly rather than only its extracted text.
var ReadDocDeclaration = Declaration{
	Name:        "read_document",
	Description: "Read a local document (plain text or PDF) and return its text content.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Filesystem path to the document"},
		},
		"required": []string{"path"},
	},
	Source: "local",
}

// ReadDoc implements the read_document tool. PDFs are extracted page by
// page via ledongthuc/pdf; any other file is returned as plain text. Both
// cases attach the original bytes so the caller can forward the source file
// downstream.
func ReadDoc(ctx context.Context, tc ToolContext, args map[string]any) (string, []message.Attachment, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", nil, fmt.Errorf("read_document: path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read_document: reading %s: %w", path, err)
	}

	mime := mimeFor(path)
	attachment := message.Attachment{
		Filename: filepath.Base(path),
		MimeType: mime,
		Bytes:    raw,
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := extractPDFText(ctx, path, int64(len(raw)))
		if err != nil {
			return "", nil, fmt.Errorf("read_document: extracting %s: %w", path, err)
		}
		return text, []message.Attachment{attachment}, nil
	}

	return string(raw), []message.Attachment{attachment}, nil
}

// extractPDFText walks the document page by page, matching the teacher's
// native PDF parser (pkg/rag/native_parsers.go's pdfParser.Parse) rather
// than ledongthuc/pdf's higher-level whole-document reader, so a page that
// fails to extract doesn't abort the rest of the document.
func extractPDFText(ctx context.Context, path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, size)
	if err != nil {
		return "", err
	}

	var parts []string
	for n := 1; n <= reader.NumPage(); n++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- page %d (extraction failed: %v) ---", n, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- page %d ---\n%s", n, text))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	case ".json":
		return "application/json"
	default:
		return "text/plain"
	}
}
