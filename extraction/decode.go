package extraction

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns content as UTF-8 text, dropping a byte-order mark and
// replacing invalid sequences.
func decodeText(content []byte) string {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "�")
}

// decodeJSON checks the document parses and re-indents it so that keys and
// values split on line boundaries.
func decodeJSON(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !json.Valid(content) {
		return "", errors.New("invalid JSON document")
	}
	var out bytes.Buffer
	if err := json.Indent(&out, content, "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

// decodeCSV renders each row as one line of comma-separated cells.
func decodeCSV(content []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var sb strings.Builder
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("invalid CSV: %w", err)
		}
		sb.WriteString(strings.Join(row, ", "))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// skippedElements hold no readable text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true, "template": true,
}

// decodeHTML returns the visible text of an HTML document, one block per line.
func decodeHTML(content []byte) string {
	z := html.NewTokenizer(bytes.NewReader(content))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseBlankLines(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] && skip > 0 {
				skip--
			}
			sb.WriteByte('\n')
		case html.TextToken:
			if skip == 0 {
				if text := strings.TrimSpace(string(z.Text())); text != "" {
					sb.WriteString(text)
					sb.WriteByte(' ')
				}
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// looksLikeHTML reports whether a mail body is HTML rather than plain text.
func looksLikeHTML(content []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(content))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) ||
		bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<body")) ||
		bytes.Contains(head, []byte("<div"))
}

// pdfPageCount validates a PDF and returns its page count.
func pdfPageCount(content []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(content), conf); err != nil {
		return 0, err
	}
	return api.PageCount(bytes.NewReader(content), conf)
}

// checkImage decodes the header of a PNG, JPEG or WebP image and confirms
// its format.
func checkImage(content []byte, format string) error {
	_, got, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return err
	}
	if got != format {
		return fmt.Errorf("content is %s, not %s", got, format)
	}
	return nil
}
