package extraction

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "hello", decodeText(append([]byte{0xEF, 0xBB, 0xBF}, "hello"...)))
	assert.Equal(t, "a�b", decodeText([]byte{'a', 0xff, 'b'}))
}

func TestDecodeJSON(t *testing.T) {
	text, err := decodeJSON([]byte(`{"a":1,"b":[true]}`))
	require.NoError(t, err)
	assert.Contains(t, text, "\n  \"a\": 1")

	_, err = decodeJSON([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestDecodeCSV(t *testing.T) {
	text, err := decodeCSV([]byte("name,qty\nbolt,4\nnut\n"))
	require.NoError(t, err)
	assert.Equal(t, "name, qty\nbolt, 4\nnut\n", text)
}

func TestDecodeHTML(t *testing.T) {
	doc := []byte(`<html><head><title>T</title><style>p{}</style></head>
<body><h1>Quarterly report</h1><script>var x = 1;</script><p>Revenue <b>grew</b>.</p></body></html>`)
	text := decodeHTML(doc)
	assert.Contains(t, text, "Quarterly report")
	assert.Contains(t, text, "Revenue")
	assert.Contains(t, text, "grew")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "p{}")
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, looksLikeHTML([]byte("  <!DOCTYPE html><html></html>")))
	assert.True(t, looksLikeHTML([]byte("<div>hi</div>")))
	assert.False(t, looksLikeHTML([]byte("Hi team,\nsee attached.")))
}

func TestPDFPageCount(t *testing.T) {
	pages, err := pdfPageCount(MinimalPDF("hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, pages)

	_, err = pdfPageCount([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestCheckImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))

	assert.NoError(t, checkImage(buf.Bytes(), "png"))
	assert.Error(t, checkImage(buf.Bytes(), "jpeg"))
	assert.Error(t, checkImage(buf.Bytes(), "webp"))
	assert.Error(t, checkImage([]byte("nope"), "png"))
}
