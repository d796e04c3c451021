// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "strings"

// ContentKind is a supported family of record content.
type ContentKind int

const (
	KindUnsupported ContentKind = iota
	KindPDF
	KindDOCX
	KindDOC
	KindXLSX
	KindXLS
	KindCSV
	KindPPTX
	KindPPT
	KindHTML
	KindMarkdown
	KindMDX
	KindText
	KindJSON
	KindPNG
	KindJPEG
	KindWEBP
	KindSVG
	KindGmail
	KindGoogleDoc
	KindGoogleSheet
	KindGoogleSlides
)

var kindNames = map[ContentKind]string{
	KindUnsupported:  "unsupported",
	KindPDF:          "pdf",
	KindDOCX:         "docx",
	KindDOC:          "doc",
	KindXLSX:         "xlsx",
	KindXLS:          "xls",
	KindCSV:          "csv",
	KindPPTX:         "pptx",
	KindPPT:          "ppt",
	KindHTML:         "html",
	KindMarkdown:     "md",
	KindMDX:          "mdx",
	KindText:         "txt",
	KindJSON:         "json",
	KindPNG:          "png",
	KindJPEG:         "jpeg",
	KindWEBP:         "webp",
	KindSVG:          "svg",
	KindGmail:        "gmail",
	KindGoogleDoc:    "google-doc",
	KindGoogleSheet:  "google-sheet",
	KindGoogleSlides: "google-slides",
}

func (k ContentKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Supported reports whether k has an extraction path.
func (k ContentKind) Supported() bool {
	return k != KindUnsupported
}

// IsImage reports whether k is a raster or vector image.
func (k ContentKind) IsImage() bool {
	switch k {
	case KindPNG, KindJPEG, KindWEBP, KindSVG:
		return true
	}
	return false
}

// IsText reports whether k is decoded directly as text without conversion.
func (k ContentKind) IsText() bool {
	switch k {
	case KindText, KindMarkdown, KindMDX, KindJSON, KindCSV, KindHTML, KindGmail:
		return true
	}
	return false
}

// AllKinds lists every supported content kind.
func AllKinds() []ContentKind {
	kinds := make([]ContentKind, 0, len(kindNames)-1)
	for k := KindPDF; k <= KindGoogleSlides; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Mime types are consulted before extensions; connectors such as Gmail and
// Google Workspace send content with no meaningful file extension.
var kindsByMimeType = map[string]ContentKind{
	"application/pdf": KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   KindDOCX,
	"application/msword":                                                        KindDOC,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         KindXLSX,
	"application/vnd.ms-excel":                                                  KindXLS,
	"text/csv":                                                                  KindCSV,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": KindPPTX,
	"application/vnd.ms-powerpoint":                                             KindPPT,
	"text/html":                                                                 KindHTML,
	"text/markdown":                                                             KindMarkdown,
	"text/mdx":                                                                  KindMDX,
	"text/plain":                                                                KindText,
	"application/json":                                                          KindJSON,
	"image/png":                                                                 KindPNG,
	"image/jpeg":                                                                KindJPEG,
	"image/webp":                                                                KindWEBP,
	"image/svg+xml":                                                             KindSVG,
	"text/gmail_content":                                                        KindGmail,
	"application/vnd.google-apps.document":                                      KindGoogleDoc,
	"application/vnd.google-apps.spreadsheet":                                   KindGoogleSheet,
	"application/vnd.google-apps.presentation":                                  KindGoogleSlides,
}

var kindsByExtension = map[string]ContentKind{
	"pdf":      KindPDF,
	"docx":     KindDOCX,
	"doc":      KindDOC,
	"xlsx":     KindXLSX,
	"xls":      KindXLS,
	"csv":      KindCSV,
	"pptx":     KindPPTX,
	"ppt":      KindPPT,
	"html":     KindHTML,
	"htm":      KindHTML,
	"md":       KindMarkdown,
	"markdown": KindMarkdown,
	"mdx":      KindMDX,
	"txt":      KindText,
	"json":     KindJSON,
	"png":      KindPNG,
	"jpg":      KindJPEG,
	"jpeg":     KindJPEG,
	"webp":     KindWEBP,
	"svg":      KindSVG,
}

// KindOf resolves the content kind for a mime type and file extension.
// Unknown combinations resolve to KindUnsupported.
func KindOf(mimeType, extension string) ContentKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if k, ok := kindsByMimeType[mt]; ok {
		return k
	}
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extension), "."))
	if k, ok := kindsByExtension[ext]; ok {
		return k
	}
	return KindUnsupported
}
