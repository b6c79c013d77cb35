// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package document extracts plain text from plan attachments (PDF, Word,
// Excel and text files) so it can be passed to the agents as file content.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/plancraft/pkg/tokens"
)

// ErrUnsupported is returned for file types no parser handles.
var ErrUnsupported = errors.New("unsupported document type")

// maxSheetCells limits cells read per spreadsheet sheet.
const maxSheetCells = 1000

// TruncationMarker is appended to content cut to the token budget.
const TruncationMarker = "\n...(truncated)"

// MaxFileSize caps the size of a single attachment.
const MaxFileSize = 10 << 20

// ErrTooLarge is returned for attachments over MaxFileSize.
var ErrTooLarge = errors.New("attachment too large")

// File is an attachment's name and raw bytes. Parsing never touches the
// filesystem; callers that accept paths read them with ReadFile.
type File struct {
	Name string `json:"name"`
	Data []byte `json:"content"`
}

// ReadFile loads a local file as an attachment.
func ReadFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("%w: %s", ErrTooLarge, filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return File{Name: filepath.Base(path), Data: data}, nil
}

// Document is extracted attachment text.
type Document struct {
	Name     string
	Content  string
	Metadata map[string]string
}

// Parser extracts text from one family of files.
type Parser interface {
	Extensions() []string
	Parse(ctx context.Context, data []byte) (*Document, error)
}

// Registry dispatches files to parsers by extension.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(pdfParser{})
	r.Register(wordParser{})
	r.Register(excelParser{})
	r.Register(textParser{})
	return r
}

// Register adds p for each of its extensions, replacing earlier parsers.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.parsers[ext] = p
	}
}

// Extensions lists supported extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Parse extracts the text of f, choosing the parser by the extension of
// its name. Only the base name is kept.
func (r *Registry) Parse(ctx context.Context, f File) (*Document, error) {
	name := filepath.Base(filepath.Clean("/" + f.Name))
	ext := strings.ToLower(filepath.Ext(name))
	p, ok := r.parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if len(f.Data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, name)
	}
	doc, err := p.Parse(ctx, f.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	doc.Name = name
	return doc, nil
}

// Combine parses every file and joins the results under a header per file.
// Each document is trimmed to maxTokens when counter is set and maxTokens
// is positive.
func (r *Registry) Combine(ctx context.Context, files []File, counter *tokens.Counter, maxTokens int) (string, error) {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		doc, err := r.Parse(ctx, f)
		if err != nil {
			return "", err
		}
		content := doc.Content
		if maxTokens > 0 {
			content = counter.Truncate(content, maxTokens, TruncationMarker)
		}
		parts = append(parts, fmt.Sprintf("### File: %s\n%s", doc.Name, content))
	}
	return strings.Join(parts, "\n\n"), nil
}

type textParser struct{}

func (textParser) Extensions() []string { return []string{".txt", ".md", ".csv", ".json", ".yaml", ".yml"} }

func (textParser) Parse(_ context.Context, data []byte) (*Document, error) {
	return &Document{
		Content:  string(data),
		Metadata: map[string]string{"type": "Text"},
	}, nil
}

type pdfParser struct{}

func (pdfParser) Extensions() []string { return []string{".pdf"} }

func (pdfParser) Parse(ctx context.Context, data []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []string
	total := reader.NumPage()
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", n, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", n, text))
		}
	}

	return &Document{
		Content: strings.Join(pages, "\n\n"),
		Metadata: map[string]string{
			"type":  "PDF Document",
			"pages": fmt.Sprintf("%d", total),
		},
	}, nil
}

type wordParser struct{}

func (wordParser) Extensions() []string { return []string{".docx"} }

func (wordParser) Parse(_ context.Context, data []byte) (*Document, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	return &Document{
		Content:  stripXML(doc.Editable().GetContent()),
		Metadata: map[string]string{"type": "Word Document"},
	}, nil
}

// stripXML drops the WordprocessingML tags docx returns, keeping one line
// per paragraph.
func stripXML(s string) string {
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

type excelParser struct{}

func (excelParser) Extensions() []string { return []string{".xlsx"} }

func (excelParser) Parse(ctx context.Context, data []byte) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var parts []string
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Sheet: %s (read failed: %v) ---", sheet, err))
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "--- Sheet: %s ---\n", sheet)
		cells := 0
		for _, row := range rows {
			if cells >= maxSheetCells {
				b.WriteString("... (truncated)\n")
				break
			}
			cells += len(row)
			if strings.TrimSpace(strings.Join(row, "")) == "" {
				continue
			}
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		parts = append(parts, strings.TrimSpace(b.String()))
	}

	return &Document{
		Content: strings.Join(parts, "\n\n"),
		Metadata: map[string]string{
			"type":   "Excel Spreadsheet",
			"sheets": fmt.Sprintf("%d", len(sheets)),
		},
	}, nil
}
