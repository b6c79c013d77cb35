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

package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/plancraft/pkg/tokens"
)

func TestParseText(t *testing.T) {
	doc, err := NewRegistry().Parse(context.Background(), File{Name: "notes.md", Data: []byte("# Notes\nlaunch in Q3")})
	require.NoError(t, err)
	assert.Equal(t, "notes.md", doc.Name)
	assert.Contains(t, doc.Content, "launch in Q3")
}

func TestParseKeepsBaseName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"../../etc/notes.txt", "notes.txt"},
		{"/var/data/brief.md", "brief.md"},
		{"plain.csv", "plain.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewRegistry().Parse(context.Background(), File{Name: tt.name, Data: []byte("x")})
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.Name)
			assert.Equal(t, "x", doc.Content)
		})
	}
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Item"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Cost"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Servers"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 1200))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	doc, err := NewRegistry().Parse(context.Background(), File{Name: "budget.xlsx", Data: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, "budget.xlsx", doc.Name)
	assert.Contains(t, doc.Content, "--- Sheet: Sheet1 ---")
	assert.Contains(t, doc.Content, "| Servers | 1200 |")
	assert.Equal(t, "1", doc.Metadata["sheets"])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		file File
		want error
	}{
		{"unsupported", File{Name: "image.png"}, ErrUnsupported},
		{"no extension", File{Name: "README"}, ErrUnsupported},
		{"too large", File{Name: "big.txt", Data: make([]byte, MaxFileSize+1)}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry().Parse(context.Background(), tt.file)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseCorruptPDF(t *testing.T) {
	_, err := NewRegistry().Parse(context.Background(), File{Name: "deck.pdf", Data: []byte("not a pdf")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse deck.pdf")
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, File{Name: "brief.txt", Data: []byte("hello")}, f)

	_, err = ReadFile(filepath.Join(dir, "missing.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCombineTruncates(t *testing.T) {
	files := []File{
		{Name: "a.txt", Data: []byte(strings.Repeat("word ", 500))},
		{Name: "b.txt", Data: []byte("short")},
	}

	counter, err := tokens.NewCounter("gpt-4")
	require.NoError(t, err)

	out, err := NewRegistry().Combine(context.Background(), files, counter, 20)
	require.NoError(t, err)
	assert.Contains(t, out, "### File: a.txt")
	assert.Contains(t, out, "### File: b.txt\nshort")
	assert.Contains(t, out, TruncationMarker)
}

func TestStripXML(t *testing.T) {
	in := `<w:p><w:r><w:t>Hello</w:t></w:r></w:p><w:p><w:r><w:t>World</w:t></w:r></w:p>`
	assert.Equal(t, "Hello\nWorld", stripXML(in))
}

func TestExtensions(t *testing.T) {
	exts := NewRegistry().Extensions()
	assert.Contains(t, exts, ".pdf")
	assert.Contains(t, exts, ".docx")
	assert.Contains(t, exts, ".xlsx")
}
