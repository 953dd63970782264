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

package rag

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// Page is one unit of parsed text. Number is 1-based for paged formats and
// zero otherwise; Total is the page count of the whole file.
type Page struct {
	Number int
	Total  int
	Text   string
}

// Parser extracts text from one file format.
type Parser interface {
	Parse(ctx context.Context, path string) ([]Page, error)
	Extensions() []string
}

// ParserRegistry maps lowercase file extensions to parsers.
type ParserRegistry struct {
	parsers map[string]Parser
}

// NewParserRegistry returns a registry with the built-in text, PDF, Word and
// Excel parsers.
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{parsers: make(map[string]Parser)}
	r.Register(textParser{})
	r.Register(pdfParser{})
	r.Register(docxParser{})
	r.Register(xlsxParser{})
	return r
}

// Register adds p for each of its extensions, replacing earlier entries.
func (r *ParserRegistry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// Lookup returns the parser for path's extension.
func (r *ParserRegistry) Lookup(path string) (Parser, bool) {
	p, ok := r.parsers[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// fileType is the extension without the dot, as recorded in metadata.
func fileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

type textParser struct{}

func (textParser) Extensions() []string {
	return []string{".txt", ".md"}
}

func (textParser) Parse(ctx context.Context, path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []Page{{Text: strings.ToValidUTF8(string(data), "")}}, nil
}

type pdfParser struct{}

func (pdfParser) Extensions() []string {
	return []string{".pdf"}
}

// Parse returns one Page per non-empty PDF page.
func (pdfParser) Parse(ctx context.Context, path string) ([]Page, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	var pages []Page
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", n, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: n, Total: reader.NumPage(), Text: text})
	}
	return pages, nil
}

type docxParser struct{}

func (docxParser) Extensions() []string {
	return []string{".docx"}
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTag          = regexp.MustCompile(`<[^>]+>`)
)

// Parse joins the document's non-empty paragraphs with blank lines.
func (docxParser) Parse(ctx context.Context, path string) ([]Page, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Word document: %w", err)
	}
	defer doc.Close()

	raw := docxParagraphEnd.ReplaceAllString(doc.Editable().GetContent(), "\n")
	raw = html.UnescapeString(docxTag.ReplaceAllString(raw, ""))

	var paragraphs []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return []Page{{Text: strings.Join(paragraphs, "\n\n")}}, nil
}

type xlsxParser struct{}

func (xlsxParser) Extensions() []string {
	return []string{".xlsx"}
}

// maxSheetRows bounds the rows read from each sheet.
const maxSheetRows = 1000

// Parse renders every sheet as tab-separated rows, one Page per sheet.
func (xlsxParser) Parse(ctx context.Context, path string) ([]Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var pages []Page
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "[%s]\n", sheet)
		for r, row := range rows {
			if r == maxSheetRows {
				break
			}
			if line := strings.TrimSpace(strings.Join(row, "\t")); line != "" {
				b.WriteString(line)
				b.WriteString("\n\n")
			}
		}
		pages = append(pages, Page{Number: i + 1, Total: len(sheets), Text: strings.TrimSpace(b.String())})
	}
	return pages, nil
}
