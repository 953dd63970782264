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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Loader reads files and directories into page-level documents.
type Loader struct {
	parsers    *ParserRegistry
	extensions []string
}

// NewLoader returns a Loader accepting the given extensions (with dots).
// An empty list accepts everything the parsers support.
func NewLoader(extensions ...string) *Loader {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return &Loader{parsers: NewParserRegistry(), extensions: exts}
}

func (l *Loader) accepts(path string) bool {
	if _, ok := l.parsers.Lookup(path); !ok {
		return false
	}
	return len(l.extensions) == 0 || slices.Contains(l.extensions, strings.ToLower(filepath.Ext(path)))
}

// Load reads every path. A directory is walked recursively and unreadable
// files in it are logged and skipped; a file named directly that cannot be
// parsed fails the load with a *LoadError.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]Document, error) {
	var docs []Document
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}

		if !info.IsDir() {
			if !l.accepts(path) {
				return nil, &LoadError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(path))}
			}
			loaded, err := l.LoadFile(ctx, path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("Skipping unreadable path", "path", p, "error", err)
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !l.accepts(p) {
				return nil
			}
			loaded, err := l.LoadFile(ctx, p)
			if err != nil {
				slog.Warn("Skipping file", "path", p, "error", err)
				return nil
			}
			docs = append(docs, loaded...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slog.Info("Loaded documents", "documents", len(docs))
	return docs, nil
}

// LoadFile parses one file into documents carrying source, file_path and
// file_type metadata, plus page and total_pages for paged formats.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]Document, error) {
	parser, ok := l.parsers.Lookup(path)
	if !ok {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(path))}
	}
	pages, err := parser.Parse(ctx, path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	docs := make([]Document, 0, len(pages))
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		meta := map[string]string{
			MetaSource:   filepath.Base(path),
			MetaFilePath: path,
			MetaFileType: fileType(path),
		}
		if page.Number > 0 {
			meta[MetaPage] = strconv.Itoa(page.Number)
			meta[MetaTotalPages] = strconv.Itoa(page.Total)
		}
		docs = append(docs, Document{Content: page.Text, Metadata: meta})
	}
	slog.Debug("Loaded file", "path", path, "documents", len(docs))
	return docs, nil
}
