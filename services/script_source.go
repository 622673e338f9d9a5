package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cinemind/internal/logger"
	"cinemind/models"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyScript = errors.New("script has no extractable text")

// scriptExtensions are the file types picked up from the scripts directory.
var scriptExtensions = []string{".pdf", ".txt", ".fountain"}

// ScriptDocument is one screenplay file split into ordered chunks.
type ScriptDocument struct {
	Movie    models.Movie
	FileName string
	Chunks   []*models.ScriptChunk
}

// ScriptLoader reads screenplays from a directory.
type ScriptLoader struct {
	dir     string
	chunker *ScriptChunker
	log     *slog.Logger
}

func NewScriptLoader(dir string, chunker *ScriptChunker) *ScriptLoader {
	if chunker == nil {
		chunker = NewScriptChunker(DefaultScriptChunkSize, DefaultScriptChunkOverlap)
	}
	return &ScriptLoader{dir: dir, chunker: chunker, log: logger.With("component", "script_loader")}
}

func (l *ScriptLoader) Dir() string { return l.dir }

// Scan creates the directory when missing and returns the script files in it,
// sorted by name.
func (l *ScriptLoader) Scan() ([]string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scripts directory: %w", err)
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading scripts directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, allowed := range scriptExtensions {
			if ext == allowed {
				files = append(files, filepath.Join(l.dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load extracts and chunks one file. The movie is derived from the file name.
func (l *ScriptLoader) Load(ctx context.Context, path string) (*ScriptDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	movie := ParseScriptFilename(name)

	pages, err := extractPages(path)
	if err != nil {
		return nil, err
	}

	full, offsets := joinPages(pages)
	if strings.TrimSpace(full) == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyScript)
	}

	parts := l.chunker.Split(full)
	doc := &ScriptDocument{Movie: movie, FileName: name, Chunks: make([]*models.ScriptChunk, 0, len(parts))}
	cursor := 0
	for i, content := range parts {
		chunk := &models.ScriptChunk{
			ChunkID:  fmt.Sprintf("%s_chunk%d", movie.MovieID, i),
			MovieID:  movie.MovieID,
			Index:    i,
			Total:    len(parts),
			Heading:  SceneHeading(content, i, len(parts)),
			Content:  content,
			FileName: name,
		}
		if len(offsets) > 1 {
			if pos := locate(full, content, cursor); pos >= 0 {
				cursor = pos
				page := pageAt(offsets, pos)
				chunk.PageNumber = &page
			}
		}
		doc.Chunks = append(doc.Chunks, chunk)
	}

	l.log.Info("script chunked", "file", name, "movie_id", movie.MovieID, "chunks", len(doc.Chunks))
	return doc, nil
}

// ParseScriptFilename derives the movie from a name like the-matrix-1999.pdf:
// id script_the-matrix-1999, title The Matrix, year 1999. Without a trailing
// four-digit part the year is unknown and the whole stem is the title.
func ParseScriptFilename(name string) models.Movie {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	parts := strings.Split(stem, "-")

	year := 0
	titleParts := parts
	if last := parts[len(parts)-1]; len(parts) > 1 && len(last) == 4 && isDigits(last) {
		year, _ = strconv.Atoi(last)
		titleParts = parts[:len(parts)-1]
	}

	words := make([]string, 0, len(titleParts))
	for _, w := range titleParts {
		if w == "" {
			continue
		}
		words = append(words, capitalize(w))
	}

	return models.Movie{
		MovieID:   "script_" + stem,
		Title:     strings.Join(words, " "),
		Year:      year,
		CreatedAt: time.Now().UTC(),
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func capitalize(w string) string {
	runes := []rune(strings.ToLower(w))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// extractPages returns the text of each page. Plain-text files are one page.
func extractPages(path string) ([]string, error) {
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		return []string{string(b)}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			logger.Warn("failed to extract page text", "file", filepath.Base(path), "page", i, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// joinPages concatenates pages with newlines and returns each page's start
// offset in the result.
func joinPages(pages []string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, len(pages))
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n")
		}
		offsets[i] = b.Len()
		b.WriteString(p)
	}
	return b.String(), offsets
}

// locate finds where a chunk starts in full, searching from cursor onwards.
func locate(full, chunk string, cursor int) int {
	probe := chunk
	if len(probe) > 64 {
		probe = probe[:64]
	}
	if cursor > len(full) {
		cursor = len(full)
	}
	if i := strings.Index(full[cursor:], probe); i >= 0 {
		return cursor + i
	}
	return strings.Index(full, probe)
}

// pageAt maps a byte offset to a 1-based page number.
func pageAt(offsets []int, pos int) int {
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > pos })
	return max(i, 1)
}
