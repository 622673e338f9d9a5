package services

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	DefaultScriptChunkSize    = 1000
	DefaultScriptChunkOverlap = 200
)

// scene headings first, then paragraphs, lines, words, characters
var scriptSeparators = []string{"INT.", "EXT.", "\n\n", "\n", " ", ""}

// ScriptChunker splits screenplay text recursively on a separator hierarchy
// and merges the pieces back into chunks of at most size characters, with
// overlap characters carried over between neighbours.
type ScriptChunker struct {
	size       int
	overlap    int
	separators []string
}

func NewScriptChunker(size, overlap int) *ScriptChunker {
	if size <= 0 {
		size = DefaultScriptChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultScriptChunkOverlap, size-1)
	}
	return &ScriptChunker{size: size, overlap: overlap, separators: scriptSeparators}
}

// Split returns the chunks of text in order. Blank text gives no chunks.
func (c *ScriptChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, c.separators)
}

func (c *ScriptChunker) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, s := range separators {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var out, small []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) < c.size {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, c.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, strings.TrimSpace(piece))
		} else {
			out = append(out, c.split(piece, rest)...)
		}
	}
	if len(small) > 0 {
		out = append(out, c.merge(small)...)
	}
	return out
}

// merge packs pieces into chunks no longer than size, starting each new chunk
// with up to overlap characters from the tail of the previous one.
func (c *ScriptChunker) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.size && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 && (total > c.overlap || total+n > c.size) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepSeparator splits on sep and keeps sep at the start of every piece
// after the first. An empty sep splits into characters.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// SceneHeading returns the slug line a chunk opens with, or "Chunk i/total".
func SceneHeading(content string, index, total int) string {
	first, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	first = strings.TrimSpace(first)
	if strings.HasPrefix(first, "INT.") || strings.HasPrefix(first, "EXT.") {
		return first
	}
	return "Chunk " + strconv.Itoa(index+1) + "/" + strconv.Itoa(total)
}
