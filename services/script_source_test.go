package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScriptFilename(t *testing.T) {
	m := ParseScriptFilename("the-matrix-1999.pdf")
	assert.Equal(t, "script_the-matrix-1999", m.MovieID)
	assert.Equal(t, "The Matrix", m.Title)
	assert.Equal(t, 1999, m.Year)

	m = ParseScriptFilename("pulp-fiction.txt")
	assert.Equal(t, "script_pulp-fiction", m.MovieID)
	assert.Equal(t, "Pulp Fiction", m.Title)
	assert.Equal(t, 0, m.Year)

	m = ParseScriptFilename("1917.pdf")
	assert.Equal(t, "1917", m.Title)
	assert.Equal(t, 0, m.Year)
}

func TestScriptChunkerRespectsSizeAndOverlap(t *testing.T) {
	c := NewScriptChunker(100, 20)
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("word")
		b.WriteString(strings.Repeat("x", i%5))
		b.WriteString(" ")
	}
	chunks := c.Split(b.String())
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, runeLen(ch), 100)
		assert.NotEmpty(t, ch)
	}
	// consecutive chunks share text
	tail := chunks[0][len(chunks[0])-5:]
	assert.Contains(t, chunks[1], tail)
}

func TestScriptChunkerPrefersSceneHeadings(t *testing.T) {
	c := NewScriptChunker(60, 0)
	text := "INT. OFFICE - DAY\nNeo sits at a desk.\nEXT. ROOFTOP - NIGHT\nTrinity runs fast."
	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0], "INT. OFFICE"))
	assert.True(t, strings.HasPrefix(chunks[1], "EXT. ROOFTOP"))

	assert.Equal(t, "INT. OFFICE - DAY", SceneHeading(chunks[0], 0, 2))
	assert.Equal(t, "Chunk 2/3", SceneHeading("just dialogue", 1, 3))
	assert.Nil(t, c.Split("  \n "))
}

func TestScriptChunkerShortTextIsOneChunk(t *testing.T) {
	chunks := NewScriptChunker(1000, 200).Split("MORPHEUS: Welcome to the real world.")
	assert.Equal(t, []string{"MORPHEUS: Welcome to the real world."}, chunks)
}

func TestScriptLoaderScanAndLoadPlainText(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scripts")
	l := NewScriptLoader(dir, NewScriptChunker(80, 10))

	files, err := l.Scan()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.DirExists(t, dir)

	body := "INT. NEBUCHADNEZZAR - NIGHT\nMORPHEUS: Welcome to the real world.\n\nEXT. CITY - DAY\nNEO: I know kung fu."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "the-matrix-1999.txt"), []byte(body), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	files, err = l.Scan()
	require.NoError(t, err)
	require.Len(t, files, 1)

	doc, err := l.Load(context.Background(), files[0])
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", doc.Movie.Title)
	require.NotEmpty(t, doc.Chunks)
	for i, ch := range doc.Chunks {
		require.NoError(t, ch.Validate())
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, len(doc.Chunks), ch.Total)
		assert.Equal(t, "script_the-matrix-1999", ch.MovieID)
		assert.Nil(t, ch.PageNumber)
	}
	assert.Equal(t, "script_the-matrix-1999_chunk0", doc.Chunks[0].ChunkID)
	assert.Equal(t, "INT. NEBUCHADNEZZAR - NIGHT", doc.Chunks[0].Heading)
}

func TestScriptLoaderRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blank-2000.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	_, err := NewScriptLoader(dir, nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrEmptyScript)
}

func TestPageAt(t *testing.T) {
	offsets := []int{0, 100, 250}
	assert.Equal(t, 1, pageAt(offsets, 0))
	assert.Equal(t, 1, pageAt(offsets, 99))
	assert.Equal(t, 2, pageAt(offsets, 100))
	assert.Equal(t, 3, pageAt(offsets, 400))
}
