package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestor(t *testing.T) *Ingestor {
	t.Helper()
	ing := NewIngestor(filepath.Join(t.TempDir(), "documents"), slog.Default())
	ing.now = func() time.Time {
		return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	}
	return ing
}

func TestSave_TimestampedName(t *testing.T) {
	ing := newTestIngestor(t)

	path, err := ing.Save("notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(ing.Dir(), "notes-05-03-2024-14-07-09.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSave_MultiDotNameSplitsOnLastDot(t *testing.T) {
	ing := newTestIngestor(t)

	path, err := ing.Save("report.v2.final.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "report.v2.final-05-03-2024-14-07-09.pdf", filepath.Base(path))
}

func TestSave_StripsDirectories(t *testing.T) {
	ing := newTestIngestor(t)

	path, err := ing.Save("../../etc/notes.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, ing.Dir(), filepath.Dir(path))
}

func TestSave_IOFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "documents")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	ing := NewIngestor(blocker, nil)
	_, err := ing.Save("notes.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestLoad_Text(t *testing.T) {
	ing := newTestIngestor(t)
	path, err := ing.Save("notes.txt", strings.NewReader("The capital of France is Paris."))
	require.NoError(t, err)

	docs, err := ing.Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "The capital of France is Paris.", docs[0].PageContent)
	assert.Equal(t, path, docs[0].Source())
}

func TestLoad_CSV(t *testing.T) {
	ing := newTestIngestor(t)
	csvData := "city,country\nParis,France\n\"Berlin, Mitte\",Germany\n"
	path, err := ing.Save("cities.csv", strings.NewReader(csvData))
	require.NoError(t, err)

	docs, err := ing.Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "city: Paris\ncountry: France", docs[0].PageContent)
	assert.Equal(t, 0, docs[0].Metadata[MetaRow])
	assert.Equal(t, "city: Berlin, Mitte\ncountry: Germany", docs[1].PageContent)
	assert.Equal(t, 1, docs[1].Metadata[MetaRow])
}

func TestLoad_Word(t *testing.T) {
	ing := newTestIngestor(t)
	path, err := ing.Save("memo.doc", bytes.NewReader(buildWordPackage(t,
		"The capital of France is Paris.", "Second paragraph.")))
	require.NoError(t, err)

	docs, err := ing.Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "The capital of France is Paris.\n\nSecond paragraph.", docs[0].PageContent)
}

func TestLoad_PDF(t *testing.T) {
	ing := newTestIngestor(t)
	path, err := ing.Save("paper.pdf", bytes.NewReader(buildPDF("The capital of France is Paris.")))
	require.NoError(t, err)

	docs, err := ing.Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].PageContent, "Paris")
	assert.Equal(t, 0, docs[0].Metadata[MetaPage])
	assert.Equal(t, 1, docs[0].Metadata[MetaTotalPages])
}

func TestLoad_Unsupported(t *testing.T) {
	ing := newTestIngestor(t)
	path, err := ing.Save("image.png", strings.NewReader("\x89PNG"))
	require.NoError(t, err)

	_, err = ing.Load(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_CorruptWordIsIOFailure(t *testing.T) {
	ing := newTestIngestor(t)
	path, err := ing.Save("broken.doc", strings.NewReader("legacy binary word"))
	require.NoError(t, err)

	_, err = ing.Load(path)
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, stem, ext string
		ok              bool
	}{
		{"notes.txt", "notes", "txt", true},
		{"a.b.c.csv", "a.b.c", "csv", true},
		{"README", "README", "", false},
		{".hidden", ".hidden", "", false},
		{"trailing.", "trailing.", "", false},
	}
	for _, tt := range tests {
		stem, ext, ok := SplitName(tt.name)
		assert.Equal(t, tt.stem, stem, tt.name)
		assert.Equal(t, tt.ext, ext, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}

func TestIsSupported(t *testing.T) {
	for _, name := range []string{"a.txt", "a.doc", "a.pdf", "a.csv", "dir/b.pdf"} {
		assert.True(t, IsSupported(name), name)
	}
	for _, name := range []string{"image.png", "a.docx", "a.TXT", "noext"} {
		assert.False(t, IsSupported(name), name)
	}
}

// buildWordPackage writes a minimal OOXML package with one w:p per paragraph.
func buildWordPackage(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, "<w:p><w:r><w:t>%s</w:t></w:r></w:p>", p)
	}
	xmlDoc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="` + wordNamespace + `"><w:body>` + body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(xmlDoc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPDF renders a single-page PDF showing text in Helvetica, with a correct xref table.
func buildPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
