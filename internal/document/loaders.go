package document

import (
	"archive/zip"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LoadText reads the whole file as a single Document.
func LoadText(path string) ([]Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []Document{{
		PageContent: string(content),
		Metadata:    map[string]any{MetaSource: path},
	}}, nil
}

// LoadPDF returns one Document per page. Page numbers are 0-based.
func LoadPDF(path string) ([]Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	docs := make([]Document, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		docs = append(docs, Document{
			PageContent: text,
			Metadata: map[string]any{
				MetaSource:     path,
				MetaPage:       i - 1,
				MetaTotalPages: total,
			},
		})
	}
	return docs, nil
}

// LoadCSV returns one Document per data row. Each row renders as "header: value"
// lines in column order.
func LoadCSV(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ','
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var docs []Document
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}

		lines := make([]string, len(header))
		for i, h := range header {
			var v string
			if i < len(record) {
				v = record[i]
			}
			lines[i] = strings.TrimSpace(h) + ": " + strings.TrimSpace(v)
		}
		docs = append(docs, Document{
			PageContent: strings.Join(lines, "\n"),
			Metadata:    map[string]any{MetaSource: path, MetaRow: row},
		})
	}
	return docs, nil
}

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// LoadWord extracts the text of an Office Open XML word processing package as a
// single Document. Paragraphs are separated by a blank line.
func LoadWord(path string) ([]Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open word package: %w", err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return nil, errors.New("word package has no word/document.xml")
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	text, err := wordText(rc)
	if err != nil {
		return nil, err
	}
	return []Document{{
		PageContent: text,
		Metadata:    map[string]any{MetaSource: path},
	}}, nil
}

func wordText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br", "cr":
				current.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n")), nil
}
