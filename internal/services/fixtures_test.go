package services

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

const (
	wordNS  = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	drawNS  = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	pmlNS   = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	relsNS  = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	pkgRels = `http://schemas.openxmlformats.org/package/2006/relationships`
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// writeDocx writes a word document whose body holds paragraphs (each a list
// of runs) followed by a one-cell table containing tableText.
func writeDocx(t *testing.T, dir string, paragraphs [][]string, tableText string) string {
	t.Helper()
	var body strings.Builder
	for _, runs := range paragraphs {
		body.WriteString("<w:p>")
		for _, run := range runs {
			body.WriteString(`<w:r><w:t xml:space="preserve">` + run + `</w:t></w:r>`)
		}
		body.WriteString("</w:p>")
	}
	if tableText != "" {
		body.WriteString(`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>` + tableText + `</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wordNS + `><w:body>` + body.String() + `<w:sectPr/></w:body></w:document>`

	path := filepath.Join(dir, "notes.docx")
	writeZip(t, path, map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":   doc,
	})
	return path
}

// slideXML builds one slide with a text shape per entry. An entry holds the
// paragraphs of that shape; a nil entry becomes a picture with no text.
func slideXML(shapes [][]string) string {
	var tree strings.Builder
	for i, paras := range shapes {
		if paras == nil {
			tree.WriteString(`<p:pic><p:nvPicPr><p:cNvPr id="9" name="Picture"/></p:nvPicPr></p:pic>`)
			continue
		}
		tree.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="` + strconv.Itoa(i+2) + `" name="Shape"/></p:nvSpPr><p:txBody><a:bodyPr/>`)
		for _, p := range paras {
			tree.WriteString(`<a:p><a:r><a:t>` + p + `</a:t></a:r></a:p>`)
		}
		tree.WriteString(`</p:txBody></p:sp>`)
	}
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<p:sld ` + drawNS + ` ` + pmlNS + ` ` + relsNS + `><p:cSld><p:spTree>` +
		`<p:nvGrpSpPr><p:cNvPr id="1" name=""/></p:nvGrpSpPr>` + tree.String() +
		`</p:spTree></p:cSld></p:sld>`
}

// writePptx writes a deck whose presentation order is slides[order[0]], slides[order[1]], ...
// Slides are stored as ppt/slides/slide<i+1>.xml.
func writePptx(t *testing.T, dir string, slides []string, order []int) string {
	t.Helper()
	entries := map[string]string{}
	var ids, rels strings.Builder
	for i, body := range slides {
		entries["ppt/slides/slide"+strconv.Itoa(i+1)+".xml"] = body
		rels.WriteString(`<Relationship Id="rId` + strconv.Itoa(i+10) + `" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide` + strconv.Itoa(i+1) + `.xml"/>`)
	}
	for n, idx := range order {
		ids.WriteString(`<p:sldId id="` + strconv.Itoa(256+n) + `" r:id="rId` + strconv.Itoa(idx+10) + `"/>`)
	}
	if order != nil {
		entries["ppt/presentation.xml"] = `<?xml version="1.0"?><p:presentation ` + pmlNS + ` ` + relsNS + `><p:sldIdLst>` + ids.String() + `</p:sldIdLst></p:presentation>`
		entries["ppt/_rels/presentation.xml.rels"] = `<?xml version="1.0"?><Relationships xmlns="` + pkgRels + `">` + rels.String() + `</Relationships>`
	}
	path := filepath.Join(dir, "deck.pptx")
	writeZip(t, path, entries)
	return path
}

func writePDF(t *testing.T, dir string, pages ...string) string {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.Cell(0, 10, text)
	}
	path := filepath.Join(dir, "source.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
