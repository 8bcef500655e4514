package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// extractDocxText returns the body paragraphs of a .docx joined by newlines.
// Paragraphs inside tables and text boxes are not part of the body flow and
// are left out.
func extractDocxText(filePath string) (string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("open word document: %w", err)
	}
	defer zr.Close()

	body, err := readZipFile(zr.File, "word/document.xml")
	if err != nil {
		return "", err
	}
	paras, err := docxParagraphs(body)
	if err != nil {
		return "", fmt.Errorf("parse word/document.xml: %w", err)
	}
	return strings.Join(paras, "\n"), nil
}

func docxParagraphs(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		stack  []string
		paras  []string
		para   strings.Builder
		inPara bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case name == "p" && hasSuffix(stack, "body"):
				inPara = true
				para.Reset()
			case inPara && name == "tab" && isBodyRun(stack):
				para.WriteString("\t")
			case inPara && (name == "br" || name == "cr") && isBodyRun(stack):
				para.WriteString("\n")
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local == "p" && hasSuffix(stack, "body") {
				paras = append(paras, para.String())
				inPara = false
			}
		case xml.CharData:
			if inPara && hasSuffix(stack, "t") && isBodyRun(stack[:len(stack)-1]) {
				para.Write(t)
			}
		}
	}
	return paras, nil
}

// isBodyRun reports whether stack ends at a run that belongs directly to a
// body paragraph (optionally through a hyperlink).
func isBodyRun(stack []string) bool {
	return hasSuffix(stack, "body", "p", "r") || hasSuffix(stack, "body", "p", "hyperlink", "r")
}

// extractPptxText returns the text of every text-bearing top-level shape,
// slide by slide in presentation order, joined by newlines.
func extractPptxText(filePath string) (string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("open slide deck: %w", err)
	}
	defer zr.Close()

	var texts []string
	for _, name := range slideOrder(zr.File) {
		data, err := readZipFile(zr.File, name)
		if err != nil {
			return "", err
		}
		shapes, err := slideShapeTexts(data)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", name, err)
		}
		texts = append(texts, shapes...)
	}
	return strings.Join(texts, "\n"), nil
}

func slideShapeTexts(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		stack   []string
		out     []string
		paras   []string
		para    strings.Builder
		inShape bool
		inPara  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case name == "sp" && hasSuffix(stack, "cSld", "spTree"):
				inShape = true
				paras = paras[:0]
			case inShape && name == "p" && hasSuffix(stack, "txBody"):
				inPara = true
				para.Reset()
			case inPara && name == "br":
				para.WriteString("\n")
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			switch {
			case inPara && t.Name.Local == "p" && hasSuffix(stack, "txBody"):
				paras = append(paras, para.String())
				inPara = false
			case inShape && t.Name.Local == "sp" && hasSuffix(stack, "cSld", "spTree"):
				inShape = false
				text := strings.Join(paras, "\n")
				if strings.TrimSpace(text) != "" {
					out = append(out, text)
				}
			}
		case xml.CharData:
			if inPara && hasSuffix(stack, "t") {
				para.Write(t)
			}
		}
	}
	return out, nil
}

var slideFilePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// slideOrder lists slide part names in presentation order. It follows the
// slide id list in ppt/presentation.xml and falls back to numeric file order.
func slideOrder(files []*zip.File) []string {
	if ordered := presentationSlideOrder(files); len(ordered) > 0 {
		return ordered
	}

	type numbered struct {
		name string
		n    int
	}
	var slides []numbered
	for _, f := range files {
		m := slideFilePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, numbered{name: f.Name, n: n})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	out := make([]string, 0, len(slides))
	for _, s := range slides {
		out = append(out, s.name)
	}
	return out
}

type presentationXML struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func presentationSlideOrder(files []*zip.File) []string {
	presData, err := readZipFile(files, "ppt/presentation.xml")
	if err != nil {
		return nil
	}
	relsData, err := readZipFile(files, "ppt/_rels/presentation.xml.rels")
	if err != nil {
		return nil
	}

	var pres presentationXML
	if err := xml.Unmarshal(presData, &pres); err != nil {
		return nil
	}
	var rels relationshipsXML
	if err := xml.Unmarshal(relsData, &rels); err != nil {
		return nil
	}

	targets := make(map[string]string, len(rels.Relationships))
	for _, rel := range rels.Relationships {
		target := rel.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("ppt", target)
		}
		targets[rel.ID] = target
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Name] = true
	}

	var out []string
	for _, id := range pres.SlideIDs {
		if target, ok := targets[id.RelID]; ok && present[target] {
			out = append(out, target)
		}
	}
	return out
}

func readZipFile(files []*zip.File, name string) ([]byte, error) {
	for _, f := range files {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

func hasSuffix(stack []string, names ...string) bool {
	if len(stack) < len(names) {
		return false
	}
	offset := len(stack) - len(names)
	for i, name := range names {
		if stack[offset+i] != name {
			return false
		}
	}
	return true
}
