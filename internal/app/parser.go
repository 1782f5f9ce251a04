package app

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"storyboard/pkg/domain"
)

// sluglineRe matches screenplay scene headings at the start of a line:
// "INT. LAB - NIGHT", "EXT. STREET - DAY", "INT./EXT. CAR - DUSK".
var sluglineRe = regexp.MustCompile(`(?m)^[ \t]*((?:INT\.?/EXT|EXT\.?/INT|INT|EXT|I/E)\.?)[ \t]+(.+)$`)

const maxDraftDescriptionLen = 600

// ExtractScriptText pulls plain text out of an uploaded script, keeping line
// breaks so sluglines stay detectable.
func ExtractScriptText(fileType string, r io.Reader) (string, error) {
	switch strings.ToLower(strings.TrimSpace(fileType)) {
	case "pdf":
		return extractPDFText(r)
	case "fdx":
		return extractFDXText(r)
	case "html":
		return extractHTMLText(r)
	case "txt":
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read text: %w", err)
		}
		return normalizeScriptText(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported file type %q", fileType)
	}
}

func extractPDFText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	text := normalizeScriptText(buf.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from pdf")
	}
	return text, nil
}

// extractFDXText renders a Final Draft document as one line per paragraph.
func extractFDXText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var buf strings.Builder
	var line strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse fdx: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "Text" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "Text":
				inText = false
			case "Paragraph":
				if line.Len() > 0 {
					buf.WriteString(strings.TrimSpace(line.String()))
					buf.WriteString("\n")
					line.Reset()
				}
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if line.Len() > 0 {
		buf.WriteString(strings.TrimSpace(line.String()))
	}
	text := normalizeScriptText(buf.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from fdx")
	}
	return text, nil
}

func extractHTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "br", "div", "li", "h1", "h2", "h3":
				buf.WriteString("\n")
			}
		}
	}
	walk(doc)
	text := normalizeScriptText(buf.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from html")
	}
	return text, nil
}

// normalizeScriptText strips control noise but keeps line structure.
func normalizeScriptText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ToValidUTF8(text, "")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// SplitScenes splits script text on sluglines into scene drafts. Text before
// the first slugline is ignored; a script with no sluglines yields a single
// draft covering the whole text.
func SplitScenes(text string) []domain.SceneDraft {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	matches := sluglineRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []domain.SceneDraft{{
			SceneNumber: 1,
			Title:       "Scene 1",
			Description: clampDraft(text),
		}}
	}
	drafts := make([]domain.SceneDraft, 0, len(matches))
	for i, m := range matches {
		start := m[0]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		block := strings.TrimSpace(text[start:end])
		lines := strings.SplitN(block, "\n", 2)
		slugline := strings.TrimSpace(lines[0])
		body := ""
		if len(lines) > 1 {
			body = strings.TrimSpace(strings.ReplaceAll(lines[1], "\n", " "))
		}
		location, timeOfDay := parseSlugline(text[m[4]:m[5]])
		drafts = append(drafts, domain.SceneDraft{
			SceneNumber: i + 1,
			Slugline:    slugline,
			Title:       slugline,
			Description: clampDraft(body),
			Location:    location,
			TimeOfDay:   timeOfDay,
		})
	}
	return drafts
}

// parseSlugline splits "LAB - NIGHT" into location and a canonical time of
// day. Unrecognized time words are dropped.
func parseSlugline(rest string) (string, string) {
	rest = strings.TrimSpace(rest)
	location := rest
	timePart := ""
	if idx := strings.LastIndex(rest, " - "); idx >= 0 {
		location = strings.TrimSpace(rest[:idx])
		timePart = strings.TrimSpace(rest[idx+3:])
	}
	switch strings.ToUpper(timePart) {
	case "DAWN", "MORNING", "SUNRISE":
		return location, "dawn"
	case "DAY", "AFTERNOON":
		return location, "day"
	case "DUSK", "EVENING", "SUNSET":
		return location, "dusk"
	case "NIGHT", "MIDNIGHT":
		return location, "night"
	case "CONTINUOUS", "LATER", "SAME":
		return location, ""
	default:
		return location, ""
	}
}

// clampDraft cuts long descriptions at a rune boundary so the clamp never
// produces invalid UTF-8.
func clampDraft(text string) string {
	if len(text) <= maxDraftDescriptionLen {
		return text
	}
	cut := maxDraftDescriptionLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimSpace(text[:cut])
}
