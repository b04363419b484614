// Package hyperlink implements the link-metadata collaborator consumed
// by the streaming engine: extraction of links from text and embedding
// of link metadata into content about to be saved.
//
// Saved files carry an optional marker-delimited JSON trailer that
// records links whose display text differs from their target. Bare URLs
// in the text itself are recognized without any trailer.
package hyperlink

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Link is a hyperlink found in (or to be embedded into) text content.
// Trailer-declared links carry content-global StartIndex values; links
// scanned out of a text slice are relative to that slice and the caller
// shifts them.
type Link struct {
	StartIndex  int64  `json:"start"`
	Length      int32  `json:"length"`
	URL         string `json:"url"`
	DisplayText string `json:"text"`
}

// Trailer markers. The trailer is a single line appended after the
// content: newline, marker, JSON document, end marker.
const (
	trailerStart = "<<<STREAMVIEW:LINKS>>>"
	trailerEnd   = "<<<END:LINKS>>>"

	trailerVersion = 1
)

// urlPattern matches bare http(s) URLs in plain text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]}]+`)

// ScanURLs returns the bare http(s) URLs found in text, in order of
// appearance, with StartIndex relative to text. ScanURLs is pure.
func ScanURLs(text string) []Link {
	var links []Link
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		url := text[loc[0]:loc[1]]
		links = append(links, Link{
			StartIndex:  int64(loc[0]),
			Length:      int32(loc[1] - loc[0]),
			URL:         url,
			DisplayText: url,
		})
	}
	return links
}

// Extract returns text stripped of any metadata trailer plus every link
// found: trailer-declared links first, then bare URLs in the text.
// Links are ordered by StartIndex. Extract is pure.
func Extract(text string) (string, []Link) {
	clean, declared := stripTrailer(text)

	links := make([]Link, 0, len(declared))
	for _, l := range declared {
		// Discard declarations that no longer fit the content.
		if l.StartIndex < 0 || l.StartIndex+int64(l.Length) > int64(len(clean)) {
			continue
		}
		links = append(links, l)
	}

	links = append(links, ScanURLs(clean)...)

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].StartIndex < links[j].StartIndex
	})
	return clean, links
}

// Embed appends a metadata trailer describing links to content.
// Links that are bare URLs already present in the text are not
// re-declared. Embed is pure; with no links to declare it returns
// content unchanged.
func Embed(content string, links []Link) (string, error) {
	declared := make([]Link, 0, len(links))
	for _, l := range links {
		if l.URL == "" || l.Length <= 0 {
			continue
		}
		if l.DisplayText == l.URL {
			continue // recoverable from the text itself
		}
		declared = append(declared, l)
	}
	if len(declared) == 0 {
		return content, nil
	}

	doc, err := sjson.Set("", "version", trailerVersion)
	if err != nil {
		return "", fmt.Errorf("building link trailer: %w", err)
	}
	for i, l := range declared {
		prefix := fmt.Sprintf("links.%d.", i)
		if doc, err = sjson.Set(doc, prefix+"start", l.StartIndex); err != nil {
			return "", fmt.Errorf("building link trailer: %w", err)
		}
		if doc, err = sjson.Set(doc, prefix+"length", l.Length); err != nil {
			return "", fmt.Errorf("building link trailer: %w", err)
		}
		if doc, err = sjson.Set(doc, prefix+"url", l.URL); err != nil {
			return "", fmt.Errorf("building link trailer: %w", err)
		}
		if doc, err = sjson.Set(doc, prefix+"text", l.DisplayText); err != nil {
			return "", fmt.Errorf("building link trailer: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString(content)
	// Always delimit with a newline so stripping is exact: the strip
	// side removes exactly one newline before the marker.
	b.WriteByte('\n')
	b.WriteString(trailerStart)
	b.WriteString(doc)
	b.WriteString(trailerEnd)
	return b.String(), nil
}

// FindTrailer locates the metadata trailer within the tail bytes of a
// file. It returns the declared links (content-global indices), the
// offset in data where the trailer begins (including the newline
// delimiting it from content), and whether a well-formed trailer was
// found.
func FindTrailer(data []byte) ([]Link, int, bool) {
	start := bytes.LastIndex(data, []byte(trailerStart))
	if start < 0 {
		return nil, 0, false
	}
	rest := data[start+len(trailerStart):]
	end := bytes.Index(rest, []byte(trailerEnd))
	if end < 0 {
		return nil, 0, false
	}

	doc := string(rest[:end])
	if !gjson.Valid(doc) {
		return nil, 0, false
	}

	off := start
	if off > 0 && data[off-1] == '\n' {
		off--
	}
	return parseLinks(doc), off, true
}

// stripTrailer removes the metadata trailer, if any, and parses its
// link declarations. A malformed trailer is stripped and its links
// discarded; the text content always survives.
func stripTrailer(text string) (string, []Link) {
	start := strings.LastIndex(text, trailerStart)
	if start < 0 {
		return text, nil
	}
	rest := text[start+len(trailerStart):]
	end := strings.Index(rest, trailerEnd)
	if end < 0 {
		return text, nil
	}

	clean := text[:start]
	// Embed inserts a newline before the marker; drop it.
	clean = strings.TrimSuffix(clean, "\n")

	doc := rest[:end]
	if !gjson.Valid(doc) {
		return clean, nil
	}
	return clean, parseLinks(doc)
}

// parseLinks decodes the trailer's link declarations.
func parseLinks(doc string) []Link {
	var links []Link
	gjson.Get(doc, "links").ForEach(func(_, value gjson.Result) bool {
		links = append(links, Link{
			StartIndex:  value.Get("start").Int(),
			Length:      int32(value.Get("length").Int()),
			URL:         value.Get("url").String(),
			DisplayText: value.Get("text").String(),
		})
		return true
	})
	return links
}
