package search

import (
	"sort"
	"unicode/utf8"

	"github.com/meghashyamc/glimpse/db/indexfile"
)

// Excerpt is a snippet of retained field text surrounding one or more
// matched words. Highlight offsets are relative to Text.
type Excerpt struct {
	Field      string           `json:"field"`
	Text       string           `json:"text"`
	Highlights []indexfile.Span `json:"highlights"`
}

// excerptWindow is a half-open byte range of field text plus the match spans
// that fall inside it, all still in field-absolute offsets.
type excerptWindow struct {
	start uint32
	end   uint32
	spans []indexfile.Span
}

// buildExcerpts turns the matched spans of one document into display
// snippets. Body fields are preferred; title fields only produce excerpts
// when nothing else matched, since the title is already part of the result.
func (s *Service) buildExcerpts(doc indexfile.Document, matches []fieldMatch) []Excerpt {
	settings := s.reader.Settings()
	radius := uint32(settings.ExcerptRadius)
	limit := int(settings.ExcerptsPerResult)

	byField := make(map[uint8][]indexfile.Span)
	for _, match := range matches {
		byField[match.field] = append(byField[match.field], match.span)
	}

	titleOnly := true
	for fieldID := range byField {
		if int(fieldID) < len(doc.Fields) && doc.Fields[fieldID].Name != "title" {
			titleOnly = false
			break
		}
	}

	fieldIDs := make([]uint8, 0, len(byField))
	for fieldID := range byField {
		if int(fieldID) >= len(doc.Fields) {
			continue
		}
		if doc.Fields[fieldID].Name == "title" && !titleOnly {
			continue
		}
		fieldIDs = append(fieldIDs, fieldID)
	}
	sort.Slice(fieldIDs, func(i, j int) bool { return fieldIDs[i] < fieldIDs[j] })

	var excerpts []Excerpt
	for _, fieldID := range fieldIDs {
		field := doc.Fields[fieldID]
		windows := mergeWindows(byField[fieldID], radius, uint32(len(field.Text)))
		for _, window := range windows {
			if limit > 0 && len(excerpts) >= limit {
				return excerpts
			}
			excerpts = append(excerpts, renderWindow(field, window))
		}
	}
	return excerpts
}

// mergeWindows expands each span by the excerpt radius, snaps the edges to
// rune boundaries, and coalesces overlapping or adjacent windows so a
// cluster of nearby matches yields a single snippet.
func mergeWindows(spans []indexfile.Span, radius uint32, textLen uint32) []excerptWindow {
	sorted := make([]indexfile.Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var windows []excerptWindow
	var prev indexfile.Span
	for _, span := range sorted {
		if span.Start >= textLen || span.End > textLen || span.Start >= span.End {
			continue
		}
		// Two query terms can resolve to the same indexed word; keep one
		// highlight per occurrence.
		if span == prev {
			continue
		}
		prev = span
		start := uint32(0)
		if span.Start > radius {
			start = span.Start - radius
		}
		end := span.End + radius
		if end > textLen {
			end = textLen
		}
		if len(windows) > 0 && start <= windows[len(windows)-1].end {
			last := &windows[len(windows)-1]
			if end > last.end {
				last.end = end
			}
			last.spans = append(last.spans, span)
			continue
		}
		windows = append(windows, excerptWindow{start: start, end: end, spans: []indexfile.Span{span}})
	}
	return windows
}

// renderWindow slices the field text for one window and rebases its
// highlight spans to the snippet.
func renderWindow(field indexfile.Field, window excerptWindow) Excerpt {
	start := snapToRuneStart(field.Text, window.start)
	end := snapToRuneStart(field.Text, window.end)

	highlights := make([]indexfile.Span, 0, len(window.spans))
	for _, span := range window.spans {
		if span.Start < start || span.End > end {
			continue
		}
		highlights = append(highlights, indexfile.Span{
			Start: span.Start - start,
			End:   span.End - start,
		})
	}
	return Excerpt{
		Field:      field.Name,
		Text:       field.Text[start:end],
		Highlights: highlights,
	}
}

// snapToRuneStart walks a byte offset backwards until it no longer splits a
// multi-byte rune.
func snapToRuneStart(text string, offset uint32) uint32 {
	for offset > 0 && offset < uint32(len(text)) && !utf8.RuneStart(text[offset]) {
		offset--
	}
	if offset > uint32(len(text)) {
		offset = uint32(len(text))
	}
	return offset
}
