// Package indexfile implements the serialized search index artifact: a
// single versioned binary blob holding a sorted word dictionary, a document
// table, and per-word posting lists. The header records the offset and length
// of every region so a reader can decode one word's postings without parsing
// the rest of the file.
package indexfile

import (
	"errors"
	"fmt"
)

const (
	// Magic identifies a glimpse index blob ("GLMP").
	Magic uint32 = 0x474C4D50

	// FormatVersion is bumped whenever the layout changes incompatibly.
	FormatVersion uint32 = 1

	headerSize          = 80
	settingsFixedSize   = 42
	maxStopwordCount    = 4096
	maxMinimumWordLen   = 64
)

var (
	ErrCorruptIndex    = errors.New("corrupt index")
	ErrVersionMismatch = errors.New("unsupported index format version")
)

type CorruptIndexError struct {
	Reason string
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt index: %s", e.Reason)
}

func (e *CorruptIndexError) Is(target error) bool {
	return target == ErrCorruptIndex
}

type VersionMismatchError struct {
	Version uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("unsupported index format version %d (supported: %d)", e.Version, FormatVersion)
}

func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

// Span is a half-open byte range [Start, End) into the original field text.
type Span struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Posting records every occurrence of one word within one field of one
// document. There is at most one Posting per (word, document, field) triple;
// repeated occurrences are merged into Spans.
type Posting struct {
	DocID uint32
	Field uint8
	Spans []Span
}

// PostingList is ordered by (DocID, Field) ascending.
type PostingList []Posting

// TermEntry pairs a normalized word with its full posting list.
type TermEntry struct {
	Word     string
	Postings PostingList
}

// Field is one named, weighted text region of a document. The text is
// retained verbatim so excerpts can be cut from it at query time.
type Field struct {
	Name   string
	Weight float64
	Text   string
}

// Document is the per-document metadata stored in the document table.
// Document ids are implicit: a document's id is its position in the table.
type Document struct {
	Title  string
	URL    string
	Length uint32
	Fields []Field
}

// Settings are the query-time knobs frozen into the artifact at build time,
// so that loading an index is enough to query it the way its author intended.
// The tokenizer options are included because query strings must be normalized
// with the exact rules the corpus was indexed with.
type Settings struct {
	ExcerptRadius     uint16
	ExcerptsPerResult uint16
	ResultCap         uint16
	FuzzyDistance     uint8
	UnionFallback     bool
	ExactBonus        float64
	EditPenalty       float64
	PrefixPenalty     float64
	FrequencyWeight   float64
	Stemming          bool
	MinimumWordLength uint8
	Stopwords         []string
}

// header is the fixed-size preamble of every index blob.
//
//	 0:4   magic
//	 4:8   format version
//	 8:12  word count
//	12:16  document count
//	16:20  total posting count
//	20:24  CRC-32 (IEEE) of everything after the header
//	24:32  dictionary region offset
//	32:40  dictionary region length
//	40:48  document region offset
//	48:56  document region length
//	56:64  postings region offset
//	64:72  postings region length
//	72:80  settings offset
type header struct {
	magic          uint32
	version        uint32
	wordCount      uint32
	docCount       uint32
	postingCount   uint32
	checksum       uint32
	dictOffset     uint64
	dictLen        uint64
	docsOffset     uint64
	docsLen        uint64
	postingsOffset uint64
	postingsLen    uint64
	settingsOffset uint64
}
