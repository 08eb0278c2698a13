package indexfile

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"sort"
	"strings"
)

// dictEntry locates one word's posting list inside the postings region.
type dictEntry struct {
	word       string
	docFreq    int
	postOffset uint64
	postLen    uint64
}

// Reader is a loaded index. All methods are read-only and safe for
// concurrent use: the dictionary and document table are decoded once at load
// time, posting lists are decoded on demand straight from the blob.
type Reader struct {
	blob     []byte
	header   header
	settings Settings
	words    []dictEntry
	docs     []Document
}

// Load validates and opens an index blob. It fails with a
// VersionMismatchError for unsupported versions and a CorruptIndexError when
// counts, offsets, or the checksum disagree with the bytes.
func Load(blob []byte) (*Reader, error) {
	if len(blob) < headerSize+settingsFixedSize {
		return nil, &CorruptIndexError{Reason: "blob shorter than header"}
	}
	h := decodeHeader(blob)
	if h.magic != Magic {
		return nil, &CorruptIndexError{Reason: "bad magic bytes"}
	}
	if h.version != FormatVersion {
		return nil, &VersionMismatchError{Version: h.version}
	}
	// Each region is checked subtractively so corrupt lengths cannot wrap
	// uint64 arithmetic past the end of the blob.
	blobLen := uint64(len(blob))
	if h.settingsOffset != headerSize || h.dictOffset < headerSize+settingsFixedSize ||
		h.dictOffset > blobLen || h.dictLen > blobLen-h.dictOffset {
		return nil, &CorruptIndexError{Reason: "dictionary region outside blob"}
	}
	if h.docsOffset != h.dictOffset+h.dictLen || h.docsLen > blobLen-h.docsOffset {
		return nil, &CorruptIndexError{Reason: "regions out of order"}
	}
	if h.postingsOffset != h.docsOffset+h.docsLen || h.postingsLen != blobLen-h.postingsOffset {
		return nil, &CorruptIndexError{Reason: "region offsets inconsistent with blob length"}
	}
	if crc32.ChecksumIEEE(blob[headerSize:]) != h.checksum {
		return nil, &CorruptIndexError{Reason: "checksum mismatch"}
	}

	settings, err := decodeSettings(blob[h.settingsOffset:h.dictOffset])
	if err != nil {
		return nil, err
	}

	r := &Reader{
		blob:     blob,
		header:   h,
		settings: settings,
	}
	if err := r.decodeDictionary(); err != nil {
		return nil, err
	}
	if err := r.decodeDocuments(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) WordCount() int {
	return len(r.words)
}

func (r *Reader) DocCount() int {
	return len(r.docs)
}

func (r *Reader) Settings() Settings {
	return r.settings
}

// Word returns the dictionary word with the given id.
func (r *Reader) Word(id uint32) string {
	return r.words[id].word
}

// DocFreq returns the number of postings recorded for a word without
// decoding its posting list.
func (r *Reader) DocFreq(id uint32) int {
	return r.words[id].docFreq
}

// LookupExact returns the word id of an exactly matching dictionary word.
func (r *Reader) LookupExact(word string) (uint32, bool) {
	i := sort.Search(len(r.words), func(i int) bool {
		return r.words[i].word >= word
	})
	if i < len(r.words) && r.words[i].word == word {
		return uint32(i), true
	}
	return 0, false
}

// LookupPrefix returns, in ascending id (and therefore lexicographic) order,
// the ids of every dictionary word starting with prefix.
func (r *Reader) LookupPrefix(prefix string) []uint32 {
	start := sort.Search(len(r.words), func(i int) bool {
		return r.words[i].word >= prefix
	})
	var ids []uint32
	for i := start; i < len(r.words) && strings.HasPrefix(r.words[i].word, prefix); i++ {
		ids = append(ids, uint32(i))
	}
	return ids
}

// Postings decodes the posting list for a word id directly from the blob.
func (r *Reader) Postings(id uint32) (PostingList, error) {
	if int(id) >= len(r.words) {
		return nil, &CorruptIndexError{Reason: "word id out of range"}
	}
	entry := r.words[id]
	base := r.header.postingsOffset + entry.postOffset
	if base > uint64(len(r.blob)) || entry.postLen > uint64(len(r.blob))-base {
		return nil, &CorruptIndexError{Reason: "posting list outside postings region"}
	}
	return decodePostingList(r.blob[base : base+entry.postLen])
}

// Document returns the metadata and retained field text for a document id.
func (r *Reader) Document(id uint32) (Document, error) {
	if int(id) >= len(r.docs) {
		return Document{}, &CorruptIndexError{Reason: "document id out of range"}
	}
	return r.docs[id], nil
}

func (r *Reader) decodeDictionary() error {
	region := r.blob[r.header.dictOffset : r.header.dictOffset+r.header.dictLen]
	dec := decoder{data: region}
	words := make([]dictEntry, 0, r.header.wordCount)
	for i := uint32(0); i < r.header.wordCount; i++ {
		word, ok := dec.string()
		if !ok {
			return &CorruptIndexError{Reason: "truncated dictionary"}
		}
		docFreq, ok1 := dec.uvarint()
		offset, ok2 := dec.uvarint()
		length, ok3 := dec.uvarint()
		if !ok1 || !ok2 || !ok3 {
			return &CorruptIndexError{Reason: "truncated dictionary entry"}
		}
		if offset > r.header.postingsLen || length > r.header.postingsLen-offset {
			return &CorruptIndexError{Reason: "dictionary points outside postings region"}
		}
		if len(words) > 0 && words[len(words)-1].word >= word {
			return &CorruptIndexError{Reason: "dictionary not sorted"}
		}
		words = append(words, dictEntry{
			word:       word,
			docFreq:    int(docFreq),
			postOffset: offset,
			postLen:    length,
		})
	}
	r.words = words
	return nil
}

func (r *Reader) decodeDocuments() error {
	region := r.blob[r.header.docsOffset : r.header.docsOffset+r.header.docsLen]
	dec := decoder{data: region}
	count, ok := dec.uvarint()
	if !ok || count != uint64(r.header.docCount) {
		return &CorruptIndexError{Reason: "document count mismatch"}
	}
	docs := make([]Document, 0, count)
	for i := uint64(0); i < count; i++ {
		title, okTitle := dec.string()
		url, okURL := dec.string()
		length, okLen := dec.uvarint()
		fieldCount, okFields := dec.uvarint()
		if !okTitle || !okURL || !okLen || !okFields {
			return &CorruptIndexError{Reason: "truncated document table"}
		}
		fields := make([]Field, 0, fieldCount)
		for j := uint64(0); j < fieldCount; j++ {
			name, okName := dec.string()
			weightBits, okWeight := dec.fixed64()
			text, okText := dec.string()
			if !okName || !okWeight || !okText {
				return &CorruptIndexError{Reason: "truncated document field"}
			}
			fields = append(fields, Field{
				Name:   name,
				Weight: math.Float64frombits(weightBits),
				Text:   text,
			})
		}
		docs = append(docs, Document{
			Title:  title,
			URL:    url,
			Length: uint32(length),
			Fields: fields,
		})
	}
	r.docs = docs
	return nil
}

func decodePostingList(data []byte) (PostingList, error) {
	dec := decoder{data: data}
	count, ok := dec.uvarint()
	if !ok {
		return nil, &CorruptIndexError{Reason: "truncated posting list"}
	}
	postings := make(PostingList, 0, count)
	prevDoc := uint64(0)
	for i := uint64(0); i < count; i++ {
		delta, okDoc := dec.uvarint()
		field, okField := dec.byte()
		spanCount, okSpans := dec.uvarint()
		if !okDoc || !okField || !okSpans {
			return nil, &CorruptIndexError{Reason: "truncated posting"}
		}
		docID := delta
		if i > 0 {
			docID = prevDoc + delta
		}
		prevDoc = docID
		spans := make([]Span, 0, spanCount)
		prevStart := uint64(0)
		for j := uint64(0); j < spanCount; j++ {
			startDelta, okStart := dec.uvarint()
			spanLen, okSpanLen := dec.uvarint()
			if !okStart || !okSpanLen {
				return nil, &CorruptIndexError{Reason: "truncated span"}
			}
			start := startDelta
			if j > 0 {
				start = prevStart + startDelta
			}
			prevStart = start
			spans = append(spans, Span{Start: uint32(start), End: uint32(start + spanLen)})
		}
		postings = append(postings, Posting{DocID: uint32(docID), Field: field, Spans: spans})
	}
	return postings, nil
}

func decodeSettings(data []byte) (Settings, error) {
	if len(data) < settingsFixedSize {
		return Settings{}, &CorruptIndexError{Reason: "truncated settings"}
	}
	settings := Settings{
		ExcerptRadius:     binary.LittleEndian.Uint16(data[0:2]),
		ExcerptsPerResult: binary.LittleEndian.Uint16(data[2:4]),
		ResultCap:         binary.LittleEndian.Uint16(data[4:6]),
		FuzzyDistance:     data[6],
		UnionFallback:     data[7] == 1,
		ExactBonus:        math.Float64frombits(binary.LittleEndian.Uint64(data[8:16])),
		EditPenalty:       math.Float64frombits(binary.LittleEndian.Uint64(data[16:24])),
		PrefixPenalty:     math.Float64frombits(binary.LittleEndian.Uint64(data[24:32])),
		FrequencyWeight:   math.Float64frombits(binary.LittleEndian.Uint64(data[32:40])),
		Stemming:          data[40] == 1,
		MinimumWordLength: data[41],
	}
	dec := decoder{data: data, pos: settingsFixedSize}
	count, ok := dec.uvarint()
	if !ok || count > maxStopwordCount {
		return Settings{}, &CorruptIndexError{Reason: "invalid stopword count"}
	}
	for i := uint64(0); i < count; i++ {
		word, ok := dec.string()
		if !ok {
			return Settings{}, &CorruptIndexError{Reason: "truncated stopword list"}
		}
		settings.Stopwords = append(settings.Stopwords, word)
	}
	return settings, nil
}

func decodeHeader(blob []byte) header {
	return header{
		magic:          binary.LittleEndian.Uint32(blob[0:4]),
		version:        binary.LittleEndian.Uint32(blob[4:8]),
		wordCount:      binary.LittleEndian.Uint32(blob[8:12]),
		docCount:       binary.LittleEndian.Uint32(blob[12:16]),
		postingCount:   binary.LittleEndian.Uint32(blob[16:20]),
		checksum:       binary.LittleEndian.Uint32(blob[20:24]),
		dictOffset:     binary.LittleEndian.Uint64(blob[24:32]),
		dictLen:        binary.LittleEndian.Uint64(blob[32:40]),
		docsOffset:     binary.LittleEndian.Uint64(blob[40:48]),
		docsLen:        binary.LittleEndian.Uint64(blob[48:56]),
		postingsOffset: binary.LittleEndian.Uint64(blob[56:64]),
		postingsLen:    binary.LittleEndian.Uint64(blob[64:72]),
		settingsOffset: binary.LittleEndian.Uint64(blob[72:80]),
	}
}

// decoder is a bounds-checked cursor over a byte region.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) uvarint() (uint64, bool) {
	v, n := binary.Uvarint(d.data[d.pos:])
	if n <= 0 {
		return 0, false
	}
	d.pos += n
	return v, true
}

func (d *decoder) byte() (uint8, bool) {
	if d.pos >= len(d.data) {
		return 0, false
	}
	b := d.data[d.pos]
	d.pos++
	return b, true
}

func (d *decoder) fixed64() (uint64, bool) {
	if d.pos+8 > len(d.data) {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos : d.pos+8])
	d.pos += 8
	return v, true
}

func (d *decoder) string() (string, bool) {
	length, ok := d.uvarint()
	if !ok || length > uint64(len(d.data)-d.pos) {
		return "", false
	}
	s := string(d.data[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return s, true
}
