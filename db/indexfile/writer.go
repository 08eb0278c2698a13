package indexfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"sort"
)

// Write serializes documents, term entries, and settings into a single index
// blob. The same input always produces byte-identical output: entries are
// sorted by word, postings by (document id, field), and every occurrence list
// keeps its original offset order.
func Write(docs []Document, entries []TermEntry, settings Settings) ([]byte, error) {
	if len(entries) > 0 && len(docs) == 0 {
		return nil, fmt.Errorf("postings present but document table is empty")
	}

	sorted := make([]TermEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Word < sorted[j].Word
	})

	totalPostings := 0
	for idx, entry := range sorted {
		if len(entry.Postings) == 0 {
			return nil, fmt.Errorf("word %q has no postings", entry.Word)
		}
		postings := make(PostingList, len(entry.Postings))
		copy(postings, entry.Postings)
		sort.Slice(postings, func(i, j int) bool {
			if postings[i].DocID != postings[j].DocID {
				return postings[i].DocID < postings[j].DocID
			}
			return postings[i].Field < postings[j].Field
		})
		for _, p := range postings {
			if int(p.DocID) >= len(docs) {
				return nil, fmt.Errorf("word %q references unknown document %d", entry.Word, p.DocID)
			}
		}
		sorted[idx].Postings = postings
		totalPostings += len(postings)
	}

	var postingsBuf bytes.Buffer
	dictOffsets := make([]uint64, len(sorted))
	dictLens := make([]uint64, len(sorted))
	for i, entry := range sorted {
		dictOffsets[i] = uint64(postingsBuf.Len())
		writePostingList(&postingsBuf, entry.Postings)
		dictLens[i] = uint64(postingsBuf.Len()) - dictOffsets[i]
	}

	var dictBuf bytes.Buffer
	for i, entry := range sorted {
		writeString(&dictBuf, entry.Word)
		writeUvarint(&dictBuf, uint64(len(entry.Postings)))
		writeUvarint(&dictBuf, dictOffsets[i])
		writeUvarint(&dictBuf, dictLens[i])
	}

	var docsBuf bytes.Buffer
	writeUvarint(&docsBuf, uint64(len(docs)))
	for _, doc := range docs {
		writeString(&docsBuf, doc.Title)
		writeString(&docsBuf, doc.URL)
		writeUvarint(&docsBuf, uint64(doc.Length))
		writeUvarint(&docsBuf, uint64(len(doc.Fields)))
		for _, field := range doc.Fields {
			writeString(&docsBuf, field.Name)
			var weightBits [8]byte
			binary.LittleEndian.PutUint64(weightBits[:], math.Float64bits(field.Weight))
			docsBuf.Write(weightBits[:])
			writeUvarint(&docsBuf, uint64(len(field.Text)))
			docsBuf.WriteString(field.Text)
		}
	}

	settingsBytes, err := encodeSettings(settings)
	if err != nil {
		return nil, err
	}

	h := header{
		magic:          Magic,
		version:        FormatVersion,
		wordCount:      uint32(len(sorted)),
		docCount:       uint32(len(docs)),
		postingCount:   uint32(totalPostings),
		settingsOffset: headerSize,
		dictOffset:     headerSize + uint64(len(settingsBytes)),
		dictLen:        uint64(dictBuf.Len()),
	}
	h.docsOffset = h.dictOffset + h.dictLen
	h.docsLen = uint64(docsBuf.Len())
	h.postingsOffset = h.docsOffset + h.docsLen
	h.postingsLen = uint64(postingsBuf.Len())

	payload := make([]byte, 0, len(settingsBytes)+dictBuf.Len()+docsBuf.Len()+postingsBuf.Len())
	payload = append(payload, settingsBytes...)
	payload = append(payload, dictBuf.Bytes()...)
	payload = append(payload, docsBuf.Bytes()...)
	payload = append(payload, postingsBuf.Bytes()...)
	h.checksum = crc32.ChecksumIEEE(payload)

	blob := make([]byte, headerSize, headerSize+len(payload))
	encodeHeader(blob, h)
	blob = append(blob, payload...)
	return blob, nil
}

// writePostingList encodes one word's postings as delta-compressed varints:
// document ids are deltas from the previous posting, span starts are deltas
// from the previous span, and span ends are stored as lengths.
func writePostingList(buf *bytes.Buffer, postings PostingList) {
	writeUvarint(buf, uint64(len(postings)))
	prevDoc := uint64(0)
	for i, p := range postings {
		docID := uint64(p.DocID)
		if i == 0 {
			writeUvarint(buf, docID)
		} else {
			writeUvarint(buf, docID-prevDoc)
		}
		prevDoc = docID
		buf.WriteByte(p.Field)
		writeUvarint(buf, uint64(len(p.Spans)))
		prevStart := uint64(0)
		for j, span := range p.Spans {
			start := uint64(span.Start)
			if j == 0 {
				writeUvarint(buf, start)
			} else {
				writeUvarint(buf, start-prevStart)
			}
			prevStart = start
			writeUvarint(buf, uint64(span.End-span.Start))
		}
	}
}

func encodeSettings(s Settings) ([]byte, error) {
	if len(s.Stopwords) > maxStopwordCount {
		return nil, fmt.Errorf("too many stopwords: %d (max %d)", len(s.Stopwords), maxStopwordCount)
	}
	if s.MinimumWordLength > maxMinimumWordLen {
		return nil, fmt.Errorf("minimum word length %d exceeds %d", s.MinimumWordLength, maxMinimumWordLen)
	}

	fixed := make([]byte, settingsFixedSize)
	binary.LittleEndian.PutUint16(fixed[0:2], s.ExcerptRadius)
	binary.LittleEndian.PutUint16(fixed[2:4], s.ExcerptsPerResult)
	binary.LittleEndian.PutUint16(fixed[4:6], s.ResultCap)
	fixed[6] = s.FuzzyDistance
	if s.UnionFallback {
		fixed[7] = 1
	}
	binary.LittleEndian.PutUint64(fixed[8:16], math.Float64bits(s.ExactBonus))
	binary.LittleEndian.PutUint64(fixed[16:24], math.Float64bits(s.EditPenalty))
	binary.LittleEndian.PutUint64(fixed[24:32], math.Float64bits(s.PrefixPenalty))
	binary.LittleEndian.PutUint64(fixed[32:40], math.Float64bits(s.FrequencyWeight))
	if s.Stemming {
		fixed[40] = 1
	}
	fixed[41] = s.MinimumWordLength

	var buf bytes.Buffer
	buf.Write(fixed)

	// Stopwords are sorted so the blob stays deterministic regardless of how
	// the config listed them.
	stopwords := make([]string, len(s.Stopwords))
	copy(stopwords, s.Stopwords)
	sort.Strings(stopwords)
	writeUvarint(&buf, uint64(len(stopwords)))
	for _, word := range stopwords {
		writeString(&buf, word)
	}
	return buf.Bytes(), nil
}

func encodeHeader(dst []byte, h header) {
	binary.LittleEndian.PutUint32(dst[0:4], h.magic)
	binary.LittleEndian.PutUint32(dst[4:8], h.version)
	binary.LittleEndian.PutUint32(dst[8:12], h.wordCount)
	binary.LittleEndian.PutUint32(dst[12:16], h.docCount)
	binary.LittleEndian.PutUint32(dst[16:20], h.postingCount)
	binary.LittleEndian.PutUint32(dst[20:24], h.checksum)
	binary.LittleEndian.PutUint64(dst[24:32], h.dictOffset)
	binary.LittleEndian.PutUint64(dst[32:40], h.dictLen)
	binary.LittleEndian.PutUint64(dst[40:48], h.docsOffset)
	binary.LittleEndian.PutUint64(dst[48:56], h.docsLen)
	binary.LittleEndian.PutUint64(dst[56:64], h.postingsOffset)
	binary.LittleEndian.PutUint64(dst[64:72], h.postingsLen)
	binary.LittleEndian.PutUint64(dst[72:80], h.settingsOffset)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}
