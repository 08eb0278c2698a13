package indexfile

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDocuments() []Document {
	return []Document{
		{
			Title:  "Cats",
			URL:    "/cats",
			Length: 19,
			Fields: []Field{
				{Name: "title", Weight: 2.0, Text: "Cats"},
				{Name: "body", Weight: 1.0, Text: "Cats are great pets"},
			},
		},
		{
			Title:  "Dogs",
			URL:    "/dogs",
			Length: 19,
			Fields: []Field{
				{Name: "title", Weight: 2.0, Text: "Dogs"},
				{Name: "body", Weight: 1.0, Text: "Dogs are loyal pets"},
			},
		},
	}
}

func testEntries() []TermEntry {
	return []TermEntry{
		{Word: "pets", Postings: PostingList{
			{DocID: 0, Field: 1, Spans: []Span{{Start: 15, End: 19}}},
			{DocID: 1, Field: 1, Spans: []Span{{Start: 15, End: 19}}},
		}},
		{Word: "cats", Postings: PostingList{
			{DocID: 0, Field: 0, Spans: []Span{{Start: 0, End: 4}}},
			{DocID: 0, Field: 1, Spans: []Span{{Start: 0, End: 4}}},
		}},
		{Word: "dogs", Postings: PostingList{
			{DocID: 1, Field: 0, Spans: []Span{{Start: 0, End: 4}}},
			{DocID: 1, Field: 1, Spans: []Span{{Start: 0, End: 4}}},
		}},
		{Word: "great", Postings: PostingList{
			{DocID: 0, Field: 1, Spans: []Span{{Start: 9, End: 14}}},
		}},
		{Word: "loyal", Postings: PostingList{
			{DocID: 1, Field: 1, Spans: []Span{{Start: 9, End: 14}}},
		}},
	}
}

func testSettings() Settings {
	return Settings{
		ExcerptRadius:     80,
		ExcerptsPerResult: 5,
		ResultCap:         20,
		FuzzyDistance:     2,
		UnionFallback:     true,
		ExactBonus:        4.0,
		EditPenalty:       1.0,
		PrefixPenalty:     0.5,
		FrequencyWeight:   0.25,
		Stemming:          false,
		MinimumWordLength: 1,
		Stopwords:         []string{"an", "the"},
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	assert := require.New(t)

	blob, err := Write(testDocuments(), testEntries(), testSettings())
	assert.NoError(err)

	reader, err := Load(blob)
	assert.NoError(err)

	assert.Equal(5, reader.WordCount())
	assert.Equal(2, reader.DocCount())
	assert.Equal(testSettings(), reader.Settings())

	// Dictionary is sorted, so word ids follow lexicographic order.
	assert.Equal("cats", reader.Word(0))
	assert.Equal("dogs", reader.Word(1))
	assert.Equal("great", reader.Word(2))
	assert.Equal("loyal", reader.Word(3))
	assert.Equal("pets", reader.Word(4))

	id, found := reader.LookupExact("pets")
	assert.True(found)
	postings, err := reader.Postings(id)
	assert.NoError(err)
	assert.Len(postings, 2)
	assert.Equal(uint32(0), postings[0].DocID)
	assert.Equal(uint32(1), postings[1].DocID)
	assert.Equal([]Span{{Start: 15, End: 19}}, postings[0].Spans)

	doc, err := reader.Document(1)
	assert.NoError(err)
	assert.Equal("Dogs", doc.Title)
	assert.Equal("/dogs", doc.URL)
	assert.Len(doc.Fields, 2)
	assert.Equal("Dogs are loyal pets", doc.Fields[1].Text)
}

func TestWriteIsDeterministic(t *testing.T) {
	assert := require.New(t)

	first, err := Write(testDocuments(), testEntries(), testSettings())
	assert.NoError(err)

	// Same logical input, different entry order.
	entries := testEntries()
	entries[0], entries[len(entries)-1] = entries[len(entries)-1], entries[0]
	second, err := Write(testDocuments(), entries, testSettings())
	assert.NoError(err)

	assert.Equal(first, second)
}

func TestLookupExactMissingWord(t *testing.T) {
	assert := require.New(t)

	blob, err := Write(testDocuments(), testEntries(), testSettings())
	assert.NoError(err)
	reader, err := Load(blob)
	assert.NoError(err)

	_, found := reader.LookupExact("xyzzy")
	assert.False(found)
}

func TestLookupPrefix(t *testing.T) {
	assert := require.New(t)

	docs := []Document{{Title: "t", URL: "/t", Fields: []Field{{Name: "body", Weight: 1, Text: "search searching seattle"}}}}
	entries := []TermEntry{
		{Word: "search", Postings: PostingList{{DocID: 0, Field: 0, Spans: []Span{{Start: 0, End: 6}}}}},
		{Word: "searching", Postings: PostingList{{DocID: 0, Field: 0, Spans: []Span{{Start: 7, End: 16}}}}},
		{Word: "seattle", Postings: PostingList{{DocID: 0, Field: 0, Spans: []Span{{Start: 17, End: 24}}}}},
	}
	blob, err := Write(docs, entries, testSettings())
	assert.NoError(err)
	reader, err := Load(blob)
	assert.NoError(err)

	ids := reader.LookupPrefix("sea")
	assert.Len(ids, 3)

	ids = reader.LookupPrefix("searc")
	assert.Len(ids, 2)
	assert.Equal("search", reader.Word(ids[0]))
	assert.Equal("searching", reader.Word(ids[1]))

	assert.Empty(reader.LookupPrefix("z"))
}

func TestLoadRejectsCorruptBlob(t *testing.T) {
	assert := require.New(t)

	blob, err := Write(testDocuments(), testEntries(), testSettings())
	assert.NoError(err)

	corruptionTestCases := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{
			name:   "TooShort",
			mutate: func(b []byte) []byte { return b[:40] },
		},
		{
			name: "BadMagic",
			mutate: func(b []byte) []byte {
				b[0] ^= 0xFF
				return b
			},
		},
		{
			name:   "Truncated",
			mutate: func(b []byte) []byte { return b[:len(b)-3] },
		},
		{
			name: "FlippedPayloadByte",
			mutate: func(b []byte) []byte {
				b[len(b)-1] ^= 0xFF
				return b
			},
		},
		{
			name: "FlippedSettingsByte",
			mutate: func(b []byte) []byte {
				b[headerSize] ^= 0xFF
				return b
			},
		},
		{
			// Region lengths chosen so the offset chain wraps uint64
			// arithmetic back into range. The checksum does not cover the
			// header, so only the region checks stand in the way.
			name: "WrappedRegionLength",
			mutate: func(b []byte) []byte {
				dictOffset := binary.LittleEndian.Uint64(b[24:32])
				postingsOffset := binary.LittleEndian.Uint64(b[56:64])
				docsOffset := dictOffset + 1<<40
				binary.LittleEndian.PutUint64(b[32:40], 1<<40)
				binary.LittleEndian.PutUint64(b[40:48], docsOffset)
				binary.LittleEndian.PutUint64(b[48:56], postingsOffset-docsOffset)
				return b
			},
		},
	}

	for _, tc := range corruptionTestCases {
		t.Run(tc.name, func(t *testing.T) {
			mutated := tc.mutate(append([]byte(nil), blob...))
			_, err := Load(mutated)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrCorruptIndex), "expected ErrCorruptIndex, got %v", err)
		})
	}
}

func TestDictionaryEntryOverflowRejected(t *testing.T) {
	assert := require.New(t)

	// One entry whose posting offset plus length wraps past the region end.
	var dict []byte
	dict = binary.AppendUvarint(dict, 4)
	dict = append(dict, "cats"...)
	dict = binary.AppendUvarint(dict, 1) // doc frequency
	dict = binary.AppendUvarint(dict, 1) // posting offset
	dict = binary.AppendUvarint(dict, math.MaxUint64)

	r := &Reader{
		blob: append(make([]byte, headerSize+settingsFixedSize), dict...),
		header: header{
			wordCount:   1,
			dictOffset:  headerSize + settingsFixedSize,
			dictLen:     uint64(len(dict)),
			postingsLen: 64,
		},
	}
	err := r.decodeDictionary()
	assert.Error(err)
	assert.True(errors.Is(err, ErrCorruptIndex))
}

func TestPostingsOutsideRegionRejected(t *testing.T) {
	assert := require.New(t)

	r := &Reader{
		blob:   make([]byte, 100),
		header: header{postingsOffset: 50, postingsLen: 50},
		words:  []dictEntry{{word: "cats", postOffset: 10, postLen: math.MaxUint64}},
	}
	_, err := r.Postings(0)
	assert.Error(err)
	assert.True(errors.Is(err, ErrCorruptIndex))
}

func TestDecoderStringRejectsWrappedLength(t *testing.T) {
	data := binary.AppendUvarint(nil, math.MaxUint64)
	data = append(data, 'x')

	dec := decoder{data: data}
	_, ok := dec.string()
	require.False(t, ok)
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	assert := require.New(t)

	blob, err := Write(testDocuments(), testEntries(), testSettings())
	assert.NoError(err)

	blob[4] = 99
	_, err = Load(blob)
	assert.Error(err)
	assert.True(errors.Is(err, ErrVersionMismatch))

	var versionErr *VersionMismatchError
	assert.True(errors.As(err, &versionErr))
	assert.Equal(uint32(99), versionErr.Version)
}

func TestWriteRejectsDanglingDocID(t *testing.T) {
	assert := require.New(t)

	entries := []TermEntry{
		{Word: "ghost", Postings: PostingList{{DocID: 7, Field: 0, Spans: []Span{{Start: 0, End: 5}}}}},
	}
	_, err := Write(testDocuments(), entries, testSettings())
	assert.Error(err)
}

func TestEmptyIndexRoundTrip(t *testing.T) {
	assert := require.New(t)

	blob, err := Write(nil, nil, testSettings())
	assert.NoError(err)

	reader, err := Load(blob)
	assert.NoError(err)
	assert.Equal(0, reader.WordCount())
	assert.Equal(0, reader.DocCount())
	assert.Empty(reader.LookupPrefix("a"))
}

func TestDocumentWithNoPostingsKeepsSlot(t *testing.T) {
	assert := require.New(t)

	// An empty document in the middle must not shift the ids of later ones.
	docs := []Document{
		{Title: "First", URL: "/1", Fields: []Field{{Name: "body", Weight: 1, Text: "alpha"}}},
		{Title: "Empty", URL: "/2", Fields: []Field{{Name: "body", Weight: 1, Text: ""}}},
		{Title: "Third", URL: "/3", Fields: []Field{{Name: "body", Weight: 1, Text: "omega"}}},
	}
	entries := []TermEntry{
		{Word: "alpha", Postings: PostingList{{DocID: 0, Field: 0, Spans: []Span{{Start: 0, End: 5}}}}},
		{Word: "omega", Postings: PostingList{{DocID: 2, Field: 0, Spans: []Span{{Start: 0, End: 5}}}}},
	}
	blob, err := Write(docs, entries, testSettings())
	assert.NoError(err)
	reader, err := Load(blob)
	assert.NoError(err)

	assert.Equal(3, reader.DocCount())
	doc, err := reader.Document(2)
	assert.NoError(err)
	assert.Equal("Third", doc.Title)

	id, found := reader.LookupExact("omega")
	assert.True(found)
	postings, err := reader.Postings(id)
	assert.NoError(err)
	assert.Equal(uint32(2), postings[0].DocID)
}
