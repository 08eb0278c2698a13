package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meghashyamc/glimpse/config"
	"github.com/meghashyamc/glimpse/db/indexfile"
	"github.com/meghashyamc/glimpse/logger"
)

const maxParallelTokenizers = 16

// Service builds the serialized search index from the configured corpus.
type Service struct {
	logger        logger.Logger
	cfg           *config.Config
	metadataStore MetadataStore
}

func New(logger logger.Logger, cfg *config.Config, metadataStore MetadataStore) *Service {
	return &Service{
		logger:        logger,
		cfg:           cfg,
		metadataStore: metadataStore,
	}
}

// BuildWarning records one document that could not be indexed. The build
// carries on without it.
type BuildWarning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// BuildSummary is what a completed build reports.
type BuildSummary struct {
	DocumentCount int            `json:"document_count"`
	WordCount     int            `json:"word_count"`
	PostingCount  int            `json:"posting_count"`
	IndexBytes    int            `json:"index_bytes"`
	Duration      time.Duration  `json:"duration"`
	Warnings      []BuildWarning `json:"warnings,omitempty"`
}

// documentPartial is the tokenized form of one document, produced in
// parallel and merged sequentially so the result is deterministic.
type documentPartial struct {
	doc     indexfile.Document
	tokens  [][]Token // indexed by field, parallel to doc.Fields
	warning *BuildWarning
}

// Build fetches, tokenizes, and merges every configured document, then
// serializes the result. A document that cannot be read still occupies its
// slot in the document table so that later ids stay stable; it just
// contributes no postings.
func (s *Service) Build(ctx context.Context) ([]byte, *BuildSummary, error) {
	startedAt := time.Now()
	files := s.cfg.Input.Files
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no documents configured")
	}

	s.logger.Info("building index", "documents", len(files), "note", describeChangedSources(s.changedSources()))

	opts := TokenizerOptions{
		MinimumWordLength: s.cfg.Input.MinimumWordLength,
		Stemming:          s.cfg.Input.Stemming,
		Stopwords:         StopwordSet(s.cfg.Input.Stopwords),
	}

	partials := make([]documentPartial, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelTokenizers)
	for i, file := range files {
		i, file := i, file
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			partials[i] = s.tokenizeDocument(file, opts)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, fmt.Errorf("build cancelled: %w", err)
	}

	docs, entries, warnings, postingCount := s.merge(partials)

	settings := s.settings()
	blob, err := indexfile.Write(docs, entries, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize index: %w", err)
	}

	summary := &BuildSummary{
		DocumentCount: len(docs),
		WordCount:     len(entries),
		PostingCount:  postingCount,
		IndexBytes:    len(blob),
		Duration:      time.Since(startedAt),
		Warnings:      warnings,
	}
	s.recordBuild(summary, startedAt)

	s.logger.Info("index built",
		"documents", summary.DocumentCount,
		"words", summary.WordCount,
		"postings", summary.PostingCount,
		"bytes", summary.IndexBytes,
		"warnings", len(summary.Warnings),
	)
	return blob, summary, nil
}

// tokenizeDocument runs independently per document: fetch, extract, and
// tokenize each field. Errors become warnings, never build failures.
func (s *Service) tokenizeDocument(file config.FileConfig, opts TokenizerOptions) documentPartial {
	partial := documentPartial{
		doc: indexfile.Document{
			Title: file.Title,
			URL:   s.cfg.Input.URLPrefix + file.URL,
		},
	}

	fail := func(reason string) documentPartial {
		s.logger.Warn("skipping document", "path", file.Path, "reason", reason)
		partial.warning = &BuildWarning{Path: file.Path, Reason: reason}
		partial.doc.Fields = emptyFields(s.titleWeight(file))
		partial.tokens = make([][]Token, len(partial.doc.Fields))
		return partial
	}

	raw, err := fetchSource(file, s.cfg.Input.BaseDirectory)
	if err != nil {
		return fail(err.Error())
	}

	body, err := extractContent(file, raw)
	if err != nil {
		return fail(err.Error())
	}

	if partial.doc.Title == "" && detectFiletype(file) == filetypeMarkdown {
		partial.doc.Title = frontmatterTitle(string(raw))
	}
	if partial.doc.Title == "" {
		return fail("document has no title")
	}

	partial.doc.Fields = []indexfile.Field{
		{Name: "title", Weight: s.titleWeight(file), Text: partial.doc.Title},
		{Name: "body", Weight: 1.0, Text: body},
	}
	partial.doc.Length = uint32(len(partial.doc.Title) + len(body))
	partial.tokens = make([][]Token, len(partial.doc.Fields))
	for f, field := range partial.doc.Fields {
		partial.tokens[f] = Tokenize(field.Text, opts)
	}
	return partial
}

// merge folds the per-document partials into one dictionary and posting set.
// It runs single-threaded over documents in config order, which together
// with the writer's sorting makes the output reproducible.
func (s *Service) merge(partials []documentPartial) ([]indexfile.Document, []indexfile.TermEntry, []BuildWarning, int) {
	docs := make([]indexfile.Document, len(partials))
	var warnings []BuildWarning

	type postingKey struct {
		docID uint32
		field uint8
	}
	accum := make(map[string]map[postingKey]*indexfile.Posting)

	for i, partial := range partials {
		docs[i] = partial.doc
		if partial.warning != nil {
			warnings = append(warnings, *partial.warning)
			continue
		}
		for f, tokens := range partial.tokens {
			for _, token := range tokens {
				key := postingKey{docID: uint32(i), field: uint8(f)}
				byDoc, ok := accum[token.Word]
				if !ok {
					byDoc = make(map[postingKey]*indexfile.Posting)
					accum[token.Word] = byDoc
				}
				posting, ok := byDoc[key]
				if !ok {
					posting = &indexfile.Posting{DocID: key.docID, Field: key.field}
					byDoc[key] = posting
				}
				posting.Spans = append(posting.Spans, indexfile.Span{
					Start: uint32(token.Start),
					End:   uint32(token.End),
				})
			}
		}
	}

	entries := make([]indexfile.TermEntry, 0, len(accum))
	postingCount := 0
	for word, byDoc := range accum {
		postings := make(indexfile.PostingList, 0, len(byDoc))
		for _, posting := range byDoc {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			if postings[i].DocID != postings[j].DocID {
				return postings[i].DocID < postings[j].DocID
			}
			return postings[i].Field < postings[j].Field
		})
		postingCount += len(postings)
		entries = append(entries, indexfile.TermEntry{Word: word, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Word < entries[j].Word
	})

	return docs, entries, warnings, postingCount
}

func (s *Service) titleWeight(file config.FileConfig) float64 {
	if file.TitleWeight > 0 {
		return file.TitleWeight
	}
	return s.cfg.Input.TitleBoost
}

func (s *Service) settings() indexfile.Settings {
	out := s.cfg.Output
	return indexfile.Settings{
		ExcerptRadius:     uint16(out.ExcerptRadius),
		ExcerptsPerResult: uint16(out.ExcerptsPerResult),
		ResultCap:         uint16(out.ResultCap),
		FuzzyDistance:     uint8(out.FuzzyDistance),
		UnionFallback:     out.UnionFallback,
		ExactBonus:        out.ExactBonus,
		EditPenalty:       out.EditPenalty,
		PrefixPenalty:     out.PrefixPenalty,
		FrequencyWeight:   out.FrequencyWeight,
		Stemming:          s.cfg.Input.Stemming,
		MinimumWordLength: uint8(s.cfg.Input.MinimumWordLength),
		Stopwords:         s.cfg.Input.Stopwords,
	}
}

func emptyFields(titleWeight float64) []indexfile.Field {
	return []indexfile.Field{
		{Name: "title", Weight: titleWeight, Text: ""},
		{Name: "body", Weight: 1.0, Text: ""},
	}
}
