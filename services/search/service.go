package search

import (
	"math"
	"sort"
	"strings"

	"github.com/meghashyamc/glimpse/db/indexfile"
	"github.com/meghashyamc/glimpse/logger"
	"github.com/meghashyamc/glimpse/services/index"
)

// maxQueryLength guards against pathological input; longer queries are
// truncated rather than rejected.
const maxQueryLength = 1000

// minMatchWeight floors penalty arithmetic so a heavily penalized match
// still counts for something instead of going negative.
const minMatchWeight = 0.1

// Service answers queries against one loaded index. It holds only immutable
// state, so a single Service is safe for concurrent queries.
type Service struct {
	logger logger.Logger
	reader *indexfile.Reader
	opts   index.TokenizerOptions
}

func New(logger logger.Logger, reader *indexfile.Reader) *Service {
	return &Service{
		logger: logger,
		reader: reader,
		opts:   index.NewTokenizerOptions(reader.Settings()),
	}
}

// Result is one ranked document with its excerpts.
type Result struct {
	DocID    uint32    `json:"doc_id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Score    float64   `json:"score"`
	Excerpts []Excerpt `json:"excerpts"`
}

// queryTerm is one resolved term of the current query.
type queryTerm struct {
	raw        string // normalized but unstemmed, used for prefix matching
	word       string // fully normalized, used for exact and fuzzy matching
	candidates []candidate
}

// QueryState carries one query's resolved terms so the next keystroke can
// reuse them. It holds copies of word ids only, never index internals, so
// discarding it (or the query's results) has no effect on the index. A state
// is bound to the index it came from; handing it to a Service over a
// different index just disables reuse.
type QueryState struct {
	reader *indexfile.Reader
	query  string
	terms  []queryTerm
}

// Query returns the (possibly truncated) query string this state belongs to.
func (qs *QueryState) Query() string {
	return qs.query
}

// Search runs a full query and returns ranked results plus the state to pass
// back in on the next keystroke. It never fails: malformed or unmatched
// input yields an empty result list. Passing a stale or nil previous state
// only affects speed, never the results.
func (s *Service) Search(query string, prev *QueryState) ([]Result, *QueryState) {
	if len(query) > maxQueryLength {
		s.logger.Warn("query exceeds length cap, truncating", "length", len(query))
		query = truncateAtRuneBoundary(query, maxQueryLength)
	}

	state := &QueryState{reader: s.reader, query: query}
	tokens := index.Tokenize(query, s.opts)
	if len(tokens) == 0 {
		return nil, state
	}

	state.terms = make([]queryTerm, len(tokens))
	for i, token := range tokens {
		state.terms[i] = queryTerm{
			raw:  strings.ToLower(query[token.Start:token.End]),
			word: token.Word,
		}
	}

	reusable := reusableTerms(state, prev)
	for i := range state.terms {
		term := &state.terms[i]
		last := i == len(state.terms)-1
		switch {
		case last && reusable == len(state.terms):
			term.candidates = s.narrowLastTerm(term, prev.terms[i])
		case i < reusable:
			term.candidates = prev.terms[i].candidates
		default:
			term.candidates = s.resolveTerm(term, last)
		}
	}

	results := s.rank(state.terms)
	return results, state
}

// reusableTerms reports how many leading terms of the new query can reuse
// the previous state's candidates. If the return value equals the term
// count, the last term is an extension of the previous last term and may be
// narrowed instead of re-resolved.
func reusableTerms(state *QueryState, prev *QueryState) int {
	if prev == nil || prev.reader != state.reader ||
		len(prev.terms) != len(state.terms) || !strings.HasPrefix(state.query, prev.query) {
		return 0
	}
	for i := 0; i < len(state.terms)-1; i++ {
		if state.terms[i].word != prev.terms[i].word {
			return i
		}
	}
	lastNew := state.terms[len(state.terms)-1]
	lastPrev := prev.terms[len(prev.terms)-1]
	if !strings.HasPrefix(lastNew.raw, lastPrev.raw) {
		return len(state.terms) - 1
	}
	return len(state.terms)
}

// resolveTerm finds a term's candidate word ids from scratch: exact match
// first, fuzzy only when exact fails, plus prefix tolerance when the term is
// the final (possibly still being typed) one.
func (s *Service) resolveTerm(term *queryTerm, last bool) []candidate {
	var candidates []candidate
	seen := make(map[uint32]struct{})

	if exactID, ok := s.reader.LookupExact(term.word); ok {
		candidates = append(candidates, candidate{wordID: exactID, kind: matchExact})
		seen[exactID] = struct{}{}
	}

	if last {
		for _, id := range s.reader.LookupPrefix(term.raw) {
			if _, dup := seen[id]; dup {
				continue
			}
			candidates = append(candidates, candidate{wordID: id, kind: matchPrefix})
			seen[id] = struct{}{}
		}
	}

	if !hasExact(candidates) {
		bound := fuzzyBound(term.word, int(s.reader.Settings().FuzzyDistance))
		for _, cand := range s.fuzzyCandidates(term.word, bound) {
			if _, dup := seen[cand.wordID]; dup {
				continue
			}
			candidates = append(candidates, cand)
		}
	}

	return candidates
}

func hasExact(candidates []candidate) bool {
	return len(candidates) > 0 && candidates[0].kind == matchExact
}

// narrowLastTerm is the incremental path: when the final term grew by a few
// characters, its prefix candidates are a subset of the previous ones, so
// they are re-filtered instead of re-scanned. Exact and fuzzy candidates are
// re-resolved; results are identical to resolveTerm either way.
func (s *Service) narrowLastTerm(term *queryTerm, prevTerm queryTerm) []candidate {
	var candidates []candidate
	seen := make(map[uint32]struct{})

	exactID, haveExact := s.reader.LookupExact(term.word)
	if haveExact {
		candidates = append(candidates, candidate{wordID: exactID, kind: matchExact})
		seen[exactID] = struct{}{}
	}

	for _, prevCandidate := range prevTerm.candidates {
		if prevCandidate.kind != matchPrefix && prevCandidate.kind != matchExact {
			continue
		}
		if _, dup := seen[prevCandidate.wordID]; dup {
			continue
		}
		if strings.HasPrefix(s.reader.Word(prevCandidate.wordID), term.raw) {
			candidates = append(candidates, candidate{wordID: prevCandidate.wordID, kind: matchPrefix})
			seen[prevCandidate.wordID] = struct{}{}
		}
	}

	if !haveExact {
		bound := fuzzyBound(term.word, int(s.reader.Settings().FuzzyDistance))
		for _, cand := range s.fuzzyCandidates(term.word, bound) {
			if _, dup := seen[cand.wordID]; dup {
				continue
			}
			candidates = append(candidates, cand)
		}
	}

	return candidates
}

// fieldMatch is one highlighted occurrence inside one document field.
type fieldMatch struct {
	field uint8
	span  indexfile.Span
}

// rank combines per-term candidates into scored documents. The default
// policy is intersection: a document must match every term. When that
// leaves nothing and union fallback is enabled, any-term matches are ranked
// instead.
func (s *Service) rank(terms []queryTerm) []Result {
	settings := s.reader.Settings()

	type docScore struct {
		score    float64
		termsHit int
		matches  []fieldMatch
	}
	scores := make(map[uint32]*docScore)

	for _, term := range terms {
		perTermBest := make(map[uint32]float64)
		perTermMatches := make(map[uint32][]fieldMatch)

		for _, cand := range term.candidates {
			postings, err := s.reader.Postings(cand.wordID)
			if err != nil {
				s.logger.Error("failed to decode postings", "word_id", cand.wordID, "err", err.Error())
				continue
			}
			weight := s.matchWeight(cand, settings)
			for _, posting := range postings {
				doc, err := s.reader.Document(posting.DocID)
				if err != nil {
					continue
				}
				fieldWeight := 1.0
				if int(posting.Field) < len(doc.Fields) {
					fieldWeight = doc.Fields[posting.Field].Weight
				}
				frequency := 1 + settings.FrequencyWeight*math.Log(1+float64(len(posting.Spans)))
				contribution := weight * fieldWeight * frequency
				if contribution > perTermBest[posting.DocID] {
					perTermBest[posting.DocID] = contribution
				}
				for _, span := range posting.Spans {
					perTermMatches[posting.DocID] = append(perTermMatches[posting.DocID], fieldMatch{
						field: posting.Field,
						span:  span,
					})
				}
			}
		}

		for docID, contribution := range perTermBest {
			entry, ok := scores[docID]
			if !ok {
				entry = &docScore{}
				scores[docID] = entry
			}
			entry.score += contribution
			entry.termsHit++
			entry.matches = append(entry.matches, perTermMatches[docID]...)
		}
	}

	requireAll := true
	if settings.UnionFallback {
		anyFullMatch := false
		for _, entry := range scores {
			if entry.termsHit == len(terms) {
				anyFullMatch = true
				break
			}
		}
		requireAll = anyFullMatch
	}

	ranked := make([]Result, 0, len(scores))
	for docID, entry := range scores {
		if requireAll && entry.termsHit != len(terms) {
			continue
		}
		doc, err := s.reader.Document(docID)
		if err != nil {
			continue
		}
		ranked = append(ranked, Result{
			DocID:    docID,
			Title:    doc.Title,
			URL:      doc.URL,
			Score:    entry.score,
			Excerpts: s.buildExcerpts(doc, entry.matches),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].DocID < ranked[j].DocID
	})

	if limit := int(settings.ResultCap); limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// matchWeight orders match quality: exact beats prefix beats fuzzy, and
// every extra edit costs more. The coefficients come from the index
// settings, not from code.
func (s *Service) matchWeight(cand candidate, settings indexfile.Settings) float64 {
	weight := settings.ExactBonus
	switch cand.kind {
	case matchPrefix:
		weight -= settings.PrefixPenalty
	case matchFuzzy:
		weight -= settings.EditPenalty * float64(cand.distance)
	}
	return math.Max(weight, minMatchWeight)
}

func truncateAtRuneBoundary(s string, limit int) string {
	for limit > 0 && limit < len(s) && (s[limit]&0xC0) == 0x80 {
		limit--
	}
	if limit >= len(s) {
		return s
	}
	return s[:limit]
}
