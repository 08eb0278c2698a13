package search

import (
	"unicode/utf8"
)

type matchKind uint8

const (
	matchExact matchKind = iota
	matchPrefix
	matchFuzzy
)

// candidate is one dictionary word accepted as a match for a query term.
type candidate struct {
	wordID   uint32
	kind     matchKind
	distance int
}

// fuzzyBound scales the edit-distance budget down for short terms: one edit
// in a three-letter word is already a third of the word.
func fuzzyBound(term string, configured int) int {
	if configured <= 0 {
		return 0
	}
	if utf8.RuneCountInString(term) <= 4 && configured > 1 {
		return 1
	}
	return configured
}

// fuzzyCandidates scans the dictionary for words within the edit-distance
// bound of term. Word ids come back in ascending order, which keeps scoring
// and tie-breaking deterministic.
func (s *Service) fuzzyCandidates(term string, bound int) []candidate {
	if bound <= 0 {
		return nil
	}
	termRunes := []rune(term)
	var candidates []candidate
	for id := 0; id < s.reader.WordCount(); id++ {
		word := s.reader.Word(uint32(id))
		if lengthGap(len(termRunes), utf8.RuneCountInString(word)) > bound {
			continue
		}
		distance := boundedLevenshtein(termRunes, []rune(word), bound)
		if distance > 0 && distance <= bound {
			candidates = append(candidates, candidate{
				wordID:   uint32(id),
				kind:     matchFuzzy,
				distance: distance,
			})
		}
	}
	return candidates
}

func lengthGap(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// boundedLevenshtein computes the edit distance between two rune slices,
// giving up early once every path exceeds bound. Returns bound+1 when the
// true distance is larger than bound.
func boundedLevenshtein(a, b []rune, bound int) int {
	if len(a) == 0 {
		return min(len(b), bound+1)
	}
	if len(b) == 0 {
		return min(len(a), bound+1)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > bound {
			return bound + 1
		}
		prev, curr = curr, prev
	}

	if prev[len(b)] > bound {
		return bound + 1
	}
	return prev[len(b)]
}
