// Package symspell implements symmetric-delete spelling correction with
// compound (word split / merge) lookup over a frequency dictionary.
package symspell

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
)

// DefaultPrefixLength bounds the indexed prefix of every dictionary word
const DefaultPrefixLength = 7

// corpusSize is the word count of the corpus the frequency estimates assume
const corpusSize = 1024908267229.0

// Verbosity controls how many suggestions Lookup returns
type Verbosity int

const (
	// Top returns the single best suggestion: lowest distance, then highest count
	Top Verbosity = iota
	// Closest returns every suggestion at the lowest distance found
	Closest
	// All returns every suggestion within the maximum distance
	All
)

// Suggestion is one candidate correction
type Suggestion struct {
	Term     string
	Distance int
	Count    int64
}

// SymSpell is a frequency dictionary indexed by prefix deletes. It is not
// safe for concurrent mutation; lookups on a loaded dictionary are read-only.
type SymSpell struct {
	maxEditDistance int
	prefixLength    int
	maxLength       int

	words   map[string]int64
	deletes map[string][]string

	bigrams        map[string]int64
	bigramCountMin int64
}

// New creates an empty dictionary supporting lookups up to maxEditDistance
func New(maxEditDistance, prefixLength int) (*SymSpell, error) {
	if maxEditDistance < 0 {
		return nil, fmt.Errorf("max edit distance must not be negative, got %d", maxEditDistance)
	}
	if prefixLength < 1 || prefixLength <= maxEditDistance {
		return nil, fmt.Errorf("prefix length must exceed max edit distance, got %d", prefixLength)
	}

	return &SymSpell{
		maxEditDistance: maxEditDistance,
		prefixLength:    prefixLength,
		words:           make(map[string]int64),
		deletes:         make(map[string][]string),
		bigrams:         make(map[string]int64),
		bigramCountMin:  math.MaxInt64,
	}, nil
}

// MaxEditDistance is the largest distance the index supports
func (s *SymSpell) MaxEditDistance() int { return s.maxEditDistance }

// WordCount is the number of distinct unigrams
func (s *SymSpell) WordCount() int { return len(s.words) }

// BigramCount is the number of distinct bigrams
func (s *SymSpell) BigramCount() int { return len(s.bigrams) }

// Count returns the frequency of term, 0 if absent
func (s *SymSpell) Count(term string) int64 { return s.words[strings.ToLower(term)] }

// Add inserts term (lowercased) or adds count to an existing entry. It reports whether term was new.
func (s *SymSpell) Add(term string, count int64) bool {
	if count <= 0 || term == "" {
		return false
	}
	term = strings.ToLower(term)

	if prev, ok := s.words[term]; ok {
		s.words[term] = saturatingAdd(prev, count)
		return false
	}

	s.words[term] = count
	if n := utf8.RuneCountInString(term); n > s.maxLength {
		s.maxLength = n
	}
	for del := range s.editsPrefix(term) {
		s.deletes[del] = append(s.deletes[del], term)
	}
	return true
}

// AddBigram inserts a "word1 word2" pair, summing repeated entries
func (s *SymSpell) AddBigram(pair string, count int64) {
	if count <= 0 || pair == "" {
		return
	}
	pair = strings.ToLower(pair)
	total := saturatingAdd(s.bigrams[pair], count)
	s.bigrams[pair] = total
	if total < s.bigramCountMin {
		s.bigramCountMin = total
	}
}

func saturatingAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func (s *SymSpell) editsPrefix(key string) map[string]struct{} {
	set := make(map[string]struct{})
	r := []rune(key)
	if len(r) <= s.maxEditDistance {
		set[""] = struct{}{}
	}
	if len(r) > s.prefixLength {
		r = r[:s.prefixLength]
	}
	set[string(r)] = struct{}{}
	s.edits(r, 0, set)
	return set
}

func (s *SymSpell) edits(word []rune, distance int, set map[string]struct{}) {
	distance++
	if len(word) <= 1 {
		return
	}
	for i := range word {
		del := string(word[:i]) + string(word[i+1:])
		if _, ok := set[del]; ok {
			continue
		}
		set[del] = struct{}{}
		if distance < s.maxEditDistance {
			s.edits([]rune(del), distance, set)
		}
	}
}

// Lookup finds dictionary terms within maxEditDistance of input. input is matched as given.
func (s *SymSpell) Lookup(input string, verbosity Verbosity, maxEditDistance int) ([]Suggestion, error) {
	if maxEditDistance > s.maxEditDistance {
		return nil, fmt.Errorf("distance %d exceeds dictionary maximum %d", maxEditDistance, s.maxEditDistance)
	}
	if err := Validate(input); err != nil {
		return nil, err
	}

	phrase := []rune(input)
	phraseLen := len(phrase)
	var suggestions []Suggestion

	if phraseLen-maxEditDistance > s.maxLength {
		return nil, nil
	}

	if count, ok := s.words[input]; ok {
		suggestions = append(suggestions, Suggestion{Term: input, Distance: 0, Count: count})
		if verbosity != All {
			return suggestions, nil
		}
	}
	if maxEditDistance == 0 {
		return suggestions, nil
	}

	consideredDeletes := make(map[string]struct{})
	consideredSuggestions := map[string]struct{}{input: {}}
	maxEd2 := maxEditDistance

	phrasePrefixLen := min(phraseLen, s.prefixLength)
	candidates := []string{string(phrase[:phrasePrefixLen])}

	for ptr := 0; ptr < len(candidates); ptr++ {
		candidateKey := candidates[ptr]
		candidate := []rune(candidateKey)
		candidateLen := len(candidate)
		lenDiff := phrasePrefixLen - candidateLen

		if lenDiff > maxEd2 {
			if verbosity == All {
				continue
			}
			break
		}

		for _, term := range s.deletes[candidateKey] {
			if term == input {
				continue
			}
			suggestion := []rune(term)
			suggestionLen := len(suggestion)

			if abs(suggestionLen-phraseLen) > maxEd2 ||
				suggestionLen < candidateLen ||
				(suggestionLen == candidateLen && term != candidateKey) {
				continue
			}
			suggPrefixLen := min(suggestionLen, s.prefixLength)
			if suggPrefixLen > phrasePrefixLen && suggPrefixLen-candidateLen > maxEd2 {
				continue
			}

			var distance int
			switch {
			case candidateLen == 0:
				distance = max(phraseLen, suggestionLen)
				if distance > maxEd2 || !addOnce(consideredSuggestions, term) {
					continue
				}
			case suggestionLen == 1:
				distance = phraseLen
				if indexRune(phrase, suggestion[0]) >= 0 {
					distance = phraseLen - 1
				}
				if distance > maxEd2 || !addOnce(consideredSuggestions, term) {
					continue
				}
			default:
				if s.prefixLength-maxEditDistance == candidateLen && s.tailMismatch(phrase, suggestion) {
					continue
				}
				if verbosity != All && !s.deleteInSuggestionPrefix(candidate, suggestion) {
					continue
				}
				if !addOnce(consideredSuggestions, term) {
					continue
				}
				distance = Distance(phrase, suggestion, maxEd2)
				if distance < 0 {
					continue
				}
			}

			if distance > maxEd2 {
				continue
			}

			item := Suggestion{Term: term, Distance: distance, Count: s.words[term]}
			if len(suggestions) > 0 {
				switch verbosity {
				case Closest:
					if distance < maxEd2 {
						suggestions = suggestions[:0]
					}
				case Top:
					if distance < maxEd2 || item.Count > suggestions[0].Count {
						maxEd2 = distance
						suggestions[0] = item
					}
					continue
				}
			}
			if verbosity != All {
				maxEd2 = distance
			}
			suggestions = append(suggestions, item)
		}

		if lenDiff < maxEditDistance && candidateLen <= s.prefixLength {
			if verbosity != All && lenDiff >= maxEd2 {
				continue
			}
			for i := 0; i < candidateLen; i++ {
				del := string(candidate[:i]) + string(candidate[i+1:])
				if addOnce(consideredDeletes, del) {
					candidates = append(candidates, del)
				}
			}
		}
	}

	if len(suggestions) > 1 {
		sort.SliceStable(suggestions, func(i, j int) bool {
			if suggestions[i].Distance != suggestions[j].Distance {
				return suggestions[i].Distance < suggestions[j].Distance
			}
			return suggestions[i].Count > suggestions[j].Count
		})
	}
	return suggestions, nil
}

// tailMismatch rejects suggestions whose unindexed suffix cannot be within reach of the phrase's
func (s *SymSpell) tailMismatch(phrase, suggestion []rune) bool {
	pl, sl := len(phrase), len(suggestion)
	minLen := min(pl, sl) - s.prefixLength
	if minLen > 1 && string(phrase[pl+1-minLen:]) != string(suggestion[sl+1-minLen:]) {
		return true
	}
	return minLen > 0 &&
		phrase[pl-minLen] != suggestion[sl-minLen] &&
		(phrase[pl-minLen-1] != suggestion[sl-minLen] || phrase[pl-minLen] != suggestion[sl-minLen-1])
}

// deleteInSuggestionPrefix checks that every rune of del appears in order in suggestion's prefix
func (s *SymSpell) deleteInSuggestionPrefix(del, suggestion []rune) bool {
	if len(del) == 0 {
		return true
	}
	limit := min(len(suggestion), s.prefixLength)
	j := 0
	for _, c := range del {
		for j < limit && c != suggestion[j] {
			j++
		}
		if j == limit {
			return false
		}
	}
	return true
}

// Validate rejects text the dictionary cannot index: invalid UTF-8 or NUL bytes
func Validate(text string) error {
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if (r == utf8.RuneError && size == 1) || r == 0 {
			return taraerrors.NewEncodingError(text[i:i+1], i)
		}
		i += size
	}
	return nil
}

func addOnce(set map[string]struct{}, key string) bool {
	if _, ok := set[key]; ok {
		return false
	}
	set[key] = struct{}{}
	return true
}

func indexRune(rs []rune, r rune) int {
	for i, c := range rs {
		if c == r {
			return i
		}
	}
	return -1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
