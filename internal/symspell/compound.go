package symspell

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+['’]*[\p{L}\p{N}]*`)

// ParseWords lowercases text and splits it into word tokens
func ParseWords(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// unknownWord estimates a term absent from the dictionary: P = 10 / (N * 10^len)
func unknownWord(term string, maxEditDistance int) Suggestion {
	return Suggestion{
		Term:     term,
		Distance: maxEditDistance + 1,
		Count:    int64(10 / math.Pow10(len([]rune(term)))),
	}
}

// LookupCompound corrects a multi-word input, merging wrongly split words and
// splitting wrongly joined ones. It always returns exactly one suggestion: the
// corrected text with tokens joined by single spaces.
func (s *SymSpell) LookupCompound(input string, maxEditDistance int, transferCasing bool) ([]Suggestion, error) {
	if maxEditDistance > s.maxEditDistance {
		return nil, fmt.Errorf("distance %d exceeds dictionary maximum %d", maxEditDistance, s.maxEditDistance)
	}
	if err := Validate(input); err != nil {
		return nil, err
	}

	terms := ParseWords(input)
	parts := make([]Suggestion, 0, len(terms))
	lastCombi := false

	for i, term := range terms {
		suggestions, err := s.Lookup(term, Top, maxEditDistance)
		if err != nil {
			return nil, err
		}

		// merging with the previous term is always tried before splitting
		if i > 0 && !lastCombi {
			combi, err := s.Lookup(terms[i-1]+term, Top, maxEditDistance)
			if err != nil {
				return nil, err
			}
			if len(combi) > 0 {
				best1 := parts[len(parts)-1]
				best2 := unknownWord(term, maxEditDistance)
				if len(suggestions) > 0 {
					best2 = suggestions[0]
				}
				distance1 := best1.Distance + best2.Distance
				merged := combi[0]
				if distance1 >= 0 && (merged.Distance+1 < distance1 ||
					(merged.Distance+1 == distance1 &&
						float64(merged.Count) > float64(best1.Count)/corpusSize*float64(best2.Count))) {
					merged.Distance++
					parts[len(parts)-1] = merged
					lastCombi = true
					continue
				}
			}
		}
		lastCombi = false

		if len(suggestions) > 0 && (suggestions[0].Distance == 0 || len([]rune(term)) == 1) {
			parts = append(parts, suggestions[0])
			continue
		}

		best, err := s.bestSplit(term, suggestions, maxEditDistance)
		if err != nil {
			return nil, err
		}
		parts = append(parts, best)
	}

	words := make([]string, len(parts))
	count := corpusSize
	for i, p := range parts {
		words[i] = p.Term
		count *= float64(p.Count) / corpusSize
	}
	joined := strings.Join(words, " ")
	if transferCasing {
		joined = TransferCasing(input, joined)
	}

	return []Suggestion{{
		Term:     joined,
		Distance: Distance([]rune(input), []rune(joined), math.MaxInt32),
		Count:    int64(count),
	}}, nil
}

// bestSplit picks the most probable two-word split of term, falling back to
// the single-term suggestion or an unknown-word estimate
func (s *SymSpell) bestSplit(term string, suggestions []Suggestion, maxEditDistance int) (Suggestion, error) {
	runes := []rune(term)
	if len(runes) <= 1 {
		return unknownWord(term, maxEditDistance), nil
	}

	var best *Suggestion
	if len(suggestions) > 0 {
		first := suggestions[0]
		best = &first
	}

	for j := 1; j < len(runes); j++ {
		part1, part2 := string(runes[:j]), string(runes[j:])

		s1, err := s.Lookup(part1, Top, maxEditDistance)
		if err != nil {
			return Suggestion{}, err
		}
		if len(s1) == 0 {
			continue
		}
		s2, err := s.Lookup(part2, Top, maxEditDistance)
		if err != nil {
			return Suggestion{}, err
		}
		if len(s2) == 0 {
			continue
		}

		split := s1[0].Term + " " + s2[0].Term
		distance := Distance(runes, []rune(split), maxEditDistance)
		if distance < 0 {
			distance = maxEditDistance + 1
		}

		if best != nil {
			if distance > best.Distance {
				continue
			}
			if distance < best.Distance {
				best = nil
			}
		}

		var count int64
		if bigram, ok := s.bigrams[split]; ok {
			count = bigram
			joined := s1[0].Term + s2[0].Term
			if len(suggestions) > 0 {
				single := suggestions[0]
				switch {
				case joined == term:
					count = max(count, single.Count+2)
				case s1[0].Term == single.Term || s2[0].Term == single.Term:
					count = max(count, single.Count+1)
				}
			} else if joined == term {
				count = max(count, max(s1[0].Count, s2[0].Count)+2)
			}
		} else {
			naive := int64(float64(s1[0].Count) / corpusSize * float64(s2[0].Count))
			count = min(s.bigramCountMin, naive)
		}

		candidate := Suggestion{Term: split, Distance: distance, Count: count}
		if best == nil || candidate.Count > best.Count {
			best = &candidate
		}
	}

	if best == nil {
		return unknownWord(term, maxEditDistance), nil
	}
	return *best, nil
}
