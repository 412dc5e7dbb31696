package spellcheck

import (
	"strings"
	"unicode/utf8"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
)

// Punctuation delimits clauses. Clauses are corrected independently and the
// delimiters are restored verbatim.
const Punctuation = ",.;:!?—*‘’()"

// SafetyMargin bounds how far a restitched paragraph may grow past its original length
const SafetyMargin = 10000

// IsPunctuation reports whether r delimits clauses
func IsPunctuation(r rune) bool {
	return strings.ContainsRune(Punctuation, r)
}

func decode(s string, i int) (rune, int) {
	return utf8.DecodeRuneInString(s[i:])
}

// Prepare splits text into its non-empty clauses and the byte offset of the
// punctuation that closed each one. A trailing unterminated clause has no
// offset, so len(clauses) is len(offsets) or len(offsets)+1.
func Prepare(text string) (clauses []string, offsets []int) {
	start := 0
	for i := 0; i < len(text); {
		r, size := decode(text, i)
		if IsPunctuation(r) {
			if i > start {
				clauses = append(clauses, text[start:i])
				offsets = append(offsets, i)
			}
			start = i + size
		}
		i += size
	}
	if start < len(text) {
		clauses = append(clauses, text[start:])
	}
	return clauses, offsets
}

// InsertSpace restores the leading and trailing space of span on corrected
// when the corrector dropped them
func InsertSpace(corrected, span string) string {
	lead := strings.HasPrefix(span, " ") && !strings.HasPrefix(corrected, " ")
	trail := strings.HasSuffix(span, " ") && !strings.HasSuffix(corrected, " ")
	switch {
	case lead && trail:
		return " " + corrected + " "
	case lead:
		return " " + corrected
	case trail:
		return corrected + " "
	}
	return corrected
}

// Restitch rebuilds original with each clause span replaced by its corrected
// counterpart, in one forward pass. Only the span at each clause's own
// position is replaced, so repeated substrings elsewhere are untouched.
//
// Offsets that do not describe original, or output growing beyond
// SafetyMargin, return original unchanged with an INDEX_CORRUPTION error.
func Restitch(clauses []string, offsets []int, original string) (string, error) {
	if n := len(clauses) - len(offsets); n != 0 && n != 1 {
		return original, taraerrors.NewIndexCorruptionError(len(clauses), len(offsets))
	}

	limit := len(original) + SafetyMargin
	var b strings.Builder
	b.Grow(len(original))
	pos := 0

	for j, clause := range clauses {
		start := pos
		for start < len(original) {
			r, size := decode(original, start)
			if !IsPunctuation(r) {
				break
			}
			start += size
		}

		end := len(original)
		if j < len(offsets) {
			end = offsets[j]
		}
		if end <= start || end > len(original) {
			return original, taraerrors.NewIndexCorruptionError(end, len(original))
		}
		if j < len(offsets) {
			if r, _ := decode(original, end); !IsPunctuation(r) {
				return original, taraerrors.NewIndexCorruptionError(end, len(original))
			}
		}

		span := original[start:end]
		if strings.ContainsAny(span, Punctuation) {
			return original, taraerrors.NewIndexCorruptionError(end, len(original))
		}

		b.WriteString(original[pos:start])
		b.WriteString(InsertSpace(clause, span))
		pos = end

		if b.Len() > limit {
			return original, taraerrors.NewIndexCorruptionError(b.Len(), limit)
		}
	}

	b.WriteString(original[pos:])
	return b.String(), nil
}
