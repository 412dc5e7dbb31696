package spellcheck

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
)

// legacyDash is the stray byte OCR output carries where a dash was printed
const legacyDash = 0xEE

// RepairEncoding substitutes the byte sequences known to break dictionary
// lookup: Windows-1252 smart quotes become apostrophes, NUL is dropped and
// the legacy dash byte becomes "--". Any other invalid byte is an error.
func RepairEncoding(clause string) (string, error) {
	var b strings.Builder
	b.Grow(len(clause))

	for i := 0; i < len(clause); {
		r, size := utf8.DecodeRuneInString(clause[i:])
		switch {
		case r == 0:
		case r == utf8.RuneError && size == 1:
			c := clause[i]
			if c == legacyDash {
				b.WriteString("--")
				break
			}
			switch charmap.Windows1252.DecodeByte(c) {
			case '‘', '’':
				b.WriteByte('\'')
			default:
				return clause, taraerrors.NewEncodingError(clause[i:i+1], i)
			}
		case r == '‘' || r == '’':
			b.WriteByte('\'')
		default:
			b.WriteString(clause[i : i+size])
		}
		i += size
	}
	return b.String(), nil
}
