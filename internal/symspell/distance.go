package symspell

import (
	"strings"
	"unicode"
)

// Distance is the optimal string alignment distance between a and b
// (Levenshtein plus adjacent transposition). It returns -1 above maxDistance.
func Distance(a, b []rune, maxDistance int) int {
	la, lb := len(a), len(b)
	if abs(la-lb) > maxDistance {
		return -1
	}
	if la == 0 || lb == 0 {
		return max(la, lb)
	}

	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}

	if d[la][lb] > maxDistance {
		return -1
	}
	return d[la][lb]
}

type opTag int

const (
	opEqual opTag = iota
	opReplace
	opInsert
	opDelete
)

type opcode struct {
	tag            opTag
	i1, i2, j1, j2 int
}

// align returns grouped edit operations turning a into b
func align(a, b []rune) []opcode {
	la, lb := len(a), len(b)
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
		}
	}

	var steps []opcode
	i, j := la, lb
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1] && d[i][j] == d[i-1][j-1]:
			steps = append(steps, opcode{opEqual, i - 1, i, j - 1, j})
			i, j = i-1, j-1
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			steps = append(steps, opcode{opReplace, i - 1, i, j - 1, j})
			i, j = i-1, j-1
		case i > 0 && d[i][j] == d[i-1][j]+1:
			steps = append(steps, opcode{opDelete, i - 1, i, j, j})
			i--
		default:
			steps = append(steps, opcode{opInsert, i, i, j - 1, j})
			j--
		}
	}

	var ops []opcode
	for k := len(steps) - 1; k >= 0; k-- {
		st := steps[k]
		if n := len(ops); n > 0 && ops[n-1].tag == st.tag && ops[n-1].i2 == st.i1 && ops[n-1].j2 == st.j1 {
			ops[n-1].i2, ops[n-1].j2 = st.i2, st.j2
			continue
		}
		ops = append(ops, st)
	}
	return ops
}

// TransferCasing applies the letter casing of withCasing to withoutCasing,
// a lowercase text that differs from it by a few edits
func TransferCasing(withCasing, withoutCasing string) string {
	if withoutCasing == "" || withCasing == "" {
		return withoutCasing
	}

	w := []rune(withCasing)
	lower := make([]rune, len(w))
	for i, r := range w {
		lower[i] = unicode.ToLower(r)
	}
	wo := []rune(withoutCasing)

	var b strings.Builder
	for _, op := range align(lower, wo) {
		switch op.tag {
		case opEqual:
			b.WriteString(string(w[op.i1:op.i2]))
		case opInsert:
			seg := string(wo[op.j1:op.j2])
			switch {
			case op.i1 == 0 || w[op.i1-1] == ' ':
				if op.i1 < len(w) && unicode.IsUpper(w[op.i1]) {
					b.WriteString(capitalize(seg))
				} else {
					b.WriteString(strings.ToLower(seg))
				}
			case unicode.IsUpper(w[op.i1-1]):
				b.WriteString(strings.ToUpper(seg))
			default:
				b.WriteString(strings.ToLower(seg))
			}
		case opReplace:
			upper := false
			for k := op.j1; k < op.j2; k++ {
				if src := op.i1 + k - op.j1; src < op.i2 {
					upper = unicode.IsUpper(w[src])
				}
				if upper {
					b.WriteRune(unicode.ToUpper(wo[k]))
				} else {
					b.WriteRune(unicode.ToLower(wo[k]))
				}
			}
		}
	}
	return b.String()
}

func capitalize(s string) string {
	r := []rune(strings.ToLower(s))
	if len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}
