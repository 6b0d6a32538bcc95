package utils

import (
	"unicode"

	"github.com/aryann/difflib"
)

func TokenizeWords(s string) []string {
	var out []string
	var cur []rune
	kind := -1 // 0=space,1=word,2=punct
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, string(cur))
		cur = cur[:0]
	}
	for _, r := range s {
		k := 2
		switch {
		case unicode.IsSpace(r):
			k = 0
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '-' || r == '\'':
			k = 1
		}
		if kind == -1 {
			kind = k
		}
		if k != kind {
			flush()
			kind = k
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

type WordDelta struct {
	Op   int
	Text string
}

func DiffWords(a, b string) []WordDelta {
	at := TokenizeWords(a)
	bt := TokenizeWords(b)
	recs := difflib.Diff(at, bt)
	out := make([]WordDelta, 0, len(recs))
	for _, r := range recs {
		switch r.Delta {
		case difflib.Common:
			out = append(out, WordDelta{Op: 0, Text: r.Payload})
		case difflib.LeftOnly:
			out = append(out, WordDelta{Op: -1, Text: r.Payload})
		case difflib.RightOnly:
			out = append(out, WordDelta{Op: +1, Text: r.Payload})
		}
	}
	return out
}

// WordOverlap returns the fraction of words shared between two strings,
// relative to the longer side. Punctuation and whitespace are ignored.
func WordOverlap(a, b string) float64 {
	var common, left, right int
	for _, d := range DiffWords(a, b) {
		if len(d.Text) == 0 {
			continue
		}
		r := []rune(d.Text)[0]
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			continue
		}
		switch d.Op {
		case 0:
			common++
		case -1:
			left++
		case +1:
			right++
		}
	}
	longer := max(common+left, common+right)
	if longer == 0 {
		return 0
	}
	return float64(common) / float64(longer)
}
