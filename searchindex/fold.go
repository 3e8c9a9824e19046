package searchindex

import "strings"

// accentFold maps the common accented Latin-1 lowercase letters to
// their plain ASCII base letter; foldRune lowercases a rune before
// looking it up. The domain here
// is narrow enough (shared filenames) that a small lookup table beats
// pulling in a general Unicode normalization package.
var accentFold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ñ': 'n', 'ç': 'c', 'ý': 'y',
}

func foldRune(r rune) rune {
	r = toLowerRune(r)
	if folded, ok := accentFold[r]; ok {
		return folded
	}
	return r
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	if r >= 'À' && r <= 'Þ' && r != '×' {
		return r + 32
	}
	return r
}

// fold returns s case-folded and accent-stripped.
func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(foldRune(r))
	}
	return b.String()
}

// isWordSep reports whether r separates tokens in an entry name.
func isWordSep(r rune) bool {
	switch r {
	case ' ', '.', '-', '_', '(', ')', '[', ']', ',', '\'', '+':
		return true
	default:
		return false
	}
}

// tokenize splits a folded name into its searchable word tokens.
func tokenize(name string) []string {
	folded := fold(name)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range folded {
		if isWordSep(r) {
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return tokens
}
