package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxQueryRunes bounds the sanitized query length.
const MaxQueryRunes = 1024

// SanitizeQuery strips control characters, applies NFKC normalization and
// collapses whitespace. It never fails: hostile input degrades to a shorter
// (possibly empty) query.
func SanitizeQuery(q string) string {
	q = strings.ToValidUTF8(q, " ")
	q = norm.NFKC.String(q)

	var sb strings.Builder
	sb.Grow(len(q))
	n := 0
	lastSpace := true
	for _, r := range q {
		if n >= MaxQueryRunes {
			break
		}
		switch {
		case unicode.IsSpace(r), unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
				n++
			}
		default:
			sb.WriteRune(r)
			lastSpace = false
			n++
		}
	}
	return strings.TrimSpace(sb.String())
}

// ParsedQuery splits a sanitized query into quoted phrases and loose terms,
// both tokenized the same way as indexed content.
type ParsedQuery struct {
	Phrases [][]string
	Terms   []string
}

// Empty reports whether nothing searchable remains.
func (p ParsedQuery) Empty() bool {
	return len(p.Phrases) == 0 && len(p.Terms) == 0
}

// ParseQuery extracts "quoted phrases" and remaining terms. An unbalanced
// quote is treated as closing at the end of input.
func ParseQuery(q string) ParsedQuery {
	var p ParsedQuery
	seen := make(map[string]struct{})

	addTerms := func(s string) {
		for _, t := range QueryTerms(s) {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				p.Terms = append(p.Terms, t)
			}
		}
	}

	parts := strings.Split(SanitizeQuery(q), `"`)
	for i, part := range parts {
		if i%2 == 0 {
			addTerms(part)
			continue
		}
		phrase := Tokenize(part)
		switch len(phrase) {
		case 0:
		case 1:
			addTerms(part)
		default:
			p.Phrases = append(p.Phrases, phrase)
		}
	}
	return p
}

// FTS5 renders the query as an FTS5 MATCH expression: phrases and terms
// OR-combined, each double-quoted so no token is read as an operator.
func (p ParsedQuery) FTS5() string {
	clauses := make([]string, 0, len(p.Phrases)+len(p.Terms))
	for _, ph := range p.Phrases {
		clauses = append(clauses, `"`+strings.Join(ph, " ")+`"`)
	}
	for _, t := range p.Terms {
		clauses = append(clauses, `"`+t+`"`)
	}
	return strings.Join(clauses, " OR ")
}

// AllTerms returns phrase tokens and loose terms, deduplicated.
func (p ParsedQuery) AllTerms() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, ph := range p.Phrases {
		for _, t := range ph {
			add(t)
		}
	}
	for _, t := range p.Terms {
		add(t)
	}
	return out
}
