package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches runs of letters and digits in any script.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit. Identifiers in camelCase are split as well so "getUserId" matches
// "user id".
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, part := range SplitCamelCase(word) {
			if t := strings.ToLower(part); t != "" {
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// DefaultStopWords are common English function words dropped from lexical
// queries and documents.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from",
	"if", "in", "into", "is", "it", "its", "of", "on", "or", "so", "such",
	"that", "the", "their", "then", "there", "these", "this", "to", "was",
	"were", "will", "with",
}

var defaultStopWordMap = BuildStopWordMap(DefaultStopWords)

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// IndexTerms is the token stream stored in the lexical index for content.
// Stop words are kept so quoted phrases still match positionally.
func IndexTerms(content string) []string {
	return Tokenize(content)
}

// QueryTerms tokenizes loose query text and drops stop words.
func QueryTerms(q string) []string {
	return FilterStopWords(Tokenize(q), defaultStopWordMap)
}

// TokenSet returns the distinct tokens of text, stop words included. Used for
// Jaccard similarity.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
