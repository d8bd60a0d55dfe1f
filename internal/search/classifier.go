package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/Aman-CERP/amankb/internal/config"
)

// Signal weights of the rule classifier.
const (
	KeywordWeight    = 0.5
	DomainTermWeight = 0.5
	QuestionWeight   = 0.2
)

// DefaultClassifierCacheSize bounds the classification cache.
const DefaultClassifierCacheSize = 1000

type intentRule struct {
	intent   Intent
	keywords []string
	terms    []string
	patterns []*regexp.Regexp
}

// Signals records which rule signals fired for one intent.
type Signals struct {
	Keyword    bool `json:"keyword"`
	DomainTerm bool `json:"domain_term"`
	Question   bool `json:"question"`
}

// Score sums the signal weights, capped at 1.0.
func (s Signals) Score() float64 {
	var score float64
	if s.Keyword {
		score += KeywordWeight
	}
	if s.DomainTerm {
		score += DomainTermWeight
	}
	if s.Question {
		score += QuestionWeight
	}
	return min(score, 1.0)
}

// RuleClassifier scores each intent from three binary signals drawn from
// configuration tables: a keyword match, a domain term match and a question
// pattern match. The best-scoring intent wins; ties resolve in Intents order.
type RuleClassifier struct {
	rules []intentRule
	cache *lru.Cache[string, Classification]
}

var _ Classifier = (*RuleClassifier)(nil)

// NewRuleClassifier compiles the rule tables. Intents without a table never
// match; an invalid question pattern is an error.
func NewRuleClassifier(cfg config.ClassifierConfig) (*RuleClassifier, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultClassifierCacheSize
	}
	cache, err := lru.New[string, Classification](size)
	if err != nil {
		return nil, err
	}

	c := &RuleClassifier{cache: cache}
	for _, intent := range Intents {
		table, ok := cfg.Rules[string(intent)]
		if !ok {
			continue
		}
		rule := intentRule{
			intent:   intent,
			keywords: normalizePhrases(table.Keywords),
			terms:    normalizePhrases(table.DomainTerms),
		}
		for _, p := range table.QuestionPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("classifier: invalid %s question pattern %q: %w", intent, p, err)
			}
			rule.patterns = append(rule.patterns, re)
		}
		c.rules = append(c.rules, rule)
	}
	return c, nil
}

// Classify returns the winning intent and its confidence.
func (c *RuleClassifier) Classify(_ context.Context, query string) (Intent, float64) {
	v := c.Explain(query)
	return v.Intent, v.Confidence
}

// Explain is Classify returning the full verdict. Verdicts are cached by
// normalized query.
func (c *RuleClassifier) Explain(query string) Classification {
	text := normalizeForMatch(query)
	if text == "" {
		return Classification{Intent: IntentUnknown}
	}
	if v, ok := c.cache.Get(text); ok {
		return v
	}

	best := Classification{Intent: IntentUnknown}
	for _, rule := range c.rules {
		score := rule.signals(text).Score()
		if score > best.Confidence {
			best = Classification{Intent: rule.intent, Confidence: score}
		}
	}
	c.cache.Add(text, best)
	return best
}

// SignalsFor reports the raw signals of every configured intent.
func (c *RuleClassifier) SignalsFor(query string) map[Intent]Signals {
	text := normalizeForMatch(query)
	out := make(map[Intent]Signals, len(c.rules))
	for _, rule := range c.rules {
		out[rule.intent] = rule.signals(text)
	}
	return out
}

func (r intentRule) signals(text string) Signals {
	padded := " " + text + " "
	var s Signals
	for _, kw := range r.keywords {
		if strings.Contains(padded, " "+kw+" ") {
			s.Keyword = true
			break
		}
	}
	for _, term := range r.terms {
		if strings.Contains(padded, " "+term+" ") {
			s.DomainTerm = true
			break
		}
	}
	for _, re := range r.patterns {
		if re.MatchString(text) {
			s.Question = true
			break
		}
	}
	return s
}

func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := normalizeForMatch(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalizeForMatch lowercases, NFKC-normalizes and turns every rune other
// than a letter, digit or hyphen into a single space.
func normalizeForMatch(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
