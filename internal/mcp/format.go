package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amankb/internal/search"
)

// FormatSearchResponse renders a response as markdown for the tool's text
// content.
func FormatSearchResponse(resp *search.Response) string {
	if resp == nil {
		return ""
	}

	var sb strings.Builder
	if len(resp.Results) == 0 {
		fmt.Fprintf(&sb, "No results found for \"%s\"", resp.Query)
		if resp.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", resp.Reason)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", resp.Query)
	fmt.Fprintf(&sb, "Found %d result", len(resp.Results))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " · intent: %s (%.2f) · %s\n\n", resp.Intent, resp.Confidence, resp.Strategy)
	if resp.Degraded {
		fmt.Fprintf(&sb, "> Partial results: %s\n\n", resp.Reason)
	}

	for _, r := range resp.Results {
		formatResult(&sb, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, r *search.Result) {
	title := r.Title
	if title == "" {
		title = r.DocumentID
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", r.Rank, title, r.Scores.Final)

	meta := []string{"**Category:** " + string(r.Category)}
	if r.HeadingPath != "" && r.HeadingPath != r.Title {
		meta = append(meta, "**Section:** "+r.HeadingPath)
	}
	if r.SourceURI != "" {
		meta = append(meta, "**Source:** "+r.SourceURI)
	}
	sb.WriteString(strings.Join(meta, " · "))
	sb.WriteString("\n\n")

	sb.WriteString(r.Snippet)
	fmt.Fprintf(sb, "\n\n`chunk_id: %s`\n\n---\n\n", r.ChunkID)
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchOutput converts a response to the structured tool output.
func ToSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Query:      resp.Query,
		Namespace:  resp.Namespace,
		Intent:     string(resp.Intent),
		Confidence: resp.Confidence,
		Strategy:   string(resp.Strategy),
		Degraded:   resp.Degraded,
		Reason:     resp.Reason,
		Results:    make([]SearchResultOutput, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		if r != nil {
			out.Results = append(out.Results, ToSearchResultOutput(r))
		}
	}
	return out
}

// ToSearchResultOutput converts one result.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	return SearchResultOutput{
		Rank:         r.Rank,
		ChunkID:      r.ChunkID,
		DocumentID:   r.DocumentID,
		Title:        r.Title,
		HeadingPath:  r.HeadingPath,
		SourceURI:    r.SourceURI,
		Category:     string(r.Category),
		Snippet:      r.Snippet,
		Score:        r.Scores.Final,
		MatchReason:  generateMatchReason(r),
		MatchedTerms: r.MatchedTerms,
	}
}

// generateMatchReason explains in one line why a result matched.
func generateMatchReason(r *search.Result) string {
	var parts []string

	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, "matched: "+strings.Join(terms, ", "))
	}

	switch {
	case r.LexicalRank > 0 && r.VectorRank > 0:
		parts = append(parts, "found by both keyword and semantic search")
	case r.VectorRank > 0:
		parts = append(parts, "semantic match")
	}

	if r.Boost > 1 {
		parts = append(parts, fmt.Sprintf("%s boosted for this intent", r.Category))
	}
	switch {
	case r.Quality > 1:
		parts = append(parts, "rated helpful")
	case r.Quality > 0 && r.Quality < 1:
		parts = append(parts, "rated down")
	}

	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}
