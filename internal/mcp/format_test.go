package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/store"
)

func usbResult() *search.Result {
	return &search.Result{
		ChunkID:      "c-usb-0",
		DocumentID:   "d-usb",
		Namespace:    "it-support",
		SourceURI:    "kb://usb",
		Title:        "Flash Drive and USB Storage",
		HeadingPath:  "Flash Drive and USB Storage > Exceptions",
		Category:     store.CategoryPolicy,
		Snippet:      "USB flash drives are not allowed on company laptops.",
		LexicalRank:  1,
		VectorRank:   2,
		Boost:        1.8,
		Quality:      1,
		MatchedTerms: []string{"usb", "flash", "drive"},
		Scores:       search.Scores{Lexical: 4.2, Vector: 0.81, Fused: 1, Final: 1},
		Rank:         1,
	}
}

func policyResponse(results ...*search.Result) *search.Response {
	return &search.Response{
		Query:      "can I use a USB drive",
		Namespace:  "it-support",
		Intent:     search.IntentPolicy,
		Confidence: 0.72,
		Strategy:   search.StrategyHybrid,
		Results:    results,
	}
}

func TestFormatSearchResponse(t *testing.T) {
	// Given: a policy response with one boosted result
	resp := policyResponse(usbResult())

	// When: formatting it
	md := FormatSearchResponse(resp)

	// Then: the markdown names the result, its section and its chunk ID
	assert.Contains(t, md, `## Search Results for "can I use a USB drive"`)
	assert.Contains(t, md, "Found 1 result ·")
	assert.Contains(t, md, "intent: policy (0.72)")
	assert.Contains(t, md, "### 1. Flash Drive and USB Storage (score: 1.00)")
	assert.Contains(t, md, "**Category:** policy")
	assert.Contains(t, md, "**Section:** Flash Drive and USB Storage > Exceptions")
	assert.Contains(t, md, "**Source:** kb://usb")
	assert.Contains(t, md, "`chunk_id: c-usb-0`")
	assert.NotContains(t, md, "Partial results")
}

func TestFormatSearchResponse_Plural(t *testing.T) {
	second := usbResult()
	second.ChunkID, second.Rank, second.Title = "c-vpn-0", 2, "VPN"

	md := FormatSearchResponse(policyResponse(usbResult(), second))

	assert.Contains(t, md, "Found 2 results")
	assert.Less(t, strings.Index(md, "### 1."), strings.Index(md, "### 2."))
}

func TestFormatSearchResponse_Empty(t *testing.T) {
	resp := policyResponse()
	resp.Reason = search.ReasonNotIndexed

	md := FormatSearchResponse(resp)

	assert.Equal(t, `No results found for "can I use a USB drive" (not yet indexed)`, md)
	assert.Empty(t, FormatSearchResponse(nil))
}

func TestFormatSearchResponse_Degraded(t *testing.T) {
	resp := policyResponse(usbResult())
	resp.Degraded = true
	resp.Reason = search.ReasonVectorUnavailable

	md := FormatSearchResponse(resp)

	assert.Contains(t, md, "> Partial results: "+search.ReasonVectorUnavailable)
}

func TestFormatResult_FallsBackToDocumentID(t *testing.T) {
	r := usbResult()
	r.Title, r.HeadingPath, r.SourceURI = "", "", ""

	md := FormatSearchResponse(policyResponse(r))

	assert.Contains(t, md, "### 1. d-usb")
	assert.NotContains(t, md, "**Section:**")
	assert.NotContains(t, md, "**Source:**")
}

func TestToSearchOutput(t *testing.T) {
	out := ToSearchOutput(policyResponse(usbResult(), nil))

	assert.Equal(t, "policy", out.Intent)
	assert.Equal(t, "hybrid", out.Strategy)
	require.Len(t, out.Results, 1)
	r := out.Results[0]
	assert.Equal(t, "c-usb-0", r.ChunkID)
	assert.Equal(t, "policy", r.Category)
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, "matched: usb, flash, drive; found by both keyword and semantic search; policy boosted for this intent", r.MatchReason)
}

func TestGenerateMatchReason(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *search.Result)
		want   string
	}{
		{"nothing notable", func(r *search.Result) {
			r.MatchedTerms, r.VectorRank, r.Boost = nil, 0, 1
		}, "matched content"},
		{"semantic only", func(r *search.Result) {
			r.MatchedTerms, r.LexicalRank, r.Boost = nil, 0, 1
		}, "semantic match"},
		{"rated down", func(r *search.Result) {
			r.MatchedTerms, r.VectorRank, r.Boost, r.Quality = nil, 0, 1, 0.7
		}, "rated down"},
		{"rated helpful", func(r *search.Result) {
			r.MatchedTerms, r.VectorRank, r.Boost, r.Quality = nil, 0, 1, 1.3
		}, "rated helpful"},
		{"term list capped", func(r *search.Result) {
			r.MatchedTerms = []string{"a", "b", "c", "d", "e", "f"}
			r.VectorRank, r.Boost = 0, 1
		}, "matched: a, b, c, d, e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := usbResult()
			tt.modify(r)
			assert.Equal(t, tt.want, generateMatchReason(r))
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 10, clampLimit(-3, 10, 1, 50))
	assert.Equal(t, 7, clampLimit(7, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(500, 10, 1, 50))
}
