package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforceCap_KeepsSmallChunks(t *testing.T) {
	in := []*Chunk{
		{Ordinal: 4, HeadingPath: "A", Text: "  one two  "},
		{Ordinal: 9, Text: "   "},
		{Ordinal: 7, HeadingPath: "B", Text: "three"},
	}

	out := EnforceCap(in, 10)

	require.Len(t, out, 2)
	assert.Equal(t, &Chunk{Ordinal: 0, HeadingPath: "A", Text: "one two", WordCount: 2}, out[0])
	assert.Equal(t, 1, out[1].Ordinal)
	assert.Equal(t, "B", out[1].HeadingPath)
}

func TestEnforceCap_SplitsAtSentences(t *testing.T) {
	// Given: three five-word sentences and a cap of ten words
	text := "One two three four five. Six seven eight nine ten! Eleven twelve thirteen fourteen fifteen?"

	out := EnforceCap([]*Chunk{{HeadingPath: "H", Text: text}}, 10)

	// Then: sentences are packed without cutting one in half
	require.Len(t, out, 2)
	assert.Equal(t, "One two three four five. Six seven eight nine ten!", out[0].Text)
	assert.Equal(t, "Eleven twelve thirteen fourteen fifteen?", out[1].Text)
	assert.Equal(t, []int{0, 1}, []int{out[0].Ordinal, out[1].Ordinal})
	assert.Equal(t, "H", out[1].HeadingPath)
}

func TestEnforceCap_SplitsLongSentenceAtWords(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("w ", 25))

	out := EnforceCap([]*Chunk{{Text: text}}, 10)

	require.Len(t, out, 3)
	assert.Equal(t, []int{10, 10, 5}, []int{out[0].WordCount, out[1].WordCount, out[2].WordCount})
}

func TestEnforceCap_NeverExceedsCap(t *testing.T) {
	text := strings.Repeat("Short one. ", 40) + strings.Repeat("long ", 700) + "tail."

	for _, c := range EnforceCap([]*Chunk{{Text: text}}, DefaultMaxChunkTokens) {
		assert.LessOrEqual(t, c.WordCount, DefaultMaxChunkTokens)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"words", "Install the VPN client", 4},
		{"long word", "internationalization", 5},
		{"ideographs", "数据保护", 4},
		{"mixed word", "USB设备", 1 + 2},
		{"url", "https://example.com/" + strings.Repeat("a", 80), 25},
		{"empty", "   ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEnforceCap_SplitsUnspacedText(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"cjk paragraph", strings.Repeat("数据保护政策规定", 2000)},
		{"long url", "https://intranet.example.com/policies?ref=" + strings.Repeat("x9", 25000)},
		{"base64 blob", "Attachment: " + strings.Repeat("QUJDRA==", 3000) + " end."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EnforceCap([]*Chunk{{HeadingPath: "H", Text: tt.text}}, DefaultMaxChunkTokens)

			require.Greater(t, len(out), 1)
			var rebuilt strings.Builder
			for i, c := range out {
				assert.Equal(t, i, c.Ordinal)
				assert.LessOrEqual(t, EstimateTokens(c.Text), DefaultMaxChunkTokens)
				assert.Equal(t, EstimateTokens(c.Text), c.WordCount)
				rebuilt.WriteString(strings.ReplaceAll(c.Text, " ", ""))
			}
			assert.Equal(t, strings.ReplaceAll(tt.text, " ", ""), rebuilt.String())
		})
	}
}

func TestEnforceCap_CJKWindowsAreFull(t *testing.T) {
	out := EnforceCap([]*Chunk{{Text: strings.Repeat("规", 25)}}, 10)

	require.Len(t, out, 3)
	assert.Equal(t, []int{10, 10, 5}, []int{out[0].WordCount, out[1].WordCount, out[2].WordCount})
}

func TestEnforceCap_PreservesOrder(t *testing.T) {
	out := EnforceCap([]*Chunk{
		{Text: "a b c. d e f."},
		{Text: "g h."},
	}, 3)

	var texts []string
	for _, c := range out {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"a b c.", "d e f.", "g h."}, texts)
}

func TestParseFrontMatter_None(t *testing.T) {
	meta, body, err := ParseFrontMatter("# Title\n")

	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, "# Title\n", body)
}
