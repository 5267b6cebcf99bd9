package story

import (
	"math/rand"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextSentences(t *testing.T) {
	chunks, err := SplitText("A. B. C.", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.", "B.", "C."}, chunks)
}

func TestSplitTextRejectsInvalidLength(t *testing.T) {
	_, err := SplitText("hello", 0)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestSplitTextShortTextIsOneChunk(t *testing.T) {
	chunks, err := SplitText("  short text  ", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestSplitTextHardCutWithoutBreakpoint(t *testing.T) {
	chunks, err := SplitText("abcdefghij", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
}

func TestSplitTextPrefersLatestBreakpoint(t *testing.T) {
	text := "One! Two? Three.\nFour five six seven."
	chunks, err := SplitText(text, 18)
	require.NoError(t, err)
	assert.Equal(t, []string{"One! Two? Three.", "Four five six seve", "n."}, chunks)
}

func TestSplitTextDoesNotSplitRunes(t *testing.T) {
	chunks, err := SplitText("héllo wörld. ñandú", 13)
	require.NoError(t, err)
	assert.Equal(t, []string{"héllo wörld.", "ñandú"}, chunks)
}

func TestSplitTextSkipsBlankChunks(t *testing.T) {
	chunks, err := SplitText("abc   def", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def"}, chunks)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func randomText(r *rand.Rand) string {
	words := []string{"a", "hero", "walked", "into", "the", "neon", "rain", "ñ", "ß", "longwordwithoutanybreaks"}
	seps := []string{" ", " ", " ", ". ", "! ", "? ", "\n", ".", ""}
	var b strings.Builder
	n := 1 + r.Intn(60)
	for i := 0; i < n; i++ {
		b.WriteString(words[r.Intn(len(words))])
		b.WriteString(seps[r.Intn(len(seps))])
	}
	return b.String()
}

func TestSplitTextRoundTripAndBound(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		text := randomText(r)
		limit := 1 + r.Intn(40)
		chunks, err := SplitText(text, limit)
		require.NoError(t, err)
		for _, c := range chunks {
			require.LessOrEqual(t, runeLen(c), limit, "text %q limit %d chunk %q", text, limit, c)
			require.NotEmpty(t, c)
		}
		require.Equal(t, stripSpace(text), stripSpace(strings.Join(chunks, "")), "text %q limit %d", text, limit)
	}
}

func TestSplitTextIsDeterministic(t *testing.T) {
	text := "It was late. The city hummed!\nNobody slept? Not tonight."
	a, _ := SplitText(text, 15)
	b, _ := SplitText(text, 15)
	assert.Equal(t, a, b)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "", truncateText("anything", 0))
	assert.Equal(t, "fits", truncateText("fits", 10))
	assert.Equal(t, "One.", truncateText("One. Two. Three.", 8))
}
