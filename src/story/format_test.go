package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPresets(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []FormatName{ArenaLong, DiscordEpic, TweetSeries}, r.Names())

	cases := []struct {
		name    FormatName
		typ     string
		max     int
		chapter int
		count   int
	}{
		{ArenaLong, "arena_thread", 50000, 5000, 5},
		{TweetSeries, "tweet_thread", 8000, 280, 20},
		{DiscordEpic, "discord_story", 20000, 2000, 10},
	}
	for _, tc := range cases {
		f, err := r.Lookup(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.typ, f.Type)
		assert.Equal(t, tc.max, f.MaxLength)
		assert.Equal(t, tc.chapter, f.ChapterLength)
		assert.Equal(t, tc.count, f.NumChapters)
	}
}

func TestRegistryLookupIgnoresCase(t *testing.T) {
	f, err := NewRegistry().Lookup("tweet_series")
	require.NoError(t, err)
	assert.Equal(t, TweetSeries, f.Name)
}

func TestRegistryUnknownFormat(t *testing.T) {
	_, err := NewRegistry().Lookup("MASTODON")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Format{Name: "MASTODON", Type: "toot_thread", MaxLength: 5000, ChapterLength: 500, NumChapters: 10}))
	f, err := r.Lookup("MASTODON")
	require.NoError(t, err)
	assert.Equal(t, "toot_thread", f.Type)

	require.NoError(t, r.Register(Format{Name: TweetSeries, Type: "tweet_thread", MaxLength: 4000, ChapterLength: 280, NumChapters: 10}))
	f, err = r.Lookup(TweetSeries)
	require.NoError(t, err)
	assert.Equal(t, 4000, f.MaxLength)

	require.NoError(t, r.Register(Format{Name: " Bluesky ", Type: "skeet_thread", MaxLength: 3000, ChapterLength: 300, NumChapters: 10}))
	for _, name := range []FormatName{"bluesky", "BLUESKY", "BlueSky"} {
		f, err = r.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, "skeet_thread", f.Type)
	}
	assert.Contains(t, r.Names(), FormatName("BLUESKY"))

	assert.Error(t, r.Register(Format{}))
	assert.Error(t, r.Register(Format{Name: "   ", MaxLength: 10, ChapterLength: 10}))
	assert.ErrorIs(t, r.Register(Format{Name: "BAD", MaxLength: 10}), ErrInvalidLength)
}
