// Package social turns raw user interactions into character profiles and
// assembles the context a story is generated from.
package social

import (
	"strings"
	"unicode"
)

// Extractor derives profile attributes from interaction content. Implementations
// are best effort and must never fail.
type Extractor interface {
	// Traits returns the updated trait list. prior is kept in order.
	Traits(content string, prior []string) []string
	// Interests returns the updated interest set, first-seen order.
	Interests(content string, prior []string) []string
	// Style labels the writing style of content.
	Style(content string) string
	// Sentiment scores content in [-1, 1]. ok is false when nothing could be inferred.
	Sentiment(content string) (score float64, ok bool)
}

// PassthroughExtractor keeps prior values and labels every message casual.
type PassthroughExtractor struct{}

func (PassthroughExtractor) Traits(_ string, prior []string) []string {
	return append([]string(nil), prior...)
}

func (PassthroughExtractor) Interests(_ string, prior []string) []string {
	return append([]string(nil), prior...)
}

func (PassthroughExtractor) Style(string) string { return "casual" }

func (PassthroughExtractor) Sentiment(string) (float64, bool) { return 0, false }

// KeywordExtractor matches lower-cased tokens against small lexicons.
type KeywordExtractor struct {
	TraitWords    map[string]string
	InterestWords map[string]string
	Positive      map[string]bool
	Negative      map[string]bool
}

// NewKeywordExtractor returns an extractor with the built-in lexicons.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{
		TraitWords: map[string]string{
			"lol": "playful", "haha": "playful", "joke": "playful",
			"brave": "bold", "fearless": "bold", "yolo": "bold",
			"think": "thoughtful", "wonder": "thoughtful", "maybe": "thoughtful",
			"thanks": "friendly", "thank": "friendly", "love": "friendly",
			"wrong": "skeptical", "doubt": "skeptical", "scam": "skeptical",
			"build": "builder", "building": "builder", "ship": "builder",
		},
		InterestWords: map[string]string{
			"crypto": "crypto", "bitcoin": "crypto", "eth": "crypto", "defi": "defi",
			"nft": "nfts", "nfts": "nfts", "art": "art", "music": "music",
			"game": "gaming", "games": "gaming", "gaming": "gaming",
			"space": "space", "rocket": "space", "ai": "ai", "robot": "ai",
			"dragon": "fantasy", "magic": "fantasy", "wizard": "fantasy",
			"code": "technology", "tech": "technology",
		},
		Positive: setOf("love", "great", "awesome", "good", "happy", "win", "bullish", "thanks", "amazing"),
		Negative: setOf("hate", "bad", "awful", "sad", "lose", "bearish", "scam", "wrong", "terrible"),
	}
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func (k *KeywordExtractor) Traits(content string, prior []string) []string {
	return mergeLexicon(prior, tokens(content), k.TraitWords)
}

func (k *KeywordExtractor) Interests(content string, prior []string) []string {
	return mergeLexicon(prior, tokens(content), k.InterestWords)
}

func (k *KeywordExtractor) Style(content string) string {
	trimmed := strings.TrimSpace(content)
	words := tokens(trimmed)
	switch {
	case strings.Count(trimmed, "!") >= 2:
		return "enthusiastic"
	case strings.HasSuffix(trimmed, "?"):
		return "inquisitive"
	case len(words) > 0 && averageLen(words) >= 6:
		return "formal"
	case len(words) <= 4:
		return "terse"
	}
	return "casual"
}

func (k *KeywordExtractor) Sentiment(content string) (float64, bool) {
	var pos, neg int
	for _, t := range tokens(content) {
		switch {
		case k.Positive[t]:
			pos++
		case k.Negative[t]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, false
	}
	return float64(pos-neg) / float64(pos+neg), true
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func averageLen(words []string) float64 {
	total := 0
	for _, w := range words {
		total += len([]rune(w))
	}
	return float64(total) / float64(len(words))
}

func mergeLexicon(prior, toks []string, lexicon map[string]string) []string {
	out := append([]string(nil), prior...)
	seen := make(map[string]bool, len(out))
	for _, v := range out {
		seen[v] = true
	}
	for _, t := range toks {
		if label, ok := lexicon[t]; ok && !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

// mergeUnique appends the unseen values of extra to base, first-seen order.
func mergeUnique(base []string, extra ...[]string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]bool, len(out))
	for _, v := range out {
		seen[v] = true
	}
	for _, list := range extra {
		for _, v := range list {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
