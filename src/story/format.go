package story

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownFormat is returned when a format name is not registered.
var ErrUnknownFormat = errors.New("story: unknown format")

// FormatName keys the format registry.
type FormatName string

const (
	ArenaLong   FormatName = "ARENA_LONG"
	TweetSeries FormatName = "TWEET_SERIES"
	DiscordEpic FormatName = "DISCORD_EPIC"
)

// Format describes how much text a platform takes in total and per post.
type Format struct {
	Name          FormatName `json:"name"`
	Type          string     `json:"type"`
	MaxLength     int        `json:"maxLength"`
	ChapterLength int        `json:"chapterLength"`
	NumChapters   int        `json:"numChapters"`
}

// Presets returns the built-in platform formats.
func Presets() []Format {
	return []Format{
		{Name: ArenaLong, Type: "arena_thread", MaxLength: 50000, ChapterLength: 5000, NumChapters: 5},
		{Name: TweetSeries, Type: "tweet_thread", MaxLength: 8000, ChapterLength: 280, NumChapters: 20},
		{Name: DiscordEpic, Type: "discord_story", MaxLength: 20000, ChapterLength: 2000, NumChapters: 10},
	}
}

// Registry holds formats by name. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	formats map[FormatName]Format
}

// NewRegistry returns a registry preloaded with Presets.
func NewRegistry() *Registry {
	r := &Registry{formats: make(map[FormatName]Format)}
	for _, f := range Presets() {
		r.formats[f.Name] = f
	}
	return r
}

// Register adds or replaces a format.
func (r *Registry) Register(f Format) error {
	f.Name = normalizeName(f.Name)
	if f.Name == "" {
		return errors.New("story: format name is required")
	}
	if f.MaxLength < 1 || f.ChapterLength < 1 {
		return fmt.Errorf("story: format %s: %w", f.Name, ErrInvalidLength)
	}
	r.mu.Lock()
	r.formats[f.Name] = f
	r.mu.Unlock()
	return nil
}

// Lookup finds a format by name, ignoring case.
func (r *Registry) Lookup(name FormatName) (Format, error) {
	r.mu.RLock()
	f, ok := r.formats[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return Format{}, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return f, nil
}

// Names lists registered format names in sorted order.
func (r *Registry) Names() []FormatName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]FormatName, 0, len(r.formats))
	for n := range r.formats {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func normalizeName(name FormatName) FormatName {
	return FormatName(strings.ToUpper(strings.TrimSpace(string(name))))
}
