package story

import (
	"fmt"
	"strings"
)

// Style sets the voice of generated prose.
type Style string

const (
	StyleEpic      Style = "epic"
	StyleCasual    Style = "casual"
	StyleNoir      Style = "noir"
	StyleCyberpunk Style = "cyberpunk"
	StyleDefiDrama Style = "defi_drama"
)

// ParseStyle accepts a style name case-insensitively.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case StyleEpic, StyleCasual, StyleNoir, StyleCyberpunk, StyleDefiDrama:
		return st, nil
	}
	return "", fmt.Errorf("story: unknown style %q", s)
}

// StructureType orders chapters.
type StructureType string

const (
	Linear    StructureType = "linear"
	Nonlinear StructureType = "nonlinear"
	Episodic  StructureType = "episodic"
)

// Template controls how a story is generated for a format.
type Template struct {
	Format          FormatName    `json:"format"`
	Style           Style         `json:"style"`
	IncludeHashtags bool          `json:"includeHashtags"`
	IncludeMentions bool          `json:"includeMentions"`
	StructureType   StructureType `json:"structureType"`
	GenreElements   []string      `json:"genreElements"`
}

// NewTemplate returns the default template for format: an epic, linear
// adventure with hashtags and mentions.
func NewTemplate(format FormatName) Template {
	return Template{
		Format:          format,
		Style:           StyleEpic,
		IncludeHashtags: true,
		IncludeMentions: true,
		StructureType:   Linear,
		GenreElements:   []string{"adventure", "drama", "mystery"},
	}
}
