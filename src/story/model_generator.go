package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alpkeskin/gotoon"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
	"github.com/Protocol-Lattice/story-memory/src/models"
)

// ModelGenerator asks a language model for every part of the story. The story
// context is sent TOON-encoded to keep prompts compact.
type ModelGenerator struct {
	model models.Model
}

func NewModelGenerator(m models.Model) *ModelGenerator {
	return &ModelGenerator{model: m}
}

type promptContext struct {
	Setting      string      `json:"setting"`
	Theme        string      `json:"theme"`
	Characters   []Character `json:"characters"`
	Interactions []string    `json:"previousInteractions,omitempty"`
	Style        string      `json:"style,omitempty"`
	Genres       []string    `json:"genres,omitempty"`
}

func (g *ModelGenerator) ask(ctx context.Context, task string, pc promptContext) (string, error) {
	encoded, err := gotoon.Encode(pc)
	if err != nil {
		return "", fmt.Errorf("encode story context: %w", err)
	}
	prompt := "Story context:\n" + encoded + "\n\n" + task
	out, err := g.model.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("model returned empty text")
	}
	return out, nil
}

func (g *ModelGenerator) Title(ctx context.Context, sc model.StoryContext, cast []Character) (string, error) {
	title, err := g.ask(ctx, "Write a short title for this story. Reply with the title only.", newPromptContext(sc, cast, Template{}))
	if err != nil {
		return "", err
	}
	return strings.Trim(firstLine(title), `"`), nil
}

func (g *ModelGenerator) Introduction(ctx context.Context, sc model.StoryContext, cast []Character) (string, error) {
	return g.ask(ctx, "Write a one-paragraph introduction that presents every character.", newPromptContext(sc, cast, Template{}))
}

func (g *ModelGenerator) Chapter(ctx context.Context, req ChapterRequest) (Chapter, error) {
	featured := usernames(req.Featured)
	task := fmt.Sprintf(
		"Write chapter %d in a %s style featuring %s. Put the chapter title on the first line, then the chapter text.",
		req.Index+1, req.Template.Style, strings.Join(featured, ", "),
	)
	if req.MaxLength > 0 {
		task += fmt.Sprintf(" Keep the chapter text under %d characters.", req.MaxLength)
	}
	if req.Template.IncludeMentions {
		task += " Mention characters as @username."
	}
	if req.Template.IncludeHashtags {
		task += " End with one or two hashtags."
	}
	out, err := g.ask(ctx, task, newPromptContext(req.Context, req.Cast, req.Template))
	if err != nil {
		return Chapter{}, fmt.Errorf("chapter %d: %w", req.Index+1, err)
	}
	title, body, ok := strings.Cut(out, "\n")
	body = strings.TrimSpace(body)
	if !ok || body == "" {
		title, body = fmt.Sprintf("Chapter %d", req.Index+1), out
	}
	if req.MaxLength > 0 {
		body = truncateText(body, req.MaxLength)
	}
	return Chapter{
		Title:              strings.TrimSpace(strings.TrimLeft(title, "# ")),
		Content:            body,
		FeaturedCharacters: featured,
	}, nil
}

func (g *ModelGenerator) Conclusion(ctx context.Context, sc model.StoryContext, cast []Character, tmpl Template) (string, error) {
	return g.ask(ctx, "Write a short conclusion that ties the story together.", newPromptContext(sc, cast, tmpl))
}

func newPromptContext(sc model.StoryContext, cast []Character, tmpl Template) promptContext {
	return promptContext{
		Setting:      sc.Setting,
		Theme:        sc.Theme,
		Characters:   cast,
		Interactions: sc.PreviousInteractions,
		Style:        string(tmpl.Style),
		Genres:       tmpl.GenreElements,
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

var _ Generator = (*ModelGenerator)(nil)
