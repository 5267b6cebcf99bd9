package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/story-memory/src/concurrent"
	"github.com/Protocol-Lattice/story-memory/src/memory/engine"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
	"github.com/Protocol-Lattice/story-memory/src/social"
)

const (
	defaultChapters      = 3
	defaultConcurrency   = 4
	similarStoriesTopK   = 5
	storyIDPrefix        = "story-"
	storyContextIDPrefix = "story-context-"
)

// Publisher generates long-form stories from member profiles, stores them and
// links them back to the memories they used.
type Publisher struct {
	engine         *engine.Engine
	profiles       *social.Profiles
	assembler      *social.Assembler
	generator      Generator
	formats        *Registry
	maxConcurrency int
	logger         *log.Logger
}

func NewPublisher(e *engine.Engine, p *social.Profiles, a *social.Assembler, g Generator) *Publisher {
	if g == nil {
		g = TemplateGenerator{}
	}
	return &Publisher{
		engine:         e,
		profiles:       p,
		assembler:      a,
		generator:      g,
		formats:        NewRegistry(),
		maxConcurrency: defaultConcurrency,
		logger:         log.New(os.Stderr, "story: ", log.LstdFlags),
	}
}

// WithFormats replaces the format registry.
func (p *Publisher) WithFormats(r *Registry) *Publisher {
	if r != nil {
		p.formats = r
	}
	return p
}

// WithConcurrency bounds parallel chapter generation and reference updates.
func (p *Publisher) WithConcurrency(n int) *Publisher {
	if n > 0 {
		p.maxConcurrency = n
	}
	return p
}

func (p *Publisher) WithLogger(l *log.Logger) *Publisher {
	p.logger = l
	return p
}

func (p *Publisher) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Formats exposes the registry used to resolve template formats.
func (p *Publisher) Formats() *Registry { return p.formats }

// Cast loads the profiles of participants as characters. Participants
// without a readable profile are left out.
func (p *Publisher) Cast(ctx context.Context, participants []string) []Character {
	settled := concurrent.ParallelMapSettled(ctx, participants, p.profiles.Get, p.maxConcurrency)
	cast := make([]Character, 0, len(settled))
	for i, r := range settled {
		switch {
		case r.Err != nil:
			p.logf("cast: profile %s unavailable: %v", participants[i], r.Err)
		case r.Value != nil:
			cast = append(cast, CharacterFromProfile(*r.Value))
		}
	}
	return cast
}

// Generate writes a story for participants in the template's format and
// shrinks it with AdjustLength when it does not fit. Nothing is stored.
func (p *Publisher) Generate(ctx context.Context, participants []string, tmpl Template) (Structure, error) {
	format, err := p.formats.Lookup(tmpl.Format)
	if err != nil {
		return Structure{}, err
	}
	if tmpl.Style == "" {
		tmpl.Style = StyleEpic
	}
	sc, err := p.assembler.Build(ctx, participants)
	if err != nil {
		return Structure{}, err
	}
	cast := p.Cast(ctx, participants)

	var s Structure
	if s.Title, err = p.generator.Title(ctx, sc, cast); err != nil {
		return Structure{}, fmt.Errorf("title: %w", err)
	}
	if s.Introduction, err = p.generator.Introduction(ctx, sc, cast); err != nil {
		return Structure{}, fmt.Errorf("introduction: %w", err)
	}

	n := format.NumChapters
	if n <= 0 {
		n = defaultChapters
	}
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	s.Chapters, err = concurrent.ParallelMap(ctx, indexes, func(ctx context.Context, i int) (Chapter, error) {
		return p.generator.Chapter(ctx, ChapterRequest{
			Index:     i,
			Context:   sc,
			Cast:      cast,
			Featured:  FeaturedFor(cast, i),
			Template:  tmpl,
			MaxLength: format.ChapterLength,
		})
	}, p.maxConcurrency)
	if err != nil {
		return Structure{}, err
	}

	if s.Conclusion, err = p.generator.Conclusion(ctx, sc, cast, tmpl); err != nil {
		return Structure{}, fmt.Errorf("conclusion: %w", err)
	}

	if !ValidateLength(s, format) {
		p.logf("story is %d characters, %s allows %d; trimming", s.Length(), format.Name, format.MaxLength)
		s = AdjustLength(s, format)
	}
	return s, nil
}

func newStoryID(prefix string) string {
	return prefix + ulid.MustNew(ulid.Now(), ulid.DefaultEntropy()).String()
}

// Persist stores s as a longform_story record and returns its id.
func (p *Publisher) Persist(ctx context.Context, s Structure, participants []string, f Format) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	id := newStoryID(storyIDPrefix)
	err = p.engine.StoreWithID(ctx, id, string(payload), model.Metadata{
		Type:         model.TypeLongformStory,
		Participants: append([]string{}, participants...),
		Format:       f.Type,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

type contextElements struct {
	Characters           []Character `json:"characters"`
	Setting              string      `json:"setting"`
	Theme                string      `json:"theme"`
	PreviousInteractions []string    `json:"previousInteractions"`
	Format               FormatName  `json:"format"`
	Style                Style       `json:"style"`
}

// PersistContext stores the inputs of a story as a story_context record so
// FindSimilarStories can find it later.
func (p *Publisher) PersistContext(ctx context.Context, sc model.StoryContext, cast []Character, tmpl Template) (string, error) {
	payload, err := json.Marshal(contextElements{
		Characters:           cast,
		Setting:              sc.Setting,
		Theme:                sc.Theme,
		PreviousInteractions: sc.PreviousInteractions,
		Format:               tmpl.Format,
		Style:                tmpl.Style,
	})
	if err != nil {
		return "", err
	}
	id := newStoryID(storyContextIDPrefix)
	err = p.engine.StoreWithID(ctx, id, string(payload), model.Metadata{
		Type:       model.TypeStoryContext,
		Characters: usernames(cast),
		Theme:      sc.Theme,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Publish splits s into posts for f and records storyID on every source
// memory. Reference updates run concurrently; the first failure is returned
// after the rest have finished.
func (p *Publisher) Publish(ctx context.Context, s Structure, f Format, storyID string, sourceIDs []string) ([]string, error) {
	if storyID == "" {
		return nil, errors.New("story id is required")
	}
	parts := SplitForPlatform(s, f)

	var g errgroup.Group
	g.SetLimit(p.maxConcurrency)
	for _, id := range sourceIDs {
		g.Go(func() error {
			if err := p.engine.AttachStoryReference(ctx, id, storyID); err != nil {
				return fmt.Errorf("attach %s to %s: %w", storyID, id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// FindSimilarStories ranks stored story contexts against theme. With
// characters given, only contexts featuring one of them are returned.
func (p *Publisher) FindSimilarStories(ctx context.Context, theme string, characters []string) ([]model.Match, error) {
	filter := model.Where(model.Eq(model.FieldType, model.String(string(model.TypeStoryContext))))
	if len(characters) > 0 {
		filter = filter.And(model.In(model.FieldCharacters, model.Strings(characters...)...))
	}
	return p.engine.FindByFilter(ctx, filter, similarStoriesTopK, theme)
}
