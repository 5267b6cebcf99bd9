package social

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/Protocol-Lattice/story-memory/src/concurrent"
	"github.com/Protocol-Lattice/story-memory/src/memory/engine"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

const (
	defaultTheme            = "adventure"
	defaultSetting          = "modern city"
	defaultInteractionLimit = 10
	defaultFetchConcurrency = 8
)

// SettingFunc picks a setting for a set of profiles. It must be deterministic.
type SettingFunc func(profiles []model.CharacterProfile) string

// DefaultSetting always answers "modern city".
func DefaultSetting([]model.CharacterProfile) string { return defaultSetting }

var interestSettings = []struct {
	interest string
	setting  string
}{
	{"space", "orbital station"},
	{"fantasy", "ancient kingdom"},
	{"crypto", "neon-lit trading floor"},
	{"defi", "neon-lit trading floor"},
	{"gaming", "virtual arena"},
	{"ai", "research lab"},
	{"art", "gallery district"},
	{"music", "underground club"},
}

// SettingByInterests maps the first known interest, in profile order, to a
// setting and falls back to DefaultSetting.
func SettingByInterests(profiles []model.CharacterProfile) string {
	for _, p := range profiles {
		for _, interest := range p.Interests {
			for _, s := range interestSettings {
				if strings.EqualFold(interest, s.interest) {
					return s.setting
				}
			}
		}
	}
	return defaultSetting
}

// Assembler builds a StoryContext from character ids.
type Assembler struct {
	profiles         *Profiles
	engine           *engine.Engine
	setting          SettingFunc
	interactionLimit int
	maxConcurrency   int
	logger           *log.Logger
}

func NewAssembler(e *engine.Engine, p *Profiles) *Assembler {
	return &Assembler{
		profiles:         p,
		engine:           e,
		setting:          DefaultSetting,
		interactionLimit: defaultInteractionLimit,
		maxConcurrency:   defaultFetchConcurrency,
		logger:           log.New(os.Stderr, "social: ", log.LstdFlags),
	}
}

// WithSetting replaces the setting strategy.
func (a *Assembler) WithSetting(fn SettingFunc) *Assembler {
	if fn != nil {
		a.setting = fn
	}
	return a
}

// WithLogger overrides the default logger.
func (a *Assembler) WithLogger(l *log.Logger) *Assembler {
	if l != nil {
		a.logger = l
	}
	return a
}

func (a *Assembler) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

// Build fetches the profiles of ids concurrently and derives theme, setting and
// recent interactions. Characters keeps only the ids whose profile was found,
// in request order. Missing or unreadable profiles and a failed interaction
// query degrade the context instead of failing it. The only error is a context
// that is already done.
func (a *Assembler) Build(ctx context.Context, ids []string) (model.StoryContext, error) {
	if err := ctx.Err(); err != nil {
		return model.StoryContext{}, err
	}
	out := model.StoryContext{
		Characters:           []string{},
		PreviousInteractions: []string{},
	}

	settled := concurrent.ParallelMapSettled(ctx, ids, a.profiles.Get, a.maxConcurrency)
	profiles := make([]model.CharacterProfile, 0, len(settled))
	for i, r := range settled {
		switch {
		case r.Err != nil:
			a.logf("context: profile %s unavailable: %v", ids[i], r.Err)
		case r.Value != nil:
			profiles = append(profiles, *r.Value)
			out.Characters = append(out.Characters, ids[i])
		}
	}

	out.Theme = selectTheme(profiles)
	out.Setting = a.setting(profiles)

	if len(ids) == 0 {
		return out, nil
	}
	userIDs := make([]model.Value, len(ids))
	for i, id := range ids {
		userIDs[i] = model.String(id)
	}
	matches, err := a.engine.FindByFilter(ctx, model.Where(
		model.Eq(model.FieldType, model.String(string(model.TypeInteraction))),
		model.In(model.FieldUserID, userIDs...),
	), a.interactionLimit, "")
	if err != nil {
		a.logf("context: interactions unavailable: %v", err)
		return out, nil
	}
	out.PreviousInteractions = model.Contents(matches)
	return out, nil
}

// selectTheme returns the first interest of the first-seen union, or "adventure".
func selectTheme(profiles []model.CharacterProfile) string {
	var union []string
	for _, p := range profiles {
		union = mergeUnique(union, p.Interests)
	}
	if len(union) == 0 {
		return defaultTheme
	}
	return union[0]
}
