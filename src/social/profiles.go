package social

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/story-memory/src/memory/engine"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

// Profiles maintains one character_profile record per user.
type Profiles struct {
	engine    *engine.Engine
	extractor Extractor
	logger    *log.Logger
}

// NewProfiles builds a profile aggregator. A nil extractor means PassthroughExtractor.
func NewProfiles(e *engine.Engine, x Extractor) *Profiles {
	if x == nil {
		x = PassthroughExtractor{}
	}
	return &Profiles{
		engine:    e,
		extractor: x,
		logger:    log.New(os.Stderr, "social: ", log.LstdFlags),
	}
}

// WithLogger overrides the default logger.
func (p *Profiles) WithLogger(l *log.Logger) *Profiles {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *Profiles) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Update recomputes the profile of in.UserID from the stored profile plus in, and
// overwrites the profile record. Updates for one user are serialized by the
// engine's per-id lock.
func (p *Profiles) Update(ctx context.Context, in model.Interaction) error {
	if in.UserID == "" {
		return errors.New("interaction has no userId")
	}
	id := model.ProfileID(in.UserID)
	return p.engine.Locked(ctx, id, func(ctx context.Context) error {
		existing, err := p.Get(ctx, in.UserID)
		if err != nil {
			return err
		}
		var prior model.CharacterProfile
		if existing != nil {
			prior = *existing
		}
		if in.Sentiment == nil {
			if score, ok := p.extractor.Sentiment(in.Content); ok {
				in.Sentiment = &score
			}
		}
		profile := model.CharacterProfile{
			UserID:       in.UserID,
			Username:     in.Username,
			Traits:       p.extractor.Traits(in.Content, prior.Traits),
			Interests:    p.extractor.Interests(in.Content, mergeUnique(prior.Interests, in.Interests, in.Topics)),
			Style:        p.extractor.Style(in.Content),
			Interactions: append(append([]model.Interaction(nil), prior.Interactions...), in),
			LastUpdated:  p.engine.Now().UnixMilli(),
		}
		payload, err := model.EncodeProfile(profile)
		if err != nil {
			return fmt.Errorf("encode profile %s: %w", in.UserID, err)
		}
		meta := model.Metadata{
			Type:     model.TypeCharacterProfile,
			UserID:   in.UserID,
			Username: in.Username,
			User:     in.Username,
			Platform: in.Platform,
			Profile:  payload,
		}
		if err := p.engine.StoreWithID(ctx, id, payload, meta); err != nil {
			return err
		}
		p.logf("profile %s updated (%d interactions)", in.UserID, len(profile.Interactions))
		return nil
	})
}

// Get returns the stored profile of userID, or nil when none exists. A payload
// that does not parse yields *model.CorruptProfileError.
func (p *Profiles) Get(ctx context.Context, userID string) (*model.CharacterProfile, error) {
	if userID == "" {
		return nil, errors.New("userId is required")
	}
	matches, err := p.engine.FindByFilter(ctx, model.Where(
		model.Eq(model.FieldType, model.String(string(model.TypeCharacterProfile))),
		model.Eq(model.FieldUserID, model.String(userID)),
	), 1, "")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return model.DecodeProfile(matches[0].ID, matches[0].Metadata.Profile)
}

// FindSimilar ranks profiles against userID's traits and interests. The result
// may contain the source profile itself.
func (p *Profiles) FindSimilar(ctx context.Context, userID string, limit int) ([]model.Match, error) {
	profile, err := p.Get(ctx, userID)
	if err != nil || profile == nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	text := strings.TrimSpace(strings.Join(profile.Traits, " ") + " " + strings.Join(profile.Interests, " "))
	return p.engine.FindByFilter(ctx, model.Where(
		model.Eq(model.FieldType, model.String(string(model.TypeCharacterProfile))),
	), limit, text)
}

func formatSentiment(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
