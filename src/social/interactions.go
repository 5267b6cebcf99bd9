package social

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/story-memory/src/concurrent"
	"github.com/Protocol-Lattice/story-memory/src/memory/engine"
	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

// Manager ingests interactions: each is stored as an interaction record and then
// folded into the author's profile.
type Manager struct {
	engine   *engine.Engine
	profiles *Profiles
}

func NewManager(e *engine.Engine, p *Profiles) *Manager {
	return &Manager{engine: e, profiles: p}
}

// StoreInteraction stores "<username>: <content>" under
// interaction-<userId>-<timestamp> and updates the profile. It returns the record id.
func (m *Manager) StoreInteraction(ctx context.Context, in model.Interaction) (string, error) {
	if in.UserID == "" {
		return "", errors.New("interaction has no userId")
	}
	if in.Timestamp == 0 {
		in.Timestamp = m.engine.Now().UnixMilli()
	}
	id := engine.InteractionID(in.UserID, in.Time())
	text := in.Username + ": " + in.Content
	meta := model.Metadata{
		Type:      model.TypeInteraction,
		User:      in.Username,
		UserID:    in.UserID,
		Username:  in.Username,
		Platform:  in.Platform,
		Sentiment: formatSentiment(in.Sentiment),
	}
	if err := m.engine.StoreWithID(ctx, id, text, meta); err != nil {
		return "", err
	}
	if err := m.profiles.Update(ctx, in); err != nil {
		return id, err
	}
	return id, nil
}

// StoreInteractions ingests a batch concurrently and returns the first error.
func (m *Manager) StoreInteractions(ctx context.Context, batch []model.Interaction, maxConcurrency int) error {
	return concurrent.ParallelForEach(ctx, batch, func(ctx context.Context, in model.Interaction) error {
		_, err := m.StoreInteraction(ctx, in)
		return err
	}, maxConcurrency)
}
