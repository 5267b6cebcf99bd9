package model

import (
	"encoding/json"
	"time"
)

// Interaction is a single user event fed into memory and profiles.
type Interaction struct {
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Content   string   `json:"content"`
	Platform  Platform `json:"platform"`
	Timestamp int64    `json:"timestamp"`
	Sentiment *float64 `json:"sentiment,omitempty"`
	Topics    []string `json:"topics,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// Time converts the millisecond timestamp.
func (i Interaction) Time() time.Time {
	return time.UnixMilli(i.Timestamp).UTC()
}

// CharacterProfile is the per-user projection recomputed from interaction history.
type CharacterProfile struct {
	UserID       string        `json:"userId"`
	Username     string        `json:"username"`
	Traits       []string      `json:"traits"`
	Interests    []string      `json:"interests"`
	Style        string        `json:"style"`
	Interactions []Interaction `json:"interactions"`
	LastUpdated  int64         `json:"lastUpdated"`
}

// ProfileID is the record id that holds userID's profile.
func ProfileID(userID string) string {
	return "profile-" + userID
}

// EncodeProfile serializes p for the profile metadata field.
func EncodeProfile(p CharacterProfile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeProfile parses the profile metadata field of record id.
func DecodeProfile(id, payload string) (*CharacterProfile, error) {
	if payload == "" {
		return nil, &CorruptProfileError{ID: id, Err: errEmptyPayload}
	}
	var p CharacterProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, &CorruptProfileError{ID: id, Err: err}
	}
	if p.UserID == "" {
		return nil, &CorruptProfileError{ID: id, Err: errMissingUserID}
	}
	return &p, nil
}

// StoryContext is the assembled input for story generation. It is never persisted on its own.
type StoryContext struct {
	Characters           []string `json:"characters"`
	Theme                string   `json:"theme"`
	Setting              string   `json:"setting"`
	PreviousInteractions []string `json:"previousInteractions"`
}
