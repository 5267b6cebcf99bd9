package model

import (
	"strconv"
	"strings"
	"time"
)

// RecordType tags every record kept in the vector store.
type RecordType string

const (
	TypeMemory           RecordType = "memory"
	TypeInteraction      RecordType = "interaction"
	TypeCharacterProfile RecordType = "character_profile"
	TypeStoryContext     RecordType = "story_context"
	TypeLongformStory    RecordType = "longform_story"
)

// Platform identifies where an interaction happened.
type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformArena   Platform = "arena"
	PlatformDiscord Platform = "discord"
)

// ParsePlatform accepts the platform names case-insensitively.
func ParsePlatform(s string) (Platform, bool) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformTwitter, PlatformArena, PlatformDiscord:
		return p, true
	}
	return "", false
}

// Metadata field names as they appear in the store and in filters.
const (
	FieldType             = "type"
	FieldUser             = "user"
	FieldUserID           = "userId"
	FieldUsername         = "username"
	FieldContent          = "content"
	FieldTimestamp        = "timestamp"
	FieldInteractionCount = "interactionCount"
	FieldLastInteraction  = "lastInteraction"
	FieldLastReferenced   = "lastReferenced"
	FieldUsedInStories    = "usedInStories"
	FieldPlatform         = "platform"
	FieldInteractionType  = "interactionType"
	FieldSentiment        = "sentiment"
	FieldCharacterRole    = "characterRole"
	FieldProfile          = "profile"
	FieldCharacters       = "characters"
	FieldParticipants     = "participants"
	FieldTheme            = "theme"
	FieldFormat           = "format"
	FieldText             = "text"
)

// Metadata is the payload stored next to each vector.
type Metadata struct {
	Type             RecordType `json:"type,omitempty" bson:"type,omitempty"`
	User             string     `json:"user,omitempty" bson:"user,omitempty"`
	UserID           string     `json:"userId,omitempty" bson:"userId,omitempty"`
	Username         string     `json:"username,omitempty" bson:"username,omitempty"`
	Content          string     `json:"content,omitempty" bson:"content,omitempty"`
	Timestamp        string     `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	InteractionCount int        `json:"interactionCount" bson:"interactionCount"`
	LastInteraction  string     `json:"lastInteraction,omitempty" bson:"lastInteraction,omitempty"`
	LastReferenced   string     `json:"lastReferenced,omitempty" bson:"lastReferenced,omitempty"`
	UsedInStories    []string   `json:"usedInStories,omitempty" bson:"usedInStories,omitempty"`
	Platform         Platform   `json:"platform,omitempty" bson:"platform,omitempty"`
	InteractionType  string     `json:"interactionType,omitempty" bson:"interactionType,omitempty"`
	Sentiment        string     `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
	CharacterRole    string     `json:"characterRole,omitempty" bson:"characterRole,omitempty"`
	Profile          string     `json:"profile,omitempty" bson:"profile,omitempty"`
	Characters       []string   `json:"characters,omitempty" bson:"characters,omitempty"`
	Participants     []string   `json:"participants,omitempty" bson:"participants,omitempty"`
	Theme            string     `json:"theme,omitempty" bson:"theme,omitempty"`
	Format           string     `json:"format,omitempty" bson:"format,omitempty"`
	Text             string     `json:"text,omitempty" bson:"text,omitempty"`
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (m Metadata) Clone() Metadata {
	m.UsedInStories = cloneStrings(m.UsedInStories)
	m.Characters = cloneStrings(m.Characters)
	m.Participants = cloneStrings(m.Participants)
	return m
}

// HasStory reports whether storyID is already referenced.
func (m Metadata) HasStory(storyID string) bool {
	for _, id := range m.UsedInStories {
		if id == storyID {
			return true
		}
	}
	return false
}

// Time parses the timestamp field; the zero time is returned when unset or malformed.
func (m Metadata) Time() time.Time {
	return ParseTimestamp(m.Timestamp)
}

// Values exposes a field to filter evaluation. ok is false when the field is absent.
func (m Metadata) Values(field string) (vals []Value, ok bool) {
	str := func(s string) ([]Value, bool) {
		if s == "" {
			return nil, false
		}
		return []Value{String(s)}, true
	}
	list := func(ss []string) ([]Value, bool) {
		if len(ss) == 0 {
			return nil, false
		}
		return Strings(ss...), true
	}
	switch field {
	case FieldType:
		return str(string(m.Type))
	case FieldUser:
		return str(m.User)
	case FieldUserID:
		return str(m.UserID)
	case FieldUsername:
		return str(m.Username)
	case FieldContent:
		return str(m.Content)
	case FieldTimestamp:
		return str(m.Timestamp)
	case FieldInteractionCount:
		return []Value{Number(float64(m.InteractionCount))}, true
	case FieldLastInteraction:
		return str(m.LastInteraction)
	case FieldLastReferenced:
		return str(m.LastReferenced)
	case FieldUsedInStories:
		return list(m.UsedInStories)
	case FieldPlatform:
		return str(string(m.Platform))
	case FieldInteractionType:
		return str(m.InteractionType)
	case FieldSentiment:
		return str(m.Sentiment)
	case FieldCharacterRole:
		return str(m.CharacterRole)
	case FieldProfile:
		return str(m.Profile)
	case FieldCharacters:
		return list(m.Characters)
	case FieldParticipants:
		return list(m.Participants)
	case FieldTheme:
		return str(m.Theme)
	case FieldFormat:
		return str(m.Format)
	case FieldText:
		return str(m.Text)
	}
	return nil, false
}

// IsListField reports whether field holds a list of strings.
func IsListField(field string) bool {
	switch field {
	case FieldUsedInStories, FieldCharacters, FieldParticipants:
		return true
	}
	return false
}

// IsNumericField reports whether field holds a number.
func IsNumericField(field string) bool {
	return field == FieldInteractionCount
}

// FormatTimestamp renders t the way every timestamp field is stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp accepts RFC3339 strings and unix millisecond strings.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
