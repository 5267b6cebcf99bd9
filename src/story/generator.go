package story

import (
	"context"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

const defaultRole = "protagonist"

// Character is a profile as it appears in a story.
type Character struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Traits   []string `json:"traits"`
	Style    string   `json:"style"`
	Role     string   `json:"role"`
}

// CharacterFromProfile casts a profile. Every character is a protagonist.
func CharacterFromProfile(p model.CharacterProfile) Character {
	return Character{
		UserID:   p.UserID,
		Username: p.Username,
		Traits:   append([]string(nil), p.Traits...),
		Style:    p.Style,
		Role:     defaultRole,
	}
}

// Describe renders "the <traits> <role>".
func (c Character) Describe() string {
	role := c.Role
	if role == "" {
		role = defaultRole
	}
	if len(c.Traits) == 0 {
		return "the " + role
	}
	return "the " + strings.Join(c.Traits, " and ") + " " + role
}

// ChapterRequest carries everything a Generator needs for one chapter.
type ChapterRequest struct {
	Index     int
	Context   model.StoryContext
	Cast      []Character
	Featured  []Character
	Template  Template
	MaxLength int
}

// Generator writes the parts of a story.
type Generator interface {
	Title(ctx context.Context, sc model.StoryContext, cast []Character) (string, error)
	Introduction(ctx context.Context, sc model.StoryContext, cast []Character) (string, error)
	Chapter(ctx context.Context, req ChapterRequest) (Chapter, error)
	Conclusion(ctx context.Context, sc model.StoryContext, cast []Character, tmpl Template) (string, error)
}

// FeaturedFor picks the characters of chapter index by rotating through cast,
// two at a time.
func FeaturedFor(cast []Character, index int) []Character {
	n := len(cast)
	if n == 0 {
		return nil
	}
	k := min(2, n)
	out := make([]Character, 0, k)
	for i := range k {
		out = append(out, cast[(index+i)%n])
	}
	return out
}

func usernames(cast []Character) []string {
	out := make([]string, 0, len(cast))
	for _, c := range cast {
		out = append(out, c.Username)
	}
	return out
}

// TemplateGenerator writes deterministic prose from fixed phrases per style.
type TemplateGenerator struct{}

func (TemplateGenerator) Title(_ context.Context, sc model.StoryContext, cast []Character) (string, error) {
	if len(cast) == 0 {
		return fmt.Sprintf("An Adventure in %s", sc.Setting), nil
	}
	return fmt.Sprintf("%s's Adventure in %s", cast[0].Username, sc.Setting), nil
}

func (TemplateGenerator) Introduction(_ context.Context, sc model.StoryContext, cast []Character) (string, error) {
	intros := make([]string, 0, len(cast))
	for _, c := range cast {
		intros = append(intros, fmt.Sprintf("@%s, %s", c.Username, c.Describe()))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "In the realm of %s, a new tale unfolds.", sc.Setting)
	if len(intros) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(intros, ". "))
		b.WriteString(".")
	}
	b.WriteString(" Together, they embark on an epic journey...")
	return b.String(), nil
}

type stylePhrases struct {
	chapter []string
	open    string
	turn    string
	close   string
}

var phrases = map[Style]stylePhrases{
	StyleEpic: {
		chapter: []string{"The Call", "The Crossing", "The Trial", "The Reckoning", "The Return"},
		open:    "Banners rose over %s as %s answered a summons older than memory.",
		turn:    "Legends whispered of %s, and every step tested their resolve.",
		close:   "And so, our heroes' journey comes to an end, their names carved into the annals of %s.",
	},
	StyleCasual: {
		chapter: []string{"Just Another Day", "Plot Twist", "Group Chat", "Side Quest", "Wrap Up"},
		open:    "Nobody in %s expected much from today, least of all %s.",
		turn:    "Somehow the conversation drifted to %s, and things got interesting fast.",
		close:   "Anyway, that's how it went down in %s. Same time next week?",
	},
	StyleNoir: {
		chapter: []string{"Rain on Glass", "A Stranger's Offer", "Smoke and Lies", "The Long Night", "Last Call"},
		open:    "Rain slicked the streets of %s when %s walked in with trouble written all over them.",
		turn:    "Everyone wanted a piece of %s, and nobody was telling the truth.",
		close:   "The city of %s kept its secrets. It always does.",
	},
	StyleCyberpunk: {
		chapter: []string{"Boot Sequence", "Ghost in the Feed", "Firewall", "Overclock", "Shutdown"},
		open:    "Neon bled across %s as %s jacked into the grid.",
		turn:    "The data on %s was encrypted three layers deep, and the corps were watching.",
		close:   "The grid of %s flickered and reset, but the signal they left behind would never fade.",
	},
	StyleDefiDrama: {
		chapter: []string{"Genesis Block", "Liquidity Crunch", "The Rug", "Governance Vote", "Mainnet"},
		open:    "Gas was cheap in %s the morning %s spotted the anomaly on-chain.",
		turn:    "Rumors about %s pumped the charts, and every wallet held its breath.",
		close:   "When the dust settled over %s, the ledger remembered everything.",
	},
}

func phrasesFor(s Style) stylePhrases {
	if p, ok := phrases[s]; ok {
		return p
	}
	return phrases[StyleEpic]
}

func (TemplateGenerator) Chapter(_ context.Context, req ChapterRequest) (Chapter, error) {
	p := phrasesFor(req.Template.Style)
	names := make([]string, 0, len(req.Featured))
	for _, c := range req.Featured {
		if req.Template.IncludeMentions {
			names = append(names, "@"+c.Username)
		} else {
			names = append(names, c.Username)
		}
	}
	who := "our heroes"
	if len(names) > 0 {
		who = strings.Join(names, " and ")
	}

	sentences := []string{
		fmt.Sprintf(p.open, req.Context.Setting, who),
		fmt.Sprintf(p.turn, req.Context.Theme),
	}
	if n := len(req.Context.PreviousInteractions); n > 0 {
		echo := strings.TrimSpace(req.Context.PreviousInteractions[req.Index%n])
		if echo != "" {
			sentences = append(sentences, fmt.Sprintf("Someone remembered the words %q.", echo))
		}
	}
	if len(req.Template.GenreElements) > 0 {
		genre := req.Template.GenreElements[req.Index%len(req.Template.GenreElements)]
		sentences = append(sentences, fmt.Sprintf("A thread of %s tied the moment together.", genre))
	}
	content := strings.Join(sentences, " ")
	if req.Template.IncludeHashtags && req.Context.Theme != "" {
		content += " #" + strings.ReplaceAll(req.Context.Theme, " ", "")
	}
	if req.MaxLength > 0 {
		content = truncateText(content, req.MaxLength)
	}

	return Chapter{
		Title:              fmt.Sprintf("Chapter %d: %s", req.Index+1, p.chapter[req.Index%len(p.chapter)]),
		Content:            content,
		FeaturedCharacters: usernames(req.Featured),
	}, nil
}

func (TemplateGenerator) Conclusion(_ context.Context, sc model.StoryContext, _ []Character, tmpl Template) (string, error) {
	return fmt.Sprintf(phrasesFor(tmpl.Style).close, sc.Setting), nil
}

var _ Generator = TemplateGenerator{}
