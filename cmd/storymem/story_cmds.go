package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
	"github.com/Protocol-Lattice/story-memory/src/story"
)

func init() {
	interactionCmd := &cobra.Command{
		Use:   "interaction [content]",
		Short: "Record a user interaction and update their profile",
		RunE:  runInteraction,
	}
	interactionCmd.Flags().String("user-id", "", "User id (required)")
	interactionCmd.Flags().String("username", "", "Display name (required)")
	interactionCmd.Flags().StringP("platform", "p", "twitter", "Platform: twitter, arena, discord")
	interactionCmd.Flags().String("at", "", "Timestamp, RFC3339 or unix milliseconds (default now)")
	interactionCmd.Flags().StringSlice("topics", nil, "Comma-separated topics")
	interactionCmd.MarkFlagRequired("user-id")
	interactionCmd.MarkFlagRequired("username")

	splitCmd := &cobra.Command{
		Use:         "split [text]",
		Short:       "Split text into platform-sized chunks",
		Annotations: map[string]string{offline: "true"},
		RunE:        runSplit,
	}
	splitCmd.Flags().IntP("length", "l", 280, "Maximum chunk length in characters")

	generateCmd := &cobra.Command{
		Use:   "generate <userId...>",
		Short: "Generate a long-form story featuring the given users",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGenerate,
	}
	generateCmd.Flags().String("format", "", "Format name (default from config)")
	generateCmd.Flags().String("style", "", "Style: epic, casual, noir, cyberpunk, defi_drama")
	generateCmd.Flags().Bool("persist", false, "Store the story and its context")
	generateCmd.Flags().StringSlice("sources", nil, "Memory ids to mark as used by the story (implies --persist)")

	storiesCmd := &cobra.Command{
		Use:   "stories <theme>",
		Short: "Find stored story contexts similar to a theme",
		Args:  cobra.ExactArgs(1),
		RunE:  runStories,
	}
	storiesCmd.Flags().StringSlice("characters", nil, "Only contexts featuring one of these usernames")

	rootCmd.AddCommand(
		interactionCmd,
		splitCmd,
		generateCmd,
		storiesCmd,
		&cobra.Command{
			Use:   "profile <userId>",
			Short: "Show a character profile",
			Args:  cobra.ExactArgs(1),
			RunE:  runProfile,
		},
		&cobra.Command{
			Use:   "similar-profiles <userId>",
			Short: "Profiles whose traits and interests resemble a user's",
			Args:  cobra.ExactArgs(1),
			RunE:  runSimilarProfiles,
		},
		&cobra.Command{
			Use:   "context <userId...>",
			Short: "Assemble a story context",
			RunE:  runContext,
		},
		&cobra.Command{
			Use:   "lineage <memoryId|storyId>",
			Short: "Show story links from the Neo4j graph",
			Args:  cobra.ExactArgs(1),
			RunE:  runLineage,
		},
		&cobra.Command{
			Use:         "formats",
			Short:       "List platform formats",
			Annotations: map[string]string{offline: "true"},
			Args:        cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return printJSON(story.Presets())
			},
		},
	)
}

func runInteraction(cmd *cobra.Command, args []string) error {
	content, err := textArg(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required (positional arg or stdin)")
	}
	platform, err := platformFlag(cmd)
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetString("user-id")
	username, _ := cmd.Flags().GetString("username")
	at, _ := cmd.Flags().GetString("at")
	topics, _ := cmd.Flags().GetStringSlice("topics")
	ts, err := parseTimestamp(at)
	if err != nil {
		return err
	}
	id, err := current.manager.StoreInteraction(cmd.Context(), model.Interaction{
		UserID:    userID,
		Username:  username,
		Content:   content,
		Platform:  platform,
		Timestamp: ts,
		Topics:    topics,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"id": id})
}

func runProfile(cmd *cobra.Command, args []string) error {
	p, err := current.profiles.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no profile for %s", args[0])
	}
	return printJSON(p)
}

func runSimilarProfiles(cmd *cobra.Command, args []string) error {
	matches, err := current.profiles.FindSimilar(cmd.Context(), args[0], 5)
	if err != nil {
		return err
	}
	return printMatches(matches)
}

func runContext(cmd *cobra.Command, args []string) error {
	sc, err := current.assembler.Build(cmd.Context(), args)
	if err != nil {
		return err
	}
	return printJSON(sc)
}

func runSplit(cmd *cobra.Command, args []string) error {
	text, err := textArg(args)
	if err != nil {
		return err
	}
	length, _ := cmd.Flags().GetInt("length")
	chunks, err := story.SplitText(text, length)
	if err != nil {
		return err
	}
	return printJSON(chunks)
}

func templateFromFlags(cmd *cobra.Command) (story.Template, error) {
	name, _ := cmd.Flags().GetString("format")
	if name == "" {
		name = current.cfg.Story.Format
	}
	tmpl := story.NewTemplate(story.FormatName(strings.ToUpper(name)))
	styleName, _ := cmd.Flags().GetString("style")
	if styleName == "" {
		styleName = current.cfg.Story.Style
	}
	if styleName != "" {
		style, err := story.ParseStyle(styleName)
		if err != nil {
			return story.Template{}, err
		}
		tmpl.Style = style
	}
	return tmpl, nil
}

type generated struct {
	StoryID   string          `json:"storyId,omitempty"`
	ContextID string          `json:"contextId,omitempty"`
	Story     story.Structure `json:"story"`
	Posts     []string        `json:"posts"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tmpl, err := templateFromFlags(cmd)
	if err != nil {
		return err
	}
	format, err := current.publisher.Formats().Lookup(tmpl.Format)
	if err != nil {
		return err
	}
	s, err := current.publisher.Generate(ctx, args, tmpl)
	if err != nil {
		return err
	}
	out := generated{Story: s, Posts: story.SplitForPlatform(s, format)}

	persist, _ := cmd.Flags().GetBool("persist")
	sources, _ := cmd.Flags().GetStringSlice("sources")
	if !persist && len(sources) == 0 {
		return printJSON(out)
	}

	sc, err := current.assembler.Build(ctx, args)
	if err != nil {
		return err
	}
	if out.ContextID, err = current.publisher.PersistContext(ctx, sc, current.publisher.Cast(ctx, args), tmpl); err != nil {
		return err
	}
	if out.StoryID, err = current.publisher.Persist(ctx, s, args, format); err != nil {
		return err
	}
	if out.Posts, err = current.publisher.Publish(ctx, s, format, out.StoryID, sources); err != nil {
		return err
	}
	return printJSON(out)
}

func runStories(cmd *cobra.Command, args []string) error {
	characters, _ := cmd.Flags().GetStringSlice("characters")
	matches, err := current.publisher.FindSimilarStories(cmd.Context(), args[0], characters)
	if err != nil {
		return err
	}
	return printMatches(matches)
}

func runLineage(cmd *cobra.Command, args []string) error {
	if current.graph == nil {
		return fmt.Errorf("lineage needs store.neo4j.uri")
	}
	ctx := cmd.Context()
	stories, err := current.graph.StoriesForMemory(ctx, args[0])
	if err != nil {
		return err
	}
	memories, err := current.graph.MemoriesForStory(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(map[string][]string{"stories": stories, "memories": memories})
}
