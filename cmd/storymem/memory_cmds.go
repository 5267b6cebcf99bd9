package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

func init() {
	storeCmd := &cobra.Command{
		Use:   "store [text]",
		Short: "Store a memory",
		Long:  "Store a memory. Text can be a positional arg or piped via stdin.",
		RunE:  runStore,
	}
	storeCmd.Flags().StringP("user", "u", "", "Username the memory belongs to")
	storeCmd.Flags().StringP("platform", "p", "", "Platform: twitter, arena, discord")
	storeCmd.Flags().String("role", "", "Character role")

	findCmd := &cobra.Command{
		Use:   "find [text]",
		Short: "Similarity search with equality filters",
		Long:  "Similarity search. Without text the query ranks by recency only.",
		RunE:  runFind,
	}
	findCmd.Flags().IntP("limit", "l", 5, "Maximum results")
	findCmd.Flags().StringP("user", "u", "", "Filter on user")
	findCmd.Flags().String("type", "", "Filter on record type")
	findCmd.Flags().StringP("platform", "p", "", "Filter on platform")

	recurringCmd := &cobra.Command{
		Use:   "recurring",
		Short: "Records with at least --min interactions",
		Args:  cobra.NoArgs,
		RunE:  runRecurring,
	}
	recurringCmd.Flags().Int("min", 3, "Minimum interaction count")
	recurringCmd.Flags().StringP("platform", "p", "", "Restrict to one platform")

	unusedCmd := &cobra.Command{
		Use:   "unused",
		Short: "Memories no story has referenced",
		Args:  cobra.NoArgs,
		RunE:  runUnused,
	}
	unusedCmd.Flags().IntP("limit", "l", 10, "Maximum results")

	deleteCmd := &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete records by id, or every record of a user",
		RunE:  runDelete,
	}
	deleteCmd.Flags().StringP("user", "u", "", "Delete every record whose user matches")

	rootCmd.AddCommand(
		storeCmd,
		findCmd,
		recurringCmd,
		unusedCmd,
		deleteCmd,
		&cobra.Command{
			Use:   "get <id>",
			Short: "Fetch a record",
			Args:  cobra.ExactArgs(1),
			RunE:  runGet,
		},
		&cobra.Command{
			Use:   "increment <id>",
			Short: "Bump a record's interaction count",
			Args:  cobra.ExactArgs(1),
			RunE:  runIncrement,
		},
		&cobra.Command{
			Use:   "attach <id> <storyId>",
			Short: "Record that a story used a memory",
			Args:  cobra.ExactArgs(2),
			RunE:  runAttach,
		},
		&cobra.Command{
			Use:   "metrics",
			Short: "Print engine counters for this process",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return printJSON(current.engine.MetricsSnapshot())
			},
		},
	)
}

// textArg joins positional args or reads stdin when it is piped.
func textArg(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func platformFlag(cmd *cobra.Command) (model.Platform, error) {
	raw, _ := cmd.Flags().GetString("platform")
	if raw == "" {
		return "", nil
	}
	p, ok := model.ParsePlatform(raw)
	if !ok {
		return "", fmt.Errorf("unknown platform %q", raw)
	}
	return p, nil
}

func runStore(cmd *cobra.Command, args []string) error {
	text, err := textArg(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required (positional arg or stdin)")
	}
	platform, err := platformFlag(cmd)
	if err != nil {
		return err
	}
	user, _ := cmd.Flags().GetString("user")
	role, _ := cmd.Flags().GetString("role")
	id, err := current.engine.Store(cmd.Context(), text, model.Metadata{
		User:          user,
		Platform:      platform,
		CharacterRole: role,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"id": id})
}

func runGet(cmd *cobra.Command, args []string) error {
	rec, err := current.engine.Fetch(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s: not found", args[0])
	}
	return printJSON(map[string]any{"id": rec.ID, "metadata": rec.Metadata})
}

func runIncrement(cmd *cobra.Command, args []string) error {
	return current.engine.IncrementInteractionCount(cmd.Context(), args[0])
}

func runAttach(cmd *cobra.Command, args []string) error {
	return current.engine.AttachStoryReference(cmd.Context(), args[0], args[1])
}

type matchView struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata model.Metadata `json:"metadata"`
}

func printMatches(matches []model.Match) error {
	out := make([]matchView, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchView{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return printJSON(out)
}

func runFind(cmd *cobra.Command, args []string) error {
	text, err := textArg(args)
	if err != nil {
		return err
	}
	platform, err := platformFlag(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	user, _ := cmd.Flags().GetString("user")
	typ, _ := cmd.Flags().GetString("type")
	matches, err := current.engine.FindSimilar(cmd.Context(), strings.TrimSpace(text), limit, model.Metadata{
		User:     user,
		Type:     model.RecordType(typ),
		Platform: platform,
	})
	if err != nil {
		return err
	}
	return printMatches(matches)
}

func runRecurring(cmd *cobra.Command, _ []string) error {
	platform, err := platformFlag(cmd)
	if err != nil {
		return err
	}
	minCount, _ := cmd.Flags().GetInt("min")
	matches, err := current.engine.FindRecurringCharacters(cmd.Context(), minCount, platform)
	if err != nil {
		return err
	}
	return printMatches(matches)
}

func runUnused(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	matches, err := current.engine.UnusedIdeas(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printMatches(matches)
}

func runDelete(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	if user != "" {
		return current.engine.DeleteWhere(cmd.Context(), model.Where(model.Eq(model.FieldUser, model.String(user))))
	}
	if len(args) == 0 {
		return fmt.Errorf("give record ids or --user")
	}
	for _, id := range args {
		if err := current.engine.Delete(cmd.Context(), id); err != nil {
			return err
		}
	}
	return nil
}

func parseTimestamp(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	t := model.ParseTimestamp(raw)
	if t.IsZero() {
		return 0, fmt.Errorf("bad timestamp %q: want RFC3339 or unix milliseconds", raw)
	}
	return t.UnixMilli(), nil
}
