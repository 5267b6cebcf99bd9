// Command storymem operates a story-memory deployment: it stores memories and
// interactions, answers filtered similarity queries, and generates, splits and
// publishes long-form stories.
//
// Examples:
//
//	storymem store --user alice "found a portal behind the bakery"
//	storymem interaction --user-id u1 --username alice --platform discord "gm frens"
//	storymem generate --format TWEET_SERIES --persist u1 u2
//	STORYMEM_STORE_BACKEND=qdrant storymem recurring --min 3
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/story-memory/src/config"
)

var (
	configPath string
	timeout    time.Duration
	current    *app
	cancel     context.CancelFunc = func() {}
)

var rootCmd = &cobra.Command{
	Use:           "storymem",
	Short:         "Semantic memory and long-form story publishing",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var ctx context.Context
		ctx, cancel = context.WithTimeout(cmd.Context(), timeout)
		cmd.SetContext(ctx)
		if cmd.Annotations[offline] == "true" {
			return nil
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		current, err = newApp(ctx, cfg)
		return err
	},
}

// offline marks commands that need no store or embedder.
const offline = "offline"

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("STORYMEM_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	cancel()
	if current != nil {
		if cerr := current.Close(); cerr != nil {
			log.Printf("close: %v", cerr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
