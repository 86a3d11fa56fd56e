package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/mnemo/ai/memory"
	"github.com/hrygo/mnemo/internal/version"
	"github.com/hrygo/mnemo/store"
)

var (
	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run the embedding worker without the HTTP API",
		RunE:  runWorker,
	}

	embedCmd = &cobra.Command{
		Use:   "embed",
		Short: "Embed queued entries and exit",
		RunE:  runEmbed,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show embedding job counts by status",
		RunE:  runStats,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.StringFull())
		},
	}

	memoryCmd = &cobra.Command{
		Use:   "memory",
		Short: "Read and write the memory of one session",
	}
)

func init() {
	embedCmd.Flags().Bool("once", false, "run a single batch instead of draining the queue")

	memoryCmd.PersistentFlags().String("session", "", "session key")
	if err := memoryCmd.MarkPersistentFlagRequired("session"); err != nil {
		panic(err)
	}

	saveCmd := &cobra.Command{
		Use:   "save <content>",
		Short: "Append a note to today's memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, "save_memory", map[string]any{"content": args[0]})
		},
	}
	updateCmd := &cobra.Command{
		Use:   "update-long-term <content>",
		Short: "Replace the long-term memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, "update_long_term_memory", map[string]any{"content": args[0]})
		},
	}
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read today's notes, recent notes or the long-term memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, _ := cmd.Flags().GetString("scope")
			days, _ := cmd.Flags().GetInt("days")
			keyword, _ := cmd.Flags().GetString("keyword")
			return runTool(cmd, "read_memory", map[string]any{"scope": scope, "days": days, "keyword": keyword})
		},
	}
	readCmd.Flags().String("scope", memory.ScopeToday, "today, long_term or recent")
	readCmd.Flags().Int("days", memory.DefaultRecentDays, "look-back window for the recent scope")
	readCmd.Flags().String("keyword", "", "only show entries containing this text")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by meaning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, _ := cmd.Flags().GetInt("k")
			return runTool(cmd, "semantic_search", map[string]any{"query": args[0], "k": k})
		},
	}
	searchCmd.Flags().Int("k", memory.DefaultSearchLimit, "maximum number of results")

	contextCmd := &cobra.Command{
		Use:   "context",
		Short: "Print the memory context an agent prompt would receive",
		Args:  cobra.NoArgs,
		RunE:  runContext,
	}
	contextCmd.Flags().String("query", "", "user message to add semantic matches for")

	memoryCmd.AddCommand(saveCmd, updateCmd, readCmd, searchCmd, contextCmd)
}

// withEngine runs fn against a freshly wired engine.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine) error) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := newEngine(ctx, instanceProfile)
	if err != nil {
		return err
	}
	defer e.close()
	return fn(ctx, e)
}

func runTool(cmd *cobra.Command, name string, input map[string]any) error {
	session, _ := cmd.Flags().GetString("session")
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		output, err := e.tools.Run(memory.WithSessionKey(ctx, session), name, string(raw))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	})
}

func runContext(cmd *cobra.Command, _ []string) error {
	session, _ := cmd.Flags().GetString("session")
	query, _ := cmd.Flags().GetString("query")
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		builder := memory.NewContextBuilder(e.service, e.searcher, e.logger)
		text, err := builder.BuildSemantic(ctx, session, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	})
}

func runWorker(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		w, err := e.newWorker()
		if err != nil {
			return err
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		w.Start(ctx)
		<-c
		return w.Stop(10 * time.Second)
	})
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	once, _ := cmd.Flags().GetBool("once")
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		w, err := e.newWorker()
		if err != nil {
			return err
		}
		for {
			result, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d done=%d stale=%d duplicate=%d retried=%d dead=%d\n",
				result.Claimed, result.Done, result.Stale, result.Duplicate, result.Retried, result.Dead)
			// Retried jobs are backing off; a later run picks them up.
			if once || result.Claimed == 0 || result.Claimed == result.Retried {
				return nil
			}
		}
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		counts, err := e.store.CountEmbeddingJobs(ctx)
		if err != nil {
			if store.IsCapabilityUnsupported(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "driver %s has no embedding queue\n", e.profile.Driver)
				return nil
			}
			return errors.Wrap(err, "failed to count embedding jobs")
		}

		statuses := make([]string, 0, len(counts))
		for status := range counts {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", status, counts[store.JobStatus(status)])
		}
		return nil
	})
}
