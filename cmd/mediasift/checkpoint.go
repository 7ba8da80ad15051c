package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/mediasift/internal/config"
	"github.com/steveyegge/mediasift/internal/storage"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or delete persisted run checkpoints",
	Long: `Checkpoints record which items a run has finished so it can be resumed.
A run that completes without failures deletes its own checkpoint.`,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openCheckpointStore(cmd)
		defer store.Close()
		if err := listCheckpoints(cmd.Context(), os.Stdout, store); err != nil {
			fatalf("%v", err)
		}
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <token>",
	Short: "Show the contents of one checkpoint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openCheckpointStore(cmd)
		defer store.Close()
		if err := showCheckpoint(cmd.Context(), os.Stdout, store, args[0]); err != nil {
			fatalf("%v", err)
		}
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear [token]",
	Short: "Delete checkpoints",
	Long: `Delete one checkpoint by token, every checkpoint (--all), or the
checkpoints not written for a while (--older-than).

Examples:
  mediasift checkpoint clear 3f2a...
  mediasift checkpoint clear --older-than 168h
  mediasift checkpoint clear --all`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		var sel clearSelector
		switch {
		case len(args) == 1 && (all || olderThan > 0):
			fatalf("give a token or --all/--older-than, not both")
		case len(args) == 1:
			sel.token = args[0]
		case all:
			sel.all = true
		case olderThan > 0:
			sel.olderThan = olderThan
		default:
			fatalf("nothing to clear: give a token, --all or --older-than")
		}

		store := openCheckpointStore(cmd)
		defer store.Close()
		n, err := clearCheckpoints(cmd.Context(), store, sel, time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Deleted %d checkpoint(s)\n", n)
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointListCmd, checkpointShowCmd, checkpointClearCmd)

	checkpointCmd.PersistentFlags().String("store", "", "Checkpoint backend: file or sqlite")
	checkpointCmd.PersistentFlags().String("store-path", "", "Checkpoint directory (file) or database (sqlite)")

	checkpointClearCmd.Flags().Bool("all", false, "Delete every checkpoint")
	checkpointClearCmd.Flags().Duration("older-than", 0, "Delete checkpoints last saved longer ago than this")
}

func openCheckpointStore(cmd *cobra.Command) storage.CheckpointStore {
	cfg := loadConfig()
	if err := applyStoreFlags(cmd, cfg); err != nil {
		fatalf("%v", err)
	}
	store, err := storage.NewCheckpointStore(cmd.Context(), cfg.Checkpoint)
	if err != nil {
		fatalf("failed to open checkpoint store: %v", err)
	}
	return store
}

func applyStoreFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("store") {
		cfg.Checkpoint.Backend, _ = f.GetString("store")
	}
	if f.Changed("store-path") {
		cfg.Checkpoint.Path, _ = f.GetString("store-path")
	}
	return cfg.Checkpoint.Validate()
}

func listCheckpoints(ctx context.Context, w io.Writer, store storage.CheckpointStore) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No checkpoints")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Token,
			e.SavedAt.Local().Format(time.DateTime),
			strconv.Itoa(e.Processed),
			strconv.Itoa(e.Failed),
			fmt.Sprintf("$%.4f", e.CumulativeCost),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Token", "Saved", "Processed", "Failed", "Cost"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}

func showCheckpoint(ctx context.Context, w io.Writer, store storage.CheckpointStore, token string) error {
	if err := storage.ValidateToken(token); err != nil {
		return err
	}
	cp, err := store.Load(ctx, token)
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("no checkpoint for token %s", token)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s\n", cyan("Checkpoint "+token))
	fmt.Fprintf(w, "  Saved:      %s\n", cp.SavedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Processed:  %d (%d succeeded, %d failed)\n", cp.Counts.Processed, cp.Counts.Succeeded, cp.Counts.Failed)
	fmt.Fprintf(w, "  Cost:       $%.4f\n", cp.CumulativeCost)
	fmt.Fprintf(w, "  Completed:  %d items\n", len(cp.ProcessedIdentifiers))

	if len(cp.FailedIdentifiers) > 0 {
		fmt.Fprintf(w, "  Failed (retried on resume):\n")
		ids := make([]string, 0, len(cp.FailedIdentifiers))
		for id := range cp.FailedIdentifiers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "    %s: %s\n", id, cp.FailedIdentifiers[id])
		}
	}
	return nil
}

// clearSelector chooses the checkpoints to delete; exactly one field is set
type clearSelector struct {
	token     string
	all       bool
	olderThan time.Duration
}

// clearCheckpoints deletes the selected checkpoints and returns how many
// existed.
func clearCheckpoints(ctx context.Context, store storage.CheckpointStore, sel clearSelector, now time.Time) (int, error) {
	if sel.token != "" {
		if err := storage.ValidateToken(sel.token); err != nil {
			return 0, err
		}
		cp, err := store.Load(ctx, sel.token)
		if err != nil {
			return 0, err
		}
		if cp == nil {
			return 0, nil
		}
		return 1, store.Delete(ctx, sel.token)
	}

	entries, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, e := range entries {
		if !sel.all && !storage.Stale(e, sel.olderThan, now) {
			continue
		}
		if err := store.Delete(ctx, e.Token); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", e.Token, err)
		}
		deleted++
	}
	return deleted, nil
}
