package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/logging"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/offline"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/store"
)

func newSweepCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [namespace...]",
		Short: "Enforce size bounds on stored namespaces",
		Long:  "Trims every namespace (or the named ones) in the configured store to its size bounds.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, false)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log)

			st, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return runSweep(cmd.Context(), st, cfg.Bounds, args, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Int("max-entries", offline.DefaultMaxEntries, "trim namespaces holding more entries than this")
	flags.Int("trim-to", offline.DefaultTrimTo, "entries kept after a trim")
	flags.Bool("enforce-max-age", false, "also drop entries older than --max-age")
	flags.Duration("max-age", offline.DefaultMaxAge, "age ceiling for --enforce-max-age")

	bind(v, flags.Lookup("max-entries"), "bounds.max_entries")
	bind(v, flags.Lookup("trim-to"), "bounds.trim_to")
	bind(v, flags.Lookup("enforce-max-age"), "bounds.enforce_max_age")
	bind(v, flags.Lookup("max-age"), "bounds.max_age")
	return cmd
}

// runSweep sweeps names, or every namespace when names is empty, and prints
// one line per namespace.
func runSweep(ctx context.Context, st store.Store, bounds offline.Bounds, names []string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(names) == 0 {
		var err error
		if names, err = st.Names(ctx); err != nil {
			return err
		}
	}

	var failed []string
	total := 0
	for _, name := range names {
		removed, err := offline.SweepNamespace(ctx, st, name, bounds)
		if err != nil {
			fmt.Fprintf(out, "%s\terror: %v\n", name, err)
			failed = append(failed, name)
			continue
		}
		total += removed
		fmt.Fprintf(out, "%s\t%d removed\n", name, removed)
	}

	if len(names) == 0 {
		fmt.Fprintln(out, "(no namespaces)")
	} else {
		fmt.Fprintf(out, "total\t%d removed\n", total)
	}
	if len(failed) > 0 {
		return fmt.Errorf("sweep failed for %s", strings.Join(failed, ", "))
	}
	return nil
}
