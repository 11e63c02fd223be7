package main

import (
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mobiscope/traffic-cli/internal/adblock"
)

var adblockCmd = &cobra.Command{
	Use:   "adblock <experiment-id> <filter-list-name>",
	Short: "Match captured requests against an ad-blocker filter list",
	Long: `Matches every request of the experiment against the named filter list and
persists the verdicts. The list is read from <list-dir>/<name>.txt; its
database row is created on first use.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		experimentID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid experiment id %q", args[0])
		}
		listName := args[1]

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rules, err := adblock.LoadRuleSet(filepath.Join(cfg.Adblock.ListDir, listName+".txt"))
		if err != nil {
			return err
		}
		defer rules.Close()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// First run against a fresh database creates the plugin schema.
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		matcher := adblock.NewMatcher(st, rules, listName)
		if err := matcher.Run(ctx, experimentID); err != nil {
			return eris.Wrap(err, "adblock")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adblockCmd)
}
