package main

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mobiscope/traffic-cli/internal/detect"
	"github.com/mobiscope/traffic-cli/internal/model"
	"github.com/mobiscope/traffic-cli/internal/pipeline"
	"github.com/mobiscope/traffic-cli/pkg/anthropic"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <experiment-id> <batch-size> <match-mode> <source> <app-allowlist|none>",
	Short: "Detect private data in captured requests",
	Long: `Normalizes the experiment's requests into equivalence classes and runs the
private-data classifier over up to <batch-size> not-yet-analyzed representatives.
Match mode "tracking" restricts analysis to requests matched by a filter list,
"all" covers every request. The allowlist file holds one app id per line and
limits "all" mode to those apps; pass "none" to skip it.`,
	Args: cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, source, err := parseAnalyzeArgs(args)
		if err != nil {
			return err
		}
		if err := cfg.ValidateDetect(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// First run against a fresh database creates the analysis tables.
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		detector := detect.New(anthropic.NewClient(cfg.Anthropic.Key), detect.Config{
			Model:             cfg.Anthropic.Model,
			LargeContextModel: cfg.Anthropic.LargeContextModel,
			Source:            source,
			Timeout:           time.Duration(cfg.Detect.TimeoutSecs) * time.Second,
			RequestsPerMinute: cfg.Detect.RequestsPerMinute,
		})

		analyzer := pipeline.NewAnalyzer(st, detector, source, cfg.Anthropic.Model)
		if err := analyzer.Run(ctx, params); err != nil {
			return eris.Wrap(err, "analyze")
		}
		return nil
	},
}

// parseAnalyzeArgs validates the positional arguments before anything touches
// the database or the API.
func parseAnalyzeArgs(args []string) (pipeline.Params, string, error) {
	experimentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return pipeline.Params{}, "", eris.Errorf("invalid experiment id %q", args[0])
	}

	batchSize, err := strconv.Atoi(args[1])
	if err != nil || batchSize <= 0 {
		return pipeline.Params{}, "", eris.Errorf("invalid batch size %q", args[1])
	}

	mode, err := model.ParseMatchMode(args[2])
	if err != nil {
		return pipeline.Params{}, "", err
	}

	source := strings.TrimSpace(args[3])
	if source == "" {
		return pipeline.Params{}, "", eris.New("source must not be empty")
	}

	var apps []string
	if args[4] != "none" {
		apps, err = readAllowlist(args[4])
		if err != nil {
			return pipeline.Params{}, "", err
		}
	}

	return pipeline.Params{
		ExperimentID: experimentID,
		BatchSize:    batchSize,
		Mode:         mode,
		OnlyApps:     apps,
	}, source, nil
}

// readAllowlist reads one app id per line, skipping blanks and # comments.
func readAllowlist(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read app allowlist %s", path)
	}

	var apps []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		apps = append(apps, line)
	}
	if len(apps) == 0 {
		return nil, eris.Errorf("app allowlist %s contains no app ids", path)
	}
	return apps, nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
