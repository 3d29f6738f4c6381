package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/pdigest/internal/digest"
)

var (
	digestSince  string
	digestUntil  string
	digestFormat string
	noColor      bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Fetch the group feed for a date range and print the digest",
	RunE:  digestAction,
}

func init() {
	digestCmd.Flags().StringVar(&digestSince, "since", "", "first day of the range (YYYY-MM-DD)")
	digestCmd.Flags().StringVar(&digestUntil, "until", "", "last day of the range (YYYY-MM-DD, default today)")
	digestCmd.Flags().StringVar(&digestFormat, "format", "", "output format: terminal, json, markdown, html")
	digestCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(digestCmd)
}

func digestAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()

	if digestSince == "" {
		return fmt.Errorf("--since is required")
	}
	since, err := parseDate(digestSince, loc)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}
	var until *time.Time
	if digestUntil != "" {
		u, err := parseDate(digestUntil, loc)
		if err != nil {
			return fmt.Errorf("parse --until: %w", err)
		}
		until = &u
	}

	format := digestFormat
	if format == "" {
		format = cfg.Digest.Format
	}
	formatter, err := newFormatter(format, !noColor)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	p, err := newPipeline(ctx, cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer p.Close()

	w, err := p.builder.Window(since, until)
	if err != nil {
		return err
	}
	entries, err := p.builder.Build(ctx, w)
	if err != nil {
		return fmt.Errorf("build digest: %w", err)
	}

	return formatter.Format(os.Stdout, digest.DigestInput{
		Entries:     entries,
		Window:      w,
		Group:       cfg.Graph.GroupID,
		GeneratedAt: time.Now(),
	})
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, loc)
}
