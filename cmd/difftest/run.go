package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"difftest/internal/suite"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [suite dir]",
	Short: "Run the fixtures of a test suite",
	Long: `Run discovers *.txtar fixtures under the suite directory, runs them one at
a time against a single verifier child and prints a PASS or FAIL line for
each. With --watch, the suite runs again whenever a fixture or the manifest
changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSuite,
}

func init() {
	runCmd.Flags().Bool("watch", false, "re-run when fixtures change")
	runCmd.Flags().BoolP("verbose", "v", false, "print expected and actual texts of failed checks in full")
}

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
)

func runSuite(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return fmt.Errorf("failed to get watch flag: %w", err)
	}

	once := func(ctx context.Context) error {
		return runOnce(ctx, cmd, dir)
	}
	if !watch {
		return once(cmd.Context())
	}
	return watchSuite(cmd.Context(), dir, func(ctx context.Context) {
		if err := once(ctx); err != nil {
			var ee *exitError
			if !errors.As(err, &ee) {
				log.Errorf("run: %v", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "watching for changes...")
	})
}

func runOnce(ctx context.Context, cmd *cobra.Command, dir string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	timings, _ := cmd.Root().PersistentFlags().GetBool("timings")

	m, err := loadManifest(cmd, dir)
	if err != nil {
		return err
	}
	tk, err := m.Config.Tokenizer()
	if err != nil {
		return err
	}
	cfg, err := suiteConfig(m, tk)
	if err != nil {
		return err
	}
	root, err := suite.Discover(dir, tk)
	if err != nil {
		return err
	}
	total := suite.Count(root)
	if total == 0 {
		log.Warnf("no %s fixtures under %s", suite.FixtureExt, dir)
		return nil
	}

	width := 0
	_ = suite.Walk(root, func(path string, _ *suite.Test) error {
		width = max(width, runewidth.StringWidth(path))
		return nil
	})

	out := cmd.OutOrStdout()
	var passed, reported int
	err = suite.Run(ctx, cfg, root, func(o suite.Outcome) {
		reported++
		if o.Passed() {
			passed++
			if !quiet {
				printOutcome(out, passColor.Sprint("PASS"), o, width)
			}
		} else {
			printOutcome(out, failColor.Sprint("FAIL"), o, width)
			printFailure(out, o.Err, verbose)
		}
		if timings {
			fmt.Fprint(out, o.Timings.Summary())
		}
	})
	if reported < total {
		// setup failed or the run was interrupted
		return err
	}
	fmt.Fprintf(out, "%d passed, %d failed\n", passed, total-passed)
	if err != nil && passed < total {
		return &exitError{code: 1}
	}
	return err
}

func printOutcome(out io.Writer, label string, o suite.Outcome, width int) {
	name := runewidth.FillRight(o.Path, width)
	fmt.Fprintf(out, "%s  %s  %7.1f ms\n", label, name, float64(o.Elapsed.Microseconds())/1000)
}

func printFailure(out io.Writer, err error, verbose bool) {
	text := err.Error()
	var mm *suite.MismatchError
	if verbose && errors.As(err, &mm) {
		text = mm.Detail()
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
}
