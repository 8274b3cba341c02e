package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"difftest/internal/nameenv"
	"difftest/internal/shrt"
	"difftest/internal/verifier/child"
)

// runnerCmd is the verifier child. It speaks the frame protocol on stdin and
// stdout; stderr is free-form and kept as the child log.
var runnerCmd = &cobra.Command{
	Use:    "runner",
	Short:  "Verifier child process (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runRunner,
}

func init() {
	runnerCmd.Flags().StringArray("lib", nil, "classpath entry for types that were not loaded (repeatable)")
	runnerCmd.Flags().String("ext", ".sh", "source extension in classpath entries")
}

func runRunner(cmd *cobra.Command, _ []string) (err error) {
	entries, err := cmd.Flags().GetStringArray("lib")
	if err != nil {
		return fmt.Errorf("failed to get lib flag: %w", err)
	}
	ext, err := cmd.Flags().GetString("ext")
	if err != nil {
		return fmt.Errorf("failed to get ext flag: %w", err)
	}
	libs, err := nameenv.Classpath(entries, ext)
	if err != nil {
		return err
	}
	defer func() {
		for _, l := range libs {
			if cerr := l.Cleanup(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	log.Debugf("runner: pid %d, %d librar(y/ies)", os.Getpid(), len(libs))
	return child.Serve(cmd.Context(), os.Stdin, os.Stdout, shrt.New(libs...))
}
