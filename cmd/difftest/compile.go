package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"difftest/internal/compiler"
	"difftest/internal/diagfmt"
	"difftest/internal/failure"
	"difftest/internal/nameenv"
	"difftest/internal/observ"
	"difftest/internal/shc"
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] -- <compiler arguments>",
	Short: "Compile shell units with the reference compiler",
	Long: `Compile runs the reference compiler over on-disk units and prints the
problem log in the baseline format. The compiler arguments are either
separate words after "--" or one quoted command line, which is split with
the fixture quoting rules:

  difftest compile -- -d out p/A.sh
  difftest compile '-classpath "lib;my libs" -d out p/A.sh'

Without -classpath, the --root directory serves as the classpath.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().String("root", ".", "directory source paths are relative to")
	compileCmd.Flags().Bool("category", false, "append the problem category to each message")
	compileCmd.Flags().String("path-separator", ";", "path-list separator")
}

func runCompile(cmd *cobra.Command, args []string) (err error) {
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return fmt.Errorf("failed to get root flag: %w", err)
	}
	category, err := cmd.Flags().GetBool("category")
	if err != nil {
		return fmt.Errorf("failed to get category flag: %w", err)
	}
	showTimings, _ := cmd.Root().PersistentFlags().GetBool("timings")

	m, err := loadManifest(cmd, root)
	if err != nil {
		return err
	}
	tk, err := tokenizerFor(cmd, m)
	if err != nil {
		return err
	}

	var opts compiler.Options
	if len(args) == 1 {
		opts, err = compiler.ParseCommandLine(args[0], tk)
	} else {
		opts, err = compiler.ParseArgs(args, tk.PathListSeparator)
	}
	if err != nil {
		return err
	}
	if len(opts.Files) == 0 {
		return failure.New(failure.MalformedInput, -1, "no source files")
	}

	timer := observ.NewTimer()
	sources, err := readSources(root, opts.Files)
	if err != nil {
		return err
	}
	entries := opts.Classpath
	if len(entries) == 0 {
		entries = []string{root}
	}
	entries, err = absPaths(entries)
	if err != nil {
		return err
	}
	ext := m.Config.Compiler.ArtifactExt
	libs, err := nameenv.Classpath(append(entries, m.AbsAll(m.Config.Compiler.Classpath)...), ext)
	if err != nil {
		return err
	}
	env, err := nameenv.New(sources, libs...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	step := timer.Begin("compile")
	res, err := shc.New().Compile(cmd.Context(), env, opts)
	if err != nil {
		return err
	}
	timer.End(step, fmt.Sprintf("%d problem(s)", len(res.Problems)))

	fmt.Fprint(cmd.OutOrStdout(), diagfmt.Format(res.Problems, env.Files(), diagfmt.Options{ShowCategory: category}))

	if len(res.Artifacts) > 0 {
		if opts.OutDir == "" {
			log.Infof("%d artifact(s) not written, pass -d to keep them", len(res.Artifacts))
		} else if err := timer.Time("write", func() error { return writeArtifacts(opts.OutDir, ext, res.Artifacts) }); err != nil {
			return err
		}
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), "timings:\n"+timer.Report().Summary())
	}
	if res.HasErrors() {
		return &exitError{code: 1}
	}
	return nil
}

func writeArtifacts(dir, ext string, arts []compiler.Artifact) error {
	for _, a := range arts {
		p := filepath.Join(dir, filepath.FromSlash(nameenv.TypePath(a.Name, ext)))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("write artifact %s: %w", a.Name, err)
		}
		if err := os.WriteFile(p, a.Bytes, 0o644); err != nil {
			return fmt.Errorf("write artifact %s: %w", a.Name, err)
		}
		log.Debugf("wrote %s", p)
	}
	return nil
}
