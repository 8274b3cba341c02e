package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"difftest/internal/cmdline"
	"difftest/internal/nameenv"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [flags] <qualified name>...",
	Short: "Answer type and package queries against a name environment",
	Long: `Resolve builds the same layered name environment a compilation sees, from
--source files over the --classpath libraries, and reports where each name
is defined.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().String("classpath", "", "path list of library directories and archives")
	resolveCmd.Flags().StringArray("source", nil, "in-memory source, virtual=file or a path (repeatable)")
	resolveCmd.Flags().String("root", ".", "directory source paths are relative to")
	resolveCmd.Flags().String("path-separator", ";", "path-list separator")
}

func runResolve(cmd *cobra.Command, args []string) (err error) {
	classpath, err := cmd.Flags().GetString("classpath")
	if err != nil {
		return fmt.Errorf("failed to get classpath flag: %w", err)
	}
	sourceArgs, err := cmd.Flags().GetStringArray("source")
	if err != nil {
		return fmt.Errorf("failed to get source flag: %w", err)
	}
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return fmt.Errorf("failed to get root flag: %w", err)
	}

	m, err := loadManifest(cmd, root)
	if err != nil {
		return err
	}
	tk, err := tokenizerFor(cmd, m)
	if err != nil {
		return err
	}

	sources, err := readSources(root, sourceArgs)
	if err != nil {
		return err
	}
	entries, err := absPaths(cmdline.SplitPathList(classpath, tk.PathListSeparator))
	if err != nil {
		return err
	}
	libs, err := nameenv.Classpath(append(entries, m.AbsAll(m.Config.Compiler.Classpath)...), m.Config.Compiler.ArtifactExt)
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

	out := cmd.OutOrStdout()
	for _, name := range args {
		ans := env.FindType(name)
		switch ans.Kind {
		case nameenv.SourceKind:
			fmt.Fprintf(out, "%s: source %s\n", name, ans.Unit.Path)
		case nameenv.BinaryKind:
			fmt.Fprintf(out, "%s: binary %s\n", name, ans.Binary.Origin)
		default:
			fmt.Fprintf(out, "%s: %s\n", name, ans.Kind)
		}
		if env.IsPackage(name) {
			fmt.Fprintf(out, "%s: package\n", name)
		}
	}
	return nil
}
