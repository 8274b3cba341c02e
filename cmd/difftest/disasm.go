package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"difftest/internal/compiler"
	"difftest/internal/shc"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm [flags] <artifact file>...",
	Short: "Print the canonical text of compiled artifacts",
	Long: `Disasm renders artifacts the way expected.dis baselines are written. The
type name is taken from the file path relative to --root, so out/p/A.sh
under --root out is p.A.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDisasm,
}

func init() {
	disasmCmd.Flags().String("root", ".", "directory the artifact paths are relative to")
	disasmCmd.Flags().String("name", "", "qualified type name (single artifact only)")
}

func runDisasm(cmd *cobra.Command, args []string) error {
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return fmt.Errorf("failed to get root flag: %w", err)
	}
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return fmt.Errorf("failed to get name flag: %w", err)
	}
	if name != "" && len(args) > 1 {
		return fmt.Errorf("--name needs exactly one artifact, got %d", len(args))
	}

	out := cmd.OutOrStdout()
	for i, p := range args {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read artifact: %w", err)
		}
		n := name
		if n == "" {
			if n, err = typeName(root, p); err != nil {
				return err
			}
		}
		text, err := shc.Disassembler{}.Disassemble(compiler.Artifact{Name: n, Bytes: data})
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprint(out, text)
	}
	return nil
}

// typeName derives "p.A" from root/p/A.ext.
func typeName(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("artifact %s: %w", p, err)
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("artifact %s is outside %s", p, root)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(rel, "/", "."), nil
}
