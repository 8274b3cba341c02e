package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize [flags] <command line>",
	Short: "Split a command line the way fixtures are split",
	Long: `Tokenize applies the fixture quoting rules to a command line and prints
one token per line. With --split, path-list tokens are also broken up on
the separator, keeping quoted separators intact.`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenize,
}

func init() {
	tokenizeCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	tokenizeCmd.Flags().Bool("split", false, "also print path-list entries")
	tokenizeCmd.Flags().String("quote", `"`, "quote character")
	tokenizeCmd.Flags().String("path-separator", ";", "path-list separator")
}

type tokenJSON struct {
	Token    string   `json:"token"`
	PathList []string `json:"path_list,omitempty"`
}

func runTokenize(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	split, err := cmd.Flags().GetBool("split")
	if err != nil {
		return fmt.Errorf("failed to get split flag: %w", err)
	}
	m, err := loadManifest(cmd, ".")
	if err != nil {
		return err
	}
	tk, err := tokenizerFor(cmd, m)
	if err != nil {
		return err
	}

	toks, err := tk.Scan(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "pretty":
		for i, tok := range toks {
			fmt.Fprintf(out, "%d\t%s\n", i, tok.String())
			if split {
				for _, e := range tok.SplitPathList() {
					fmt.Fprintf(out, "\t- %s\n", e)
				}
			}
		}
		return nil
	case "json":
		payload := make([]tokenJSON, len(toks))
		for i, tok := range toks {
			payload[i].Token = tok.String()
			if split {
				payload[i].PathList = tok.SplitPathList()
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}
