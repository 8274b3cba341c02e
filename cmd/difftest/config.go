package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"difftest/internal/cmdline"
	"difftest/internal/project"
	"difftest/internal/shc"
	"difftest/internal/suite"
	"difftest/internal/verifier"
)

// loadManifest honours --config, otherwise searches upwards from startDir.
// Without a manifest the defaults apply, rooted at startDir.
func loadManifest(cmd *cobra.Command, startDir string) (*project.Manifest, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		cfg, err := project.Load(abs)
		if err != nil {
			return nil, err
		}
		return &project.Manifest{Path: abs, Root: filepath.Dir(abs), Config: cfg}, nil
	}

	m, ok, err := project.Discover(startDir)
	if err != nil {
		return nil, err
	}
	if ok {
		log.Debugf("using %s", m.Path)
		return m, nil
	}
	root, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	log.Debugf("no %s above %s, using defaults", project.ManifestName, root)
	return &project.Manifest{Root: root, Config: project.Default()}, nil
}

// tokenizerFor applies --quote and --path-separator over the manifest.
func tokenizerFor(cmd *cobra.Command, m *project.Manifest) (cmdline.Tokenizer, error) {
	cfg := m.Config
	if f := cmd.Flags().Lookup("quote"); f != nil && f.Changed {
		cfg.Cmdline.Quote = f.Value.String()
	}
	if f := cmd.Flags().Lookup("path-separator"); f != nil && f.Changed {
		cfg.Cmdline.PathSeparator = f.Value.String()
	}
	return cfg.Tokenizer()
}

// suiteConfig wires the reference toolchain and the verifier child into a
// suite configuration.
func suiteConfig(m *project.Manifest, tk cmdline.Tokenizer) (suite.Config, error) {
	timeout, runLimit, err := m.Config.Verifier.Durations()
	if err != nil {
		return suite.Config{}, fmt.Errorf("%s: [verifier]: %w", m.Path, err)
	}
	ext := m.Config.Compiler.ArtifactExt

	vcfg := verifier.Config{
		Command:  m.Config.Verifier.Command,
		Dir:      m.Root,
		Timeout:  timeout,
		RunLimit: runLimit,
	}
	if len(vcfg.Command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return suite.Config{}, fmt.Errorf("locate difftest executable: %w", err)
		}
		vcfg.Command = []string{exe, "runner", "--ext", ext, "--log-level", log.GetLevel().String()}
		for _, lib := range m.AbsAll(m.Config.Verifier.Classpath) {
			vcfg.Command = append(vcfg.Command, "--lib", lib)
		}
	}

	return suite.Config{
		Dir:          m.Root,
		Tokenizer:    tk,
		Classpath:    m.AbsAll(m.Config.Compiler.Classpath),
		Ext:          ext,
		Compiler:     shc.New(),
		Disassembler: shc.Disassembler{},
		Verifier:     vcfg,
	}, nil
}
