// Package project locates and reads difftest.toml, the manifest at the root
// of a test suite.
package project

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"difftest/internal/cmdline"
	"difftest/internal/failure"
)

// Manifest is a loaded difftest.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the manifest sections.
type Config struct {
	Cmdline  CmdlineConfig  `toml:"cmdline"`
	Verifier VerifierConfig `toml:"verifier"`
	Compiler CompilerConfig `toml:"compiler"`
}

type CmdlineConfig struct {
	Quote         string `toml:"quote"`
	PathSeparator string `toml:"path_separator"`
}

type VerifierConfig struct {
	// Command is the child's argv; empty runs this binary's runner.
	Command   []string `toml:"command"`
	Timeout   string   `toml:"timeout"`
	RunLimit  string   `toml:"run_limit"`
	Classpath []string `toml:"classpath"`
}

type CompilerConfig struct {
	Classpath   []string `toml:"classpath"`
	ArtifactExt string   `toml:"artifact_ext"`
}

// Default returns the configuration used without a manifest.
func Default() Config {
	return Config{
		Cmdline:  CmdlineConfig{Quote: `"`, PathSeparator: ";"},
		Verifier: VerifierConfig{Timeout: "10s"},
		Compiler: CompilerConfig{ArtifactExt: ".sh"},
	}
}

// Discover finds the manifest above startDir and loads it. ok is false when
// there is none.
func Discover(startDir string) (*Manifest, bool, error) {
	manifestPath, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := Load(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &Manifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

// Load decodes and validates the manifest at path. Keys it leaves out keep
// their Default values.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, failure.Wrap(failure.MalformedInput, -1, path+": failed to parse TOML", err)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		return Config{}, malformed(path, "unknown key %s", keys[0])
	}

	if meta.IsDefined("cmdline", "quote") && utf8.RuneCountInString(cfg.Cmdline.Quote) != 1 {
		return Config{}, malformed(path, "[cmdline].quote must be a single character")
	}
	if meta.IsDefined("cmdline", "path_separator") && utf8.RuneCountInString(cfg.Cmdline.PathSeparator) != 1 {
		return Config{}, malformed(path, "[cmdline].path_separator must be a single character")
	}
	if _, err := cfg.Tokenizer(); err != nil {
		return Config{}, malformed(path, "[cmdline]: %v", err)
	}

	if meta.IsDefined("verifier", "command") && len(cfg.Verifier.Command) == 0 {
		return Config{}, malformed(path, "[verifier].command must not be empty")
	}
	if _, _, err := cfg.Verifier.Durations(); err != nil {
		return Config{}, malformed(path, "[verifier]: %v", err)
	}

	if ext := cfg.Compiler.ArtifactExt; !strings.HasPrefix(ext, ".") || len(ext) < 2 {
		return Config{}, malformed(path, "[compiler].artifact_ext must look like \".ext\", got %q", ext)
	}
	return cfg, nil
}

func malformed(path, format string, args ...any) error {
	return failure.Newf(failure.MalformedInput, "%s: %s", path, fmt.Sprintf(format, args...))
}

// Tokenizer returns the quoting convention of [cmdline].
func (c Config) Tokenizer() (cmdline.Tokenizer, error) {
	quote, _ := utf8.DecodeRuneInString(c.Cmdline.Quote)
	sep, _ := utf8.DecodeRuneInString(c.Cmdline.PathSeparator)
	return cmdline.New(quote, sep)
}

// Durations parses the watchdog timeout and run limit. Empty values are zero.
func (v VerifierConfig) Durations() (timeout, runLimit time.Duration, err error) {
	if v.Timeout != "" {
		if timeout, err = time.ParseDuration(v.Timeout); err != nil {
			return 0, 0, fmt.Errorf("timeout: %w", err)
		}
		if timeout <= 0 {
			return 0, 0, fmt.Errorf("timeout must be positive, got %s", v.Timeout)
		}
	}
	if v.RunLimit != "" {
		if runLimit, err = time.ParseDuration(v.RunLimit); err != nil {
			return 0, 0, fmt.Errorf("run_limit: %w", err)
		}
		if runLimit < 0 {
			return 0, 0, fmt.Errorf("run_limit must not be negative, got %s", v.RunLimit)
		}
	}
	return timeout, runLimit, nil
}

// Abs resolves a manifest-relative path.
func (m *Manifest) Abs(p string) string {
	if m == nil || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}

// AbsAll resolves every path with Abs.
func (m *Manifest) AbsAll(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = m.Abs(p)
	}
	return out
}
