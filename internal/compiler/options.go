package compiler

import (
	"strings"

	"difftest/internal/cmdline"
	"difftest/internal/failure"
)

// OutDirNone disables artifact generation ("-d none").
const OutDirNone = "none"

// Options is a parsed compiler command line.
type Options struct {
	Classpath      []string
	OutDir         string
	Source         string
	Target         string
	Encoding       string
	Debug          bool
	NoWarn         bool
	Deprecation    bool
	ProceedOnError bool
	Files          []string
}

// DefaultOptions returns the options used when a flag is absent.
func DefaultOptions() Options {
	return Options{Deprecation: true}
}

// EmitArtifacts reports whether the compilation should produce artifacts.
func (o Options) EmitArtifacts() bool {
	return o.OutDir != OutDirNone
}

type arg struct {
	value    string
	pathList func() []string
}

// ParseCommandLine tokenizes line with tk and parses the result. Classpath
// values are split with the token's fragment structure, so quoted entries
// containing the separator stay whole.
func ParseCommandLine(line string, tk cmdline.Tokenizer) (Options, error) {
	toks, err := tk.Scan(line)
	if err != nil {
		return Options{}, err
	}
	args := make([]arg, len(toks))
	for i, tok := range toks {
		args[i] = arg{value: tok.String(), pathList: tok.SplitPathList}
	}
	return parse(args)
}

// ParseArgs parses already split arguments, splitting path lists on sep.
func ParseArgs(argv []string, sep rune) (Options, error) {
	args := make([]arg, len(argv))
	for i, v := range argv {
		v := v
		args[i] = arg{value: v, pathList: func() []string { return cmdline.SplitPathList(v, sep) }}
	}
	return parse(args)
}

func parse(args []arg) (Options, error) {
	opts := DefaultOptions()
	value := func(i int, flag string) (arg, error) {
		if i+1 >= len(args) {
			return arg{}, failure.Newf(failure.MalformedInput, "option %s requires a value", flag)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch v := a.value; {
		case v == "-classpath" || v == "-cp":
			next, err := value(i, v)
			if err != nil {
				return Options{}, err
			}
			opts.Classpath = append(opts.Classpath, next.pathList()...)
			i++
		case v == "-d" || v == "-source" || v == "-target" || v == "-encoding":
			next, err := value(i, v)
			if err != nil {
				return Options{}, err
			}
			switch v {
			case "-d":
				opts.OutDir = next.value
			case "-source":
				opts.Source = next.value
			case "-target":
				opts.Target = next.value
			case "-encoding":
				opts.Encoding = next.value
			}
			i++
		case v == "-g" || strings.HasPrefix(v, "-g:"):
			opts.Debug = v != "-g:none"
		case v == "-nowarn" || v == "-warn:none":
			opts.NoWarn = true
		case v == "-warn:-deprecation":
			opts.Deprecation = false
		case v == "-warn:+deprecation" || v == "-warn:deprecation":
			opts.Deprecation = true
		case v == "-proceedOnError":
			opts.ProceedOnError = true
		case strings.HasPrefix(v, "-") && v != "-":
			return Options{}, failure.Newf(failure.MalformedInput, "unrecognized option %q", v)
		default:
			opts.Files = append(opts.Files, v)
		}
	}
	return opts, nil
}
