// Package config holds the blueprintc command line configuration: defaults,
// an optional TOML file and flags, applied in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"go/token"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/pelletier/go-toml"
)

// Config is the resolved configuration of one blueprintc run.
type Config struct {
	Package   string
	OutputDir string
	Format    bool
	Header    bool
	LogLevel  string
	LogFormat string
	Libraries []string
	Macros    []string
	Workers   int

	// Flag-only settings.
	File     string
	Validate bool
	List     bool
	Trace    string
	Inputs   []string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Package:   "main",
		Format:    true,
		Header:    true,
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   runtime.GOMAXPROCS(0),
	}
}

// Keys accepted in a config file.
var fileKeys = map[string]bool{
	"package": true, "output_dir": true, "format": true, "header": true,
	"log_level": true, "log_format": true, "libraries": true, "macros": true,
	"workers": true,
}

// Load parses args (without the program name). A -config file is applied
// first; flags given explicitly override it.
func Load(args []string, stderr io.Writer) (*Config, error) {
	cfg := Default()
	flags := *cfg

	fs := flag.NewFlagSet("blueprintc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: blueprintc [flags] graph.json [graph.yaml ...]")
		fs.PrintDefaults()
	}
	fs.StringVar(&flags.File, "config", "", "TOML config file")
	fs.StringVar(&flags.Package, "package", cfg.Package, "package name of generated files")
	fs.StringVar(&flags.OutputDir, "out", "", "output directory (default: next to each graph)")
	fs.BoolVar(&flags.Format, "format", cfg.Format, "gofmt generated source")
	fs.BoolVar(&flags.Header, "header", cfg.Header, "emit the generated-code header")
	fs.StringVar(&flags.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&flags.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.Var((*listFlag)(&flags.Libraries), "lib", "node library glob, repeatable")
	fs.Var((*listFlag)(&flags.Macros), "macros", "macro graph glob, repeatable")
	fs.IntVar(&flags.Workers, "workers", cfg.Workers, "graphs compiled in parallel")
	fs.BoolVar(&flags.Validate, "validate", false, "only validate, don't generate")
	fs.BoolVar(&flags.List, "list", false, "list available node types and exit")
	fs.StringVar(&flags.Trace, "trace", "", "trace compilation: print or json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if flags.File != "" {
		data, err := os.ReadFile(flags.File)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.ApplyTOML(data); err != nil {
			return nil, fmt.Errorf("%s: %w", flags.File, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "package":
			cfg.Package = flags.Package
		case "out":
			cfg.OutputDir = flags.OutputDir
		case "format":
			cfg.Format = flags.Format
		case "header":
			cfg.Header = flags.Header
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		case "log-format":
			cfg.LogFormat = flags.LogFormat
		case "lib":
			cfg.Libraries = append(cfg.Libraries, flags.Libraries...)
		case "macros":
			cfg.Macros = append(cfg.Macros, flags.Macros...)
		case "workers":
			cfg.Workers = flags.Workers
		}
	})
	cfg.File = flags.File
	cfg.Validate = flags.Validate
	cfg.List = flags.List
	cfg.Trace = flags.Trace
	cfg.Inputs = fs.Args()

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyTOML overlays the keys present in a TOML document onto c. Unknown keys
// and wrongly typed values are errors naming the offending line.
func (c *Config) ApplyTOML(data []byte) error {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	keys := tree.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		if !fileKeys[key] {
			return fmt.Errorf("line %d: unknown key %q", tree.GetPosition(key).Line, key)
		}
	}

	var errs []error
	str := func(key string, dst *string) {
		if !tree.Has(key) {
			return
		}
		s, ok := tree.Get(key).(string)
		if !ok {
			errs = append(errs, typeError(tree, key, "a string"))
			return
		}
		*dst = s
	}
	boolean := func(key string, dst *bool) {
		if !tree.Has(key) {
			return
		}
		b, ok := tree.Get(key).(bool)
		if !ok {
			errs = append(errs, typeError(tree, key, "a boolean"))
			return
		}
		*dst = b
	}
	list := func(key string, dst *[]string) {
		if !tree.Has(key) {
			return
		}
		items, ok := tree.Get(key).([]interface{})
		if !ok {
			errs = append(errs, typeError(tree, key, "an array of strings"))
			return
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				errs = append(errs, typeError(tree, key, "an array of strings"))
				return
			}
			out = append(out, s)
		}
		*dst = out
	}

	str("package", &c.Package)
	str("output_dir", &c.OutputDir)
	boolean("format", &c.Format)
	boolean("header", &c.Header)
	str("log_level", &c.LogLevel)
	str("log_format", &c.LogFormat)
	list("libraries", &c.Libraries)
	list("macros", &c.Macros)
	if tree.Has("workers") {
		n, ok := tree.Get("workers").(int64)
		if !ok {
			errs = append(errs, typeError(tree, "workers", "an integer"))
		} else {
			c.Workers = int(n)
		}
	}
	return errors.Join(errs...)
}

func typeError(tree *toml.Tree, key, want string) error {
	return fmt.Errorf("line %d: %s must be %s, got %T", tree.GetPosition(key).Line, key, want, tree.Get(key))
}

// Check reports settings that cannot work.
func (c *Config) Check() error {
	if !token.IsIdentifier(c.Package) {
		return fmt.Errorf("package %q is not a Go identifier", c.Package)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", c.LogFormat)
	}
	switch c.Trace {
	case "", "print", "json":
	default:
		return fmt.Errorf("trace %q: want print or json", c.Trace)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if !c.List && len(c.Inputs) == 0 {
		return errors.New("no input graphs")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Logger builds the slog logger described by the configuration.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// listFlag is a repeatable string flag that also splits on commas.
type listFlag []string

func (l *listFlag) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}
