// layerguard checks PHP code against declared architectural layers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phobologic/layerguard/internal/analyser"
	"github.com/phobologic/layerguard/internal/cache"
	"github.com/phobologic/layerguard/internal/config"
	"github.com/phobologic/layerguard/internal/model"
	"github.com/phobologic/layerguard/internal/parse"
	"github.com/phobologic/layerguard/internal/report"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, analyser.ErrViolations) && !errors.Is(err, analyser.ErrUncovered) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "layerguard",
		Short:         "Enforce architectural layers in PHP code bases",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyse(cmd.Context(), v, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringP("config", "c", v.GetString("config"), "depfile path")
	flags.String("cache-dir", v.GetString("cache_dir"), "reference cache directory, relative to the depfile")
	flags.Bool("no-cache", false, "disable the reference cache")
	flags.Bool("strict", false, "fail on files that cannot be parsed")
	flags.IntP("workers", "j", v.GetInt("workers"), "number of parallel workers")
	flags.StringP("formatter", "f", v.GetString("formatter"), "output format: "+strings.Join(config.Formatters, ", "))
	flags.StringP("output", "o", "", "write the report to this file instead of stdout")
	flags.Bool("report-uncovered", v.GetBool("report_uncovered"), "list uncovered dependencies")
	flags.Bool("report-skipped", false, "list skipped violations")
	flags.Bool("fail-on-uncovered", false, "exit non-zero when uncovered dependencies exist")
	flags.BoolP("verbose", "v", false, "log debug output")
	flags.Bool("trace", false, "export traces and metrics to stderr")
	for _, name := range []string{
		"config", "cache-dir", "no-cache", "strict", "workers", "formatter", "output",
		"report-uncovered", "report-skipped", "fail-on-uncovered", "verbose", "trace",
	} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	root.AddCommand(
		&cobra.Command{
			Use:     "analyse",
			Aliases: []string{"analyze"},
			Short:   "Analyse dependencies and report layer violations (default)",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runAnalyse(cmd.Context(), v, stdout, stderr)
			},
		},
		newInitCmd(stdout, stderr),
		newDebugCmd(v, stdout, stderr),
	)
	return root
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session is a loaded depfile plus the resources a run needs.
type session struct {
	settings config.Settings
	cfg      *config.Config
	logger   *slog.Logger
	cache    *cache.FileCache
	shutdown func(context.Context) error
}

func openSession(v *viper.Viper, stderr io.Writer) (*session, error) {
	s, err := config.LoadSettings(v)
	if err != nil {
		return nil, err
	}
	sess := &session{settings: s, logger: newLogger(stderr, s.Verbose)}

	if s.Trace {
		if sess.shutdown, err = setupTelemetry(stderr); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(s.Config)
	if err != nil {
		sess.close()
		return nil, err
	}
	sess.cfg = cfg
	sess.logger.Debug("loaded depfile", "file", cfg.File, "base_dir", cfg.BaseDir, "layers", len(cfg.Layers))

	if !s.NoCache {
		dir := s.CacheDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.BaseDir, dir)
		}
		store, err := cache.OpenBadger(cache.BadgerConfig{Dir: dir, Logger: sess.logger})
		if err != nil {
			sess.close()
			return nil, err
		}
		sess.cache = cache.NewFileCache(store, parse.SchemaVersion, sess.logger)
	}
	return sess, nil
}

func (s *session) close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("closing cache", "error", err)
		}
	}
	if s.shutdown != nil {
		if err := s.shutdown(context.Background()); err != nil {
			s.logger.Warn("flushing telemetry", "error", err)
		}
	}
}

func (s *session) analyse(ctx context.Context, includeAllowed bool) (*analyser.Result, error) {
	files, err := analyser.Discover(s.cfg)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.logger.Warn("no PHP files found", "paths", s.cfg.Paths)
	}
	a := &analyser.Analyser{
		Config:         s.cfg,
		Cache:          s.cache,
		Logger:         s.logger,
		Workers:        s.settings.Workers,
		Strict:         s.settings.Strict,
		IncludeAllowed: includeAllowed,
	}
	return a.Run(ctx, files)
}

func runAnalyse(ctx context.Context, v *viper.Viper, stdout, stderr io.Writer) error {
	sess, err := openSession(v, stderr)
	if err != nil {
		return err
	}
	defer sess.close()

	res, err := sess.analyse(ctx, false)
	if err != nil {
		return err
	}

	s := sess.settings
	out, color := stdout, false
	if s.Output != "" {
		f, err := os.Create(s.Output)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		out = f
	} else if f, ok := stdout.(*os.File); ok {
		color = report.IsTerminal(f)
	}

	formatter, err := report.New(s.Formatter, report.Options{
		ReportSkipped:   s.ReportSkipped,
		ReportUncovered: s.ReportUncovered,
		Color:           color,
	})
	if err != nil {
		return err
	}
	if err := formatter.Format(out, res.Report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	// A baseline run records violations rather than failing on them.
	if s.Formatter == report.Baseline {
		return nil
	}
	return analyser.Check(res.Report, s.FailOnUncovered)
}

func newDebugCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	debug := &cobra.Command{
		Use:   "debug",
		Short: "Inspect layer assignment",
	}

	debug.AddCommand(
		&cobra.Command{
			Use:   "layer <name>",
			Short: "List the tokens assigned to a layer",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withResult(cmd.Context(), v, stderr, func(res *analyser.Result) error {
					return debugLayer(stdout, res, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "token <name>",
			Short: "List the layers a class, function, superglobal or file belongs to",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withResult(cmd.Context(), v, stderr, func(res *analyser.Result) error {
					debugToken(stdout, res, args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "unassigned",
			Short: "List declared tokens that belong to no layer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withResult(cmd.Context(), v, stderr, func(res *analyser.Result) error {
					debugUnassigned(stdout, res)
					return nil
				})
			},
		},
	)
	return debug
}

func withResult(ctx context.Context, v *viper.Viper, stderr io.Writer, fn func(*analyser.Result) error) error {
	sess, err := openSession(v, stderr)
	if err != nil {
		return err
	}
	defer sess.close()

	res, err := sess.analyse(ctx, true)
	if err != nil {
		return err
	}
	return fn(res)
}

func debugLayer(w io.Writer, res *analyser.Result, name string) error {
	if !slices.Contains(res.Resolver.Names(), name) {
		return fmt.Errorf("unknown layer %q", name)
	}
	for _, tok := range res.Assignment.Members(name) {
		fmt.Fprintf(w, "%s\t%s\n", tok, tok.Type)
	}
	return nil
}

func debugToken(w io.Writer, res *analyser.Result, name string) {
	name = strings.TrimPrefix(name, `\`)
	var found []model.Token
	for tok := range res.Assignment {
		if tok.Name == name {
			found = append(found, tok)
		}
	}
	if len(found) == 0 {
		// Names outside the analysed code can still match name-based collectors.
		tok := model.ClassLike(name)
		printLayers(w, tok, res.Resolver.Resolve(res.Resolver.ReferenceFor(tok)))
		return
	}
	slices.SortFunc(found, func(a, b model.Token) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})
	for _, tok := range found {
		printLayers(w, tok, res.Assignment.Layers(tok))
	}
}

func printLayers(w io.Writer, tok model.Token, layers []string) {
	if len(layers) == 0 {
		fmt.Fprintf(w, "%s\t%s\t(no layer)\n", tok, tok.Type)
		return
	}
	fmt.Fprintf(w, "%s\t%s\t%s\n", tok, tok.Type, strings.Join(layers, ", "))
}

func debugUnassigned(w io.Writer, res *analyser.Result) {
	var tokens []model.Token
	for _, c := range res.Symbols.ClassLikes() {
		tokens = append(tokens, c.Token())
	}
	for _, f := range res.Symbols.Functions() {
		tokens = append(tokens, f.Token())
	}
	for _, tok := range tokens {
		if len(res.Assignment.Layers(tok)) == 0 {
			fmt.Fprintln(w, tok)
		}
	}
}
