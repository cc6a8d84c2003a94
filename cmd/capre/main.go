// Package main is the entry point of the capre CLI.
//
// capre stages the three dBASE III tables of a CAPRE herd extraction
// (<prefix>_capre_tabla{1,2,3}.dbf) and writes them back out. Configuration is
// read from an optional YAML file, CAPRE_* environment variables and flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/tsingsun/capre/internal/capre"
	"github.com/tsingsun/capre/internal/config"
	"github.com/tsingsun/capre/internal/fileset"
	"github.com/tsingsun/capre/internal/staging"
)

const usage = `usage: capre [flags] <command> [args]

commands:
  import FILE FILE FILE      stage a tabla1/tabla2/tabla3 set
  export [-o DIR] [-zip] ID  write a session back to DBF files
  inspect [-n N] FILE        dump the header, fields and first records of a DBF file
  sessions                   list staged sessions
  delete ID                  delete a session
  watch [DIR]                import complete sets dropped into DIR
  version                    print version

flags:
`

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "capre: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.String("config", "", "YAML configuration file")
	dataDir := flag.String("data-dir", "", "Staging directory (default from config, ./data)")
	codePage := flag.Int("code-page", 0, "Code page of Character fields (default from config, 28591)")
	deviceID := flag.String("device", "", "Device id that scopes sessions")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *codePage != 0 {
		cfg.CodePage = *codePage
	}
	if *deviceID != "" {
		cfg.DeviceID = *deviceID
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	setupLogging(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "version":
		printVersion()
		return nil
	case "inspect":
		return cmdInspect(os.Stdout, cfg, args)
	}

	store, err := staging.NewStore(cfg.DataDir, slog.Default())
	if err != nil {
		return err
	}
	switch cmd {
	case "import":
		return cmdImport(ctx, os.Stdout, cfg, store, args)
	case "export":
		return cmdExport(ctx, os.Stdout, cfg, store, args)
	case "sessions":
		if len(args) != 0 {
			return fmt.Errorf("unknown arguments: %v", args)
		}
		return cmdSessions(os.Stdout, cfg, store)
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: capre delete ID")
		}
		if _, err := store.Open(args[0]); err != nil {
			return err
		}
		return store.Delete(args[0])
	case "watch":
		dir := cfg.UploadDir
		if len(args) == 1 {
			dir = args[0]
		} else if len(args) > 1 {
			return errors.New("usage: capre watch [DIR]")
		}
		return watch(ctx, newImporter(cfg, store), dir)
	}
	flag.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func setupLogging(level slog.Level) {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			switch t := a.Value.Any().(type) {
			case string:
				if t == "" {
					return slog.Attr{}
				}
			case nil:
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)
}

func newImporter(cfg *config.Config, store *staging.Store) *capre.Importer {
	return &capre.Importer{
		Store:       store,
		Options:     cfg.Options(),
		BatchSize:   cfg.BatchSize,
		MaxFileSize: cfg.MaxFileSize,
		DeviceID:    cfg.DeviceID,
		Log:         slog.Default(),
	}
}

func cmdImport(ctx context.Context, w io.Writer, cfg *config.Config, store *staging.Store, args []string) error {
	set, err := fileset.Validate(args)
	if err != nil {
		return err
	}
	res, err := newImporter(cfg, store).Import(ctx, set)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\t%s\ttabla1: %d\ttabla2: %d\ttabla3: %d\n",
		res.SessionID, res.FarmName, res.Counts["tabla1"], res.Counts["tabla2"], res.Counts["tabla3"])
	return err
}

func cmdExport(ctx context.Context, w io.Writer, cfg *config.Config, store *staging.Store, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", cfg.ExportDir, "Output directory")
	bundle := fs.Bool("zip", false, "Write one ZIP archive instead of three files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: capre export [-o DIR] [-zip] ID")
	}
	exp := &capre.Exporter{Store: store, Options: cfg.Options(), Log: slog.Default()}
	if !*bundle {
		res, err := exp.Export(ctx, fs.Arg(0), *out)
		if err != nil {
			return err
		}
		for _, t := range capre.Tables {
			if _, err := fmt.Fprintln(w, res.Paths[t.Num]); err != nil {
				return err
			}
		}
		return nil
	}

	tmp, err := os.MkdirTemp("", "capre-export-")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.RemoveAll(tmp)
	}()
	res, err := exp.Export(ctx, fs.Arg(0), tmp)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	path, err := capre.WriteBundle(res, *out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, path)
	return err
}

func cmdSessions(w io.Writer, cfg *config.Config, store *staging.Store) error {
	sums, err := capre.Sessions(store, cfg.DeviceID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPREFIX\tFARM\tCREATED\tTABLA2\tTABLA3\tFECULTPRB\tFECPRBACT")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.PrefixCode, s.FarmName, s.CreatedAt.Local().Format(time.DateTime),
			strconv.Itoa(s.Tabla2Count), strconv.Itoa(s.Tabla3Count), dash(s.FecUltPrb), dash(s.FecPrbAct))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printVersion() {
	version, goVersion, revision := "dev", "unknown", "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			version = v
		}
		goVersion = info.GoVersion
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				revision = setting.Value
			}
		}
	}
	fmt.Printf("capre %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
}
