// Command peroxs manages an encrypted key database for LUKS disk
// containers: enrolling new or existing volumes, opening them with the
// recorded key source, registering already-keyed containers, and
// listing what is tracked.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/peroxs/cryptsetup/pkg/config"
	"github.com/peroxs/cryptsetup/pkg/db"
	"github.com/peroxs/cryptsetup/pkg/engine"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/keysource"
	"github.com/peroxs/cryptsetup/pkg/logging"
	"github.com/peroxs/cryptsetup/pkg/registry"
	"github.com/peroxs/cryptsetup/pkg/token"
	"github.com/peroxs/cryptsetup/pkg/volume"
	"github.com/peroxs/cryptsetup/pkg/volume/luks"
)

var version = "0.1.0"

type cliConfig struct {
	configPath   string
	dbPath       string
	verbose      bool
	printVersion bool

	name        string
	format      bool
	forceFormat bool
	keyFile     string
	tokenSlot   int
	tokenHybrid bool
}

func main() {
	cfg := &cliConfig{}

	flag.StringVar(&cfg.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&cfg.dbPath, "db", "", "Path to peroxs-db.json (overrides config)")
	flag.BoolVar(&cfg.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&cfg.printVersion, "version", false, "Print version and exit")

	flag.StringVar(&cfg.name, "name", "", "Friendly name for the volume")
	flag.BoolVar(&cfg.format, "format", false, "Write a brand new LUKS header before enrolling")
	flag.BoolVar(&cfg.forceFormat, "force", false, "Allow formatting over an existing header")
	flag.StringVar(&cfg.keyFile, "keyfile", "", "Path to a key file, relative to the database directory")
	flag.IntVar(&cfg.tokenSlot, "slot", 2, "Hardware token challenge-response slot")
	flag.BoolVar(&cfg.tokenHybrid, "hybrid", false, "Use hybrid challenge-response token derivation")

	flag.Parse()

	if cfg.printVersion {
		fmt.Println("peroxs", version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if err := run(cfg, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: peroxs [flags] <init|enroll|open|register|list> ...")
	fmt.Fprintln(os.Stderr, "  enroll {keyfile|passphrase|token} <path>...")
	fmt.Fprintln(os.Stderr, "  register {keyfile|passphrase} <path>")
	fmt.Fprintln(os.Stderr, "  open <path|name|uuid>...")
	fmt.Fprintln(os.Stderr, "  list")
}

func run(cliCfg *cliConfig, command string, args []string) error {
	appCfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	level := appCfg.Logging.Level
	if cliCfg.verbose {
		level = "debug"
	}
	output := appCfg.Logging.Output
	if output == "file" {
		output = appCfg.Logging.File
	}
	if err := logging.Initialize(level, appCfg.Logging.Format, output); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	switch command {
	case "init":
		return cmdInit(appCfg)
	case "enroll":
		return cmdEnroll(cliCfg, appCfg, args)
	case "register":
		return cmdRegister(cliCfg, appCfg, args)
	case "open":
		return cmdOpen(cliCfg, appCfg, args)
	case "list":
		return cmdList(appCfg)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadConfig(cliCfg *cliConfig) (*config.Config, error) {
	appCfg := config.DefaultConfig()

	if cliCfg.configPath != "" {
		loaded, err := config.Load(cliCfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		appCfg = loaded
	}

	if cliCfg.dbPath != "" {
		appCfg.Database.Path = cliCfg.dbPath
	}

	return appCfg, nil
}

func openOrCreateDatabase(path string) (*db.Database, error) {
	database, err := db.OpenAt(path)
	if err == nil {
		return database, nil
	}

	var notFound *perr.DatabaseNotFound
	if !errors.As(err, &notFound) {
		return nil, err
	}
	return db.New(db.TypeOperation), nil
}

func cmdInit(appCfg *config.Config) error {
	dbDir := filepath.Dir(appCfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	if _, err := os.Stat(appCfg.Database.Path); err == nil {
		return fmt.Errorf("database already exists at %s", appCfg.Database.Path)
	}

	database := db.New(db.TypeOperation)
	if err := database.SaveTo(appCfg.Database.Path); err != nil {
		return err
	}

	logging.Info("initialized database", "path", appCfg.Database.Path)
	return nil
}

func newEngine(appCfg *config.Config) (*engine.Engine, string, error) {
	dbDir := filepath.Dir(appCfg.Database.Path)

	ksCfg := keysource.Config{
		TerminalTimeout: time.Duration(appCfg.Input.TerminalTimeoutSeconds) * time.Second,
		UsePinentry:     appCfg.Input.UsePinentry,
		PinentryProgram: appCfg.Input.PinentryProgram,
	}

	if dev, err := token.Open(); err == nil {
		ksCfg.TokenDevice = dev
	}

	if appCfg.Volume.DebugLogging {
		luks.EnableDebugLogging()
	}

	return engine.New(luks.Open, registry.New(), ksCfg, dbDir), dbDir, nil
}

func cmdEnroll(cliCfg *cliConfig, appCfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("enroll requires a source kind and at least one disk path")
	}
	kind, paths := args[0], args[1:]

	database, err := openOrCreateDatabase(appCfg.Database.Path)
	if err != nil {
		return err
	}

	entrySource, err := entrySourceFor(kind, cliCfg)
	if err != nil {
		return err
	}

	var name *string
	if cliCfg.name != "" {
		name = &cliCfg.name
	}

	e, _, err := newEngine(appCfg)
	if err != nil {
		return err
	}

	entries, err := e.EnrollDisks(database, appCfg.Database.Path, paths, engine.EnrollParams{
		Name:         name,
		Entry:        entrySource,
		Format:       cliCfg.format,
		ForceFormat:  cliCfg.forceFormat,
		FormatParams: defaultFormatParams(appCfg),
		IterationMs:  appCfg.Volume.IterationMs,
	})
	if err != nil {
		logging.Global().ErrorEvent(context.Background(), "enroll failed", err, slog.String("kind", kind))
		return err
	}

	for _, entry := range entries {
		logging.Global().WithVolume(entry.VolumeID.String()).SecurityEvent(context.Background(), "disk enrolled",
			slog.String("kind", kind), slog.Bool("format", cliCfg.format))
		fmt.Printf("enrolled %s\n", entry.VolumeID)
	}
	return nil
}

func cmdRegister(cliCfg *cliConfig, appCfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("register requires a source kind and exactly one disk path")
	}
	kind, path := args[0], args[1]

	entrySource, err := entrySourceFor(kind, cliCfg)
	if err != nil {
		return err
	}
	if entrySource.Kind == db.EntryTypeToken {
		return engine.ErrTokenNotRegisterable{}
	}

	database, err := openOrCreateDatabase(appCfg.Database.Path)
	if err != nil {
		return err
	}

	var name *string
	if cliCfg.name != "" {
		name = &cliCfg.name
	}

	e, _, err := newEngine(appCfg)
	if err != nil {
		return err
	}

	entry, err := e.RegisterDisk(database, appCfg.Database.Path, path, engine.RegisterParams{
		Name:  name,
		Entry: entrySource,
	})
	if err != nil {
		logging.Global().ErrorEvent(context.Background(), "register failed", err, slog.String("path", path))
		return err
	}

	logging.Global().WithVolume(entry.VolumeID.String()).SecurityEvent(context.Background(), "disk registered",
		slog.String("kind", kind), slog.String("path", path))
	fmt.Printf("registered %s\n", entry.VolumeID)
	return nil
}

func cmdOpen(cliCfg *cliConfig, appCfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("open requires at least one disk reference")
	}

	database, err := db.OpenAt(appCfg.Database.Path)
	if err != nil {
		return err
	}

	var name *string
	if cliCfg.name != "" {
		name = &cliCfg.name
	}

	e, _, err := newEngine(appCfg)
	if err != nil {
		return err
	}

	names, err := e.OpenDisks(database, args, name)
	if err != nil {
		logging.Global().ErrorEvent(context.Background(), "open failed", err, slog.Any("references", args))
		return err
	}

	for _, mapperName := range names {
		logging.Global().WithVolume(mapperName).SecurityEvent(context.Background(), "disk opened",
			slog.String("mapper_name", mapperName))
		fmt.Printf("opened as %s\n", mapperName)
	}
	return nil
}

func cmdList(appCfg *config.Config) error {
	database, err := db.OpenAt(appCfg.Database.Path)
	if err != nil {
		return err
	}

	e, _, err := newEngine(appCfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tUUID\tSOURCE\tPRESENT\tACTIVE")
	for _, status := range e.Status(database) {
		name := "-"
		if status.Entry.VolumeID.Name != nil {
			name = *status.Entry.VolumeID.Name
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", name, status.Entry.VolumeID.UUID, status.Entry.Type, status.Present, status.Active)
	}
	return nil
}

func entrySourceFor(kind string, cliCfg *cliConfig) (engine.EntrySource, error) {
	switch kind {
	case "keyfile":
		if cliCfg.keyFile == "" {
			return engine.EntrySource{}, fmt.Errorf("keyfile source requires -keyfile")
		}
		return engine.EntrySource{Kind: db.EntryTypeKeyfile, KeyFile: cliCfg.keyFile}, nil
	case "passphrase":
		return engine.EntrySource{Kind: db.EntryTypePassphrase}, nil
	case "token":
		mode := db.TokenModeChallengeResponse
		if cliCfg.tokenHybrid {
			mode = db.TokenModeHybridChallengeResponse
		}
		return engine.EntrySource{Kind: db.EntryTypeToken, TokenSlot: cliCfg.tokenSlot, TokenMode: mode}, nil
	default:
		return engine.EntrySource{}, fmt.Errorf("unknown source kind %q (want keyfile, passphrase or token)", kind)
	}
}

func defaultFormatParams(appCfg *config.Config) volume.FormatParams {
	if appCfg.Volume.PreferredVersion == "v1" {
		return volume.FormatParams{V1: &volume.V1Params{
			Cipher:      "aes",
			CipherMode:  "xts-plain64",
			Hash:        "sha256",
			MKBits:      512,
			IterationMs: appCfg.Volume.IterationMs,
		}}
	}

	return volume.FormatParams{V2: &volume.V2Params{
		Cipher:     "aes",
		CipherMode: "xts-plain64",
		MKBits:     512,
		PBKDF: volume.PBKDFParams{
			Algorithm: "argon2id",
			Hash:      "sha256",
			TimeMs:    appCfg.Volume.IterationMs,
			MemoryKB:  1048576,
			Threads:   4,
		},
	}}
}
