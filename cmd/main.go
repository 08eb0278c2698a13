package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/meghashyamc/glimpse/api"
	"github.com/meghashyamc/glimpse/config"
	"github.com/meghashyamc/glimpse/db/indexfile"
	"github.com/meghashyamc/glimpse/db/kvdb"
	"github.com/meghashyamc/glimpse/logger"
	"github.com/meghashyamc/glimpse/services/index"
	"github.com/meghashyamc/glimpse/services/search"
	"github.com/meghashyamc/glimpse/validation"
)

const usage = `usage: glimpse <command> [flags]

commands:
  build    build a search index from the configured documents
  search   query an index from the command line
  serve    serve queries over HTTP

run 'glimpse <command> -h' for command flags
`

func main() {
	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log := logger.New()

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:], log)
	case "search":
		err = runSearch(os.Args[2:], log)
	case "serve":
		err = runServe(os.Args[2:], log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func runBuild(args []string, log logger.Logger) error {
	flags := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := flags.String("config", "glimpse.toml", "path to the build configuration file")
	flags.Parse(args)

	cfg, err := loadValidatedConfig(*configPath, log)
	if err != nil {
		return err
	}

	var store index.MetadataStore
	if boltDB, err := kvdb.New(log, cfg.Server.MetadataDB); err != nil {
		log.Warn("metadata store unavailable, continuing without build bookkeeping", "err", err.Error())
	} else {
		defer boltDB.Close()
		store = boltDB
	}

	blob, summary, err := index.New(log, cfg, store).Build(context.Background())
	if err != nil {
		return err
	}

	if err := os.WriteFile(cfg.Output.IndexPath, blob, 0644); err != nil {
		return fmt.Errorf("could not write index to %s: %w", cfg.Output.IndexPath, err)
	}

	fmt.Printf("indexed %d documents (%d words, %d postings) into %s (%d bytes)\n",
		summary.DocumentCount, summary.WordCount, summary.PostingCount, cfg.Output.IndexPath, summary.IndexBytes)
	for _, warning := range summary.Warnings {
		fmt.Printf("warning: %s: %s\n", warning.Path, warning.Reason)
	}
	return nil
}

func runSearch(args []string, log logger.Logger) error {
	flags := flag.NewFlagSet("search", flag.ExitOnError)
	indexPath := flags.String("index", "glimpse.idx", "path to the index file")
	flags.Parse(args)

	if flags.NArg() < 1 {
		return fmt.Errorf("search requires a query argument")
	}
	query := flags.Arg(0)

	reader, err := loadIndex(*indexPath)
	if err != nil {
		return err
	}

	results, _ := search.New(log, reader).Search(query, nil)
	if results == nil {
		results = []search.Result{}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

func runServe(args []string, log logger.Logger) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", "glimpse.toml", "path to the configuration file")
	indexPath := flags.String("index", "", "path to the index file (defaults to the configured output path)")
	flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	path := *indexPath
	if path == "" {
		path = cfg.Output.IndexPath
	}
	reader, err := loadIndex(path)
	if err != nil {
		return err
	}

	log.Info("serving index", "path", path, "documents", reader.DocCount(), "words", reader.WordCount(), "port", cfg.Server.Port)
	return api.Run(context.Background(), cfg, log, reader)
}

func loadValidatedConfig(path string, log logger.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	validator, err := validation.New(log)
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadIndex(path string) (*indexfile.Reader, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read index file %s: %w", path, err)
	}
	reader, err := indexfile.Load(blob)
	if err != nil {
		return nil, fmt.Errorf("could not load index file %s: %w", path, err)
	}
	return reader, nil
}
