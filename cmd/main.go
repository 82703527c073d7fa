package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/logger"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/server"
	"pdf-rag/internal/splitter"
	"pdf-rag/internal/tui"
)

var cli struct {
	Config string `help:"Path to the YAML config file" default:"./configs/config.yaml"`

	Serve  serveCmd  `cmd:"" help:"Run the HTTP API"`
	Ask    askCmd    `cmd:"" help:"Answer one question about a document"`
	Chat   chatCmd   `cmd:"" help:"Chat with a document in the terminal"`
	Chunks chunksCmd `cmd:"" help:"Print the chunks of a document without embedding it"`
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx := kong.Parse(&cli,
		kong.Name("pdf-rag"),
		kong.Description("Ask questions about a PDF document"),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		stop()
		os.Exit(1)
	}

	if err := kctx.Run(cfg); err != nil {
		log.Error().Err(err).Str("command", kctx.Command()).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

type serveCmd struct {
	Fresh bool `help:"Drop chunks left in PostgreSQL by earlier runs before serving"`
}

func (c *serveCmd) Run(ctx context.Context, cfg *config.Config) error {
	closer, err := logger.Setup(&cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	if missing := cfg.MissingKeys(); len(missing) > 0 {
		log.Warn().Strs("keys", missing).Msg("API keys are not set; processing and answering will be refused until they are")
	}

	manager, cleanup, err := newManager(ctx, cfg, c.Fresh)
	if err != nil {
		return err
	}
	defer cleanup()

	return server.New(cfg, manager).Run(ctx)
}

type askCmd struct {
	File     string `help:"Path to the PDF document" required:"" type:"existingfile"`
	Question string `help:"Question to be answered" required:""`
}

func (c *askCmd) Run(ctx context.Context, cfg *config.Config) error {
	closer, err := logger.Setup(&cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	session, cleanup, err := openSession(ctx, cfg, c.File)
	if err != nil {
		return err
	}
	defer cleanup()

	turn, err := session.Ask(ctx, c.Question)
	if err != nil {
		return err
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", turn.Question)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Print(llmservice.FormatSources(turn.Sources))

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", turn.Answer)
	return nil
}

type chatCmd struct {
	File string `help:"Path to the PDF document" required:"" type:"existingfile"`
}

func (c *chatCmd) Run(ctx context.Context, cfg *config.Config) error {
	closer, err := logger.SetupFile(&cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	fmt.Printf("Processing %s...\n", filepath.Base(c.File))
	session, cleanup, err := openSession(ctx, cfg, c.File)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	info, err := session.Document(ctx)
	if err != nil {
		return err
	}

	m := tui.New(ctx, session, filepath.Base(c.File), data, info.Stats)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

type chunksCmd struct {
	File         string `help:"Path to the document" required:"" type:"existingfile"`
	ChunkSize    int    `help:"Chunk size in characters (0 uses the config value)" default:"0"`
	ChunkOverlap int    `help:"Chunk overlap in characters (-1 uses the config value)" default:"-1"`
}

func (c *chunksCmd) Run(ctx context.Context, cfg *config.Config) error {
	logger.SetupConsole(zerolog.InfoLevel)

	size, overlap := cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap
	if c.ChunkSize > 0 {
		size = c.ChunkSize
	}
	if c.ChunkOverlap >= 0 {
		overlap = c.ChunkOverlap
	}

	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	doc, err := parser.Load(filepath.Base(c.File), data)
	if err != nil {
		return err
	}
	sp, err := splitter.New(cfg.RAG.Splitter, size, overlap)
	if err != nil {
		return err
	}
	chunks, err := sp.Split(doc)
	if err != nil {
		return err
	}

	log.Info().Str("file", doc.Name).Int("pages", doc.PageCount()).Int("chunks", len(chunks)).Msg("Parsed content")
	return helper.PrettyPrint(os.Stdout, chunks)
}

// openSession creates a session and processes file in it.
func openSession(ctx context.Context, cfg *config.Config, file string) (*rag.RAG, func(), error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, err
	}

	manager, cleanup, err := newManager(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	session, err := manager.Create(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := session.Ingest(ctx, filepath.Base(file), data); err != nil {
		cleanup()
		return nil, nil, err
	}
	return session, cleanup, nil
}

// newManager wires the session manager to the configured vector index.
func newManager(ctx context.Context, cfg *config.Config, fresh bool) (*rag.Manager, func(), error) {
	providers := rag.NewConfigProviders(cfg)

	if cfg.RAG.Index != config.IndexPostgres {
		m := rag.NewManager(cfg, providers, rag.MemoryStoreFactory())
		return m, func() { closeLogged(m, "sessions") }, nil
	}

	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to database: %w", err)
	}
	dbInstance := db.NewDB(dbClient, cfg.Database.Debug)
	if fresh {
		if err := db.DropDocuments(ctx, dbInstance); err != nil {
			_ = dbInstance.Close()
			return nil, nil, fmt.Errorf("error clearing documents: %w", err)
		}
		log.Info().Msg("Dropped stored documents")
	}
	if err := db.InitDB(ctx, dbInstance); err != nil {
		_ = dbInstance.Close()
		return nil, nil, fmt.Errorf("error initializing database: %w", err)
	}

	m := rag.NewManager(cfg, providers, rag.PostgresStoreFactory(dbInstance))
	return m, func() {
		closeLogged(m, "sessions")
		closeLogged(dbInstance, "database")
	}, nil
}

func closeLogged(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("resource", what).Msg("Error closing")
	}
}
