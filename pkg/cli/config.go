package cli

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/adapter"
	server "github.com/m-mizutani/tolerancia/pkg/controller/http"
	"github.com/m-mizutani/tolerancia/pkg/repository"
	"github.com/m-mizutani/tolerancia/pkg/usecase/conversation"
	"github.com/m-mizutani/tolerancia/pkg/usecase/tutor"
	"github.com/m-mizutani/tolerancia/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	quotaBackendMemory    = "memory"
	quotaBackendFirestore = "firestore"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Quota repository
	quotaBackend string
	project      string
	database     string

	// Adapters
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Client side
	serverURL     string
	token         string
	archivePath   string
	archiveBucket string
	archiveKey    string
	maxMessages   int64
}

// loggingFlags returns flags for the logger with destination config
func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("TOLERANCIA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("TOLERANCIA_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// repositoryFlags returns flags for the quota repository with destination config
func repositoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "quota-backend",
			Usage:       "Quota storage backend (memory, firestore)",
			Value:       quotaBackendMemory,
			Sources:     cli.EnvVars("TOLERANCIA_QUOTA_BACKEND"),
			Destination: &cfg.quotaBackend,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// clientFlags returns flags for commands talking to a running server
func clientFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "server",
			Aliases:     []string{"s"},
			Usage:       "Base URL of the tolerancia server",
			Value:       "http://localhost:8080",
			Sources:     cli.EnvVars("TOLERANCIA_SERVER"),
			Destination: &cfg.serverURL,
		},
		&cli.StringFlag{
			Name:        "token",
			Aliases:     []string{"t"},
			Usage:       "API token",
			Sources:     cli.EnvVars("TOLERANCIA_TOKEN"),
			Destination: &cfg.token,
		},
	}
}

// archiveFlags returns flags for the local conversation archive
func archiveFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "archive",
			Usage:       "Path of the local conversation archive",
			Value:       defaultArchivePath(),
			Sources:     cli.EnvVars("TOLERANCIA_ARCHIVE"),
			Destination: &cfg.archivePath,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket for the conversation archive (overrides --archive)",
			Sources:     cli.EnvVars("TOLERANCIA_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
		&cli.StringFlag{
			Name:        "archive-key",
			Usage:       "Key of the conversation archive",
			Value:       conversation.DefaultStorageKey,
			Sources:     cli.EnvVars("TOLERANCIA_ARCHIVE_KEY"),
			Destination: &cfg.archiveKey,
		},
		&cli.IntFlag{
			Name:        "max-messages",
			Usage:       "Messages kept per track",
			Value:       conversation.DefaultMaxMessages,
			Sources:     cli.EnvVars("TOLERANCIA_MAX_MESSAGES"),
			Destination: &cfg.maxMessages,
		},
	}
}

func defaultArchivePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tolerancia.db"
	}
	return dir + "/tolerancia/archive.db"
}

// setupLogger installs the configured logger as default and into ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) (context.Context, error) {
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		return ctx, err
	}
	logger := logging.New(cfg.logLevel, w, logging.WithFormat(format))
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newRepository creates the quota repository. The returned closer is never nil.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	switch cfg.quotaBackend {
	case quotaBackendMemory:
		logging.From(ctx).Warn("in-memory quota store is per process; run a single instance or use --quota-backend=firestore")
		return repository.NewMemory(), func() {}, nil

	case quotaBackendFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required")
		}

		repo, err := repository.New(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		closer := func() {
			if err := repo.Close(); err != nil {
				logging.From(ctx).Warn("failed to close repository", logging.ErrAttr(err))
			}
		}
		return repo, closer, nil

	default:
		return nil, nil, goerr.New("unknown quota backend", goerr.V("backend", cfg.quotaBackend))
	}
}

// newGemini creates a new Gemini adapter instance. It returns nil without error
// when no project is configured so that the server can still start and report
// the missing configuration per request.
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		logging.From(ctx).Warn("gemini-project is not set, AI endpoints will answer 500")
		return nil, nil
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// newPersonas loads the persona file, or the embedded set when path is empty
func (cfg *config) newPersonas(path string) (tutor.Personas, error) {
	personas, err := tutor.LoadPersonas(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load personas")
	}
	return personas, nil
}

// newAuthenticator loads the API token table
func (cfg *config) newAuthenticator(path string) (*server.TokenAuthenticator, error) {
	if path == "" {
		return nil, goerr.New("auth-file is required")
	}
	auth, err := server.LoadTokens(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load token table")
	}
	return auth, nil
}

// newTutorClient creates an HTTP client for a running server
func (cfg *config) newTutorClient() (*adapter.TutorClient, error) {
	if cfg.serverURL == "" {
		return nil, goerr.New("server is required")
	}
	if cfg.token == "" {
		return nil, goerr.New("token is required")
	}
	return adapter.NewTutorClient(cfg.serverURL, cfg.token), nil
}

// newArchiveStorage opens the conversation archive, in Cloud Storage when a
// bucket is given and in a local bbolt file otherwise
func (cfg *config) newArchiveStorage(ctx context.Context) (adapter.Storage, func(), error) {
	if cfg.archiveBucket != "" {
		storage, err := adapter.NewCloudStorage(ctx, cfg.archiveBucket, adapter.WithObjectPrefix("tolerancia/"))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create storage")
		}
		closer := func() {
			if err := storage.Close(); err != nil {
				logging.From(ctx).Warn("failed to close storage", logging.ErrAttr(err))
			}
		}
		return storage, closer, nil
	}

	if cfg.archivePath == "" {
		return nil, nil, goerr.New("archive path is required")
	}
	storage, err := adapter.NewBoltStorage(cfg.archivePath)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open archive", goerr.V("path", cfg.archivePath))
	}
	closer := func() {
		if err := storage.Close(); err != nil {
			logging.From(ctx).Warn("failed to close archive", logging.ErrAttr(err))
		}
	}
	return storage, closer, nil
}
