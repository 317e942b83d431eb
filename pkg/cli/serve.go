package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	server "github.com/m-mizutani/tolerancia/pkg/controller/http"
	"github.com/m-mizutani/tolerancia/pkg/usecase/phrase"
	"github.com/m-mizutani/tolerancia/pkg/usecase/quota"
	"github.com/m-mizutani/tolerancia/pkg/usecase/tutor"
	"github.com/m-mizutani/tolerancia/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg           config
		addr          string
		authFile      string
		personaFile   string
		generateLimit int64
		chatLimit     int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("TOLERANCIA_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "auth-file",
			Usage:       "YAML file of API tokens",
			Sources:     cli.EnvVars("TOLERANCIA_AUTH_FILE"),
			Destination: &authFile,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "persona-file",
			Usage:       "YAML file of tutor personas per track (embedded set if omitted)",
			Sources:     cli.EnvVars("TOLERANCIA_PERSONA_FILE"),
			Destination: &personaFile,
		},
		&cli.IntFlag{
			Name:        "generate-limit",
			Usage:       "Daily transformations per caller",
			Value:       server.DefaultGenerateLimit,
			Sources:     cli.EnvVars("TOLERANCIA_GENERATE_LIMIT"),
			Destination: &generateLimit,
		},
		&cli.IntFlag{
			Name:        "chat-limit",
			Usage:       "Daily chat messages per caller",
			Value:       server.DefaultChatLimit,
			Sources:     cli.EnvVars("TOLERANCIA_CHAT_LIMIT"),
			Destination: &chatLimit,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server for /generate and /chat",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, os.Stdout)
			if err != nil {
				return err
			}
			if generateLimit <= 0 || chatLimit <= 0 {
				return goerr.New("limits must be positive",
					goerr.V("generate_limit", generateLimit),
					goerr.V("chat_limit", chatLimit))
			}

			// Initialize dependencies
			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			personas, err := cfg.newPersonas(personaFile)
			if err != nil {
				return err
			}

			auth, err := cfg.newAuthenticator(authFile)
			if err != nil {
				return err
			}

			handler := server.New(quota.New(repo), auth,
				server.WithGenerator(phrase.NewGenerator(gemini)),
				server.WithResponder(tutor.NewDispatcher(gemini, tutor.WithPersonas(personas))),
				server.WithGenerateLimit(int(generateLimit)),
				server.WithChatLimit(int(chatLimit)),
			)

			return runServer(ctx, addr, handler)
		},
	}
}

// runServer serves handler until SIGINT/SIGTERM, then drains in-flight requests
func runServer(ctx context.Context, addr string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.From(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return logging.With(context.Background(), logger) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "server stopped", goerr.V("addr", addr))
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server")
	}
	return nil
}
