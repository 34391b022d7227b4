package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/credstore"
	"github.com/jrsteele09/betul-abla-portal/internal/config"
	"github.com/jrsteele09/betul-abla-portal/server"
	"github.com/jrsteele09/betul-abla-portal/server/portalsession"
	"github.com/jrsteele09/betul-abla-portal/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const sweepInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %s\n", err)
	}

	c := config.New()
	setupLogging(c.GetEnv())

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Bytes("stack", debug.Stack()).Msgf("Recovered from panic: %v", r)
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open, closeStore, err := credentialOpener(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions := portalsession.New(open, apiclient.ConfigFrom(c),
		portalsession.WithIdleTimeout(c.GetMaxSessionIdle()),
		portalsession.WithSessionOptions(session.OptionsFrom(c)...),
	)

	handler, err := server.New(c, sessions)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(httpServer)
	})
	g.Go(func() error {
		return sessions.Run(gctx, sweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpServer)
	})

	returnError = g.Wait()
	sessions.Wait()
	return returnError
}

// credentialOpener builds the per-session credential storage for the configured backend
func credentialOpener(ctx context.Context, c config.Config) (credstore.Opener, func(), error) {
	cfg := credstore.OpenerConfig{
		Backend: c.GetCredentialBackend(),
		Dir:     c.GetDataFolder(),
		Secret:  c.GetCredentialSecret(),
		TTL:     c.GetCredentialTTL(),
	}
	closeStore := func() {}

	if cfg.Backend == config.CredentialBackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", c.GetRedisAddr(), err)
		}
		cfg.Redis = client
		closeStore = func() {
			if err := client.Close(); err != nil {
				log.Err(err).Msg("Failed to close redis client")
			}
		}
	}

	open, err := credstore.NewOpener(cfg)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	log.Info().Str("backend", cfg.Backend).Msg("Credential storage ready")
	return open, closeStore, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
