package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/picklechips/salary-estimate/internal/bus"
	"github.com/picklechips/salary-estimate/internal/completion"
	"github.com/picklechips/salary-estimate/internal/config"
	"github.com/picklechips/salary-estimate/internal/extract"
	"github.com/picklechips/salary-estimate/internal/metrics"
	"github.com/picklechips/salary-estimate/internal/relay"
	"github.com/picklechips/salary-estimate/internal/usage"
)

func main() {
	// Best effort; all settings have env fallbacks.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	busServer, err := bus.NewServer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded NATS")
	}

	nc, err := busServer.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to embedded NATS")
	}

	collector := metrics.NewCollector()
	recorder := usage.NewRecorder(collector)
	if _, err := recorder.Subscribe(nc); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe usage recorder")
	}

	completions := completion.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.CompletionTimeout)
	extractor := extract.NewClient(cfg.ExtractorBaseURL, cfg.ExtractorAPIKey, cfg.ExtractorTimeout)

	handler := relay.NewHandler(completions, extractor, nc, collector)
	router := relay.NewRouter(handler, collector)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("model", cfg.OpenAIModel).
			Bool("completion_configured", completions.Configured()).
			Bool("extractor_configured", extractor.Configured()).
			Msg("salaryd started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server.Shutdown(shutdownCtx)
	nc.Drain()
	busServer.Shutdown()
	log.Info().Msg("shutdown complete")
}
