package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/petrzlen/whisper-relay/internal/config"
	"github.com/petrzlen/whisper-relay/internal/metrics"
	"github.com/petrzlen/whisper-relay/internal/networking"
	"github.com/petrzlen/whisper-relay/internal/utils"
	"github.com/petrzlen/whisper-relay/pkg/relay"
	"github.com/petrzlen/whisper-relay/pkg/transcriber"
	"github.com/petrzlen/whisper-relay/pkg/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func setupSignalHandler(cleanup func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		log.Info().Msgf("Received signal: %v", sig)
		cleanup()
	}()
}

func main() {
	setupStart := time.Now()
	utils.SetupZerolog("info", "console")

	// Load the .env file
	err := godotenv.Load()
	if err != nil {
		log.Warn().Msgf("Cannot load .env file")
	}
	cfg, err := config.Load(os.Args[1:])
	ftl(err)
	utils.SetupZerolog(cfg.LogLevel, cfg.LogFormat)

	receiver, err := upload.NewReceiver(afero.NewOsFs(), upload.Config{
		Dir:          cfg.UploadDir,
		MaxBytes:     cfg.MaxUploadBytes,
		RequireAudio: cfg.RequireAudio,
	})
	ftl(err)
	removed, err := receiver.Purge()
	if err != nil {
		log.Warn().Err(err).Msg("cannot purge stale uploads")
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("upload_dir", receiver.Dir()).Msg("purged stale uploads from a previous run")
	}

	stt, err := transcriber.New(transcriber.Options{
		Provider:      cfg.Provider,
		APIKey:        cfg.OpenAIAPIKey,
		BaseURL:       cfg.ProviderBaseURL,
		Model:         cfg.Model,
		TextQuery:     cfg.TextQuery,
		LanguageQuery: cfg.LanguageQuery,
	})
	ftl(err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(registry)

	handler := networking.NewRouter(networking.RouterConfig{
		Relay:      relay.New(receiver, stt, appMetrics, cfg.ProviderTimeout),
		Metrics:    appMetrics,
		Gatherer:   registry,
		CORSOrigin: cfg.CORSOrigin,
	})
	server := networking.NewHTTPServer(cfg.Address(), handler, cfg.ProviderTimeout)

	shutdownDone := make(chan struct{})
	setupSignalHandler(func() {
		defer close(shutdownDone)
		// In-flight transcriptions get their full deadline, each of them releases its own upload.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout+10*time.Second)
		defer cancel()
		errLog(server.Shutdown(ctx), "server.Shutdown")
	})

	log.Info().
		Str("address", cfg.Address()).
		Str("provider", cfg.Provider).
		Str("provider_base_url", cfg.ProviderBaseURL).
		Str("model", cfg.Model).
		Dur("provider_timeout", cfg.ProviderTimeout).
		Int64("max_upload_bytes", cfg.MaxUploadBytes).
		Str("upload_dir", cfg.UploadDir).
		Dur("setup_time", time.Since(setupStart)).
		Msg("STT backend running")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		ftl(err)
	}
	<-shutdownDone
	log.Info().Msg("STT backend stopped")
}

func ftl(err error) {
	if err != nil {
		debug.PrintStack()
		log.Fatal().Err(err).Msg("sth essential failed")
	}
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
	}
}
