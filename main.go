package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/audio"
	"github.com/room4-2/zellolink/auth"
	"github.com/room4-2/zellolink/config"
	"github.com/room4-2/zellolink/gemini"
	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/metrics"
	"github.com/room4-2/zellolink/recorder"
	"github.com/room4-2/zellolink/registry"
	"github.com/room4-2/zellolink/server"
	"github.com/room4-2/zellolink/session"
	"github.com/room4-2/zellolink/stream"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}
	log.SetLevel(cfg.LogLevel)

	tokens, err := auth.NewLocalTokenManager(cfg.Issuer, cfg.PrivateKeyPath, auth.WithExpiration(cfg.TokenExpiration))
	if err != nil {
		log.WithError(err).Fatal("Failed to load private key")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(promRegistry)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	streams := registry.Connect(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.StreamTTL, log)
	defer streams.Close()
	go streams.StartPruneRoutine(ctx, time.Minute)

	recorderOpts := []recorder.Option{
		recorder.WithMaxSize(cfg.MaxBufferSize),
		recorder.WithLogger(log),
		recorder.WithMetrics(m),
	}
	if cfg.GeminiAPIKey != "" {
		transcriber, err := gemini.NewTranscriber(ctx, cfg.GeminiAPIKey, gemini.WithLogger(log))
		if err != nil {
			log.WithError(err).Fatal("Failed to create transcriber")
		}
		defer transcriber.Close()
		recorderOpts = append(recorderOpts, recorder.WithTranscriber(transcriber))
	}
	rec, err := recorder.New(cfg.OutputDir, recorderOpts...)
	if err != nil {
		log.WithError(err).Fatal("Failed to create recorder")
	}

	log.WithField("url", cfg.ServerURL).Info("🔌 Connecting")
	transport, err := session.DialWebSocket(ctx, cfg.ServerURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect")
	}
	defer transport.Close()

	var sess *session.Session
	handlers := session.Handlers{
		OnStream: func(ctx context.Context, start *messages.StreamStart, st *stream.IncomingAudioStream) {
			streams.Track(ctx, sess.ID, start, time.Now())
			defer streams.Untrack(ctx, st.ID)

			_, err := rec.Record(ctx, start, st)
			switch {
			case err == nil:
			case errors.Is(err, recorder.ErrBufferFull), errors.Is(err, recorder.ErrEmptyRecording):
				log.WithField("stream_id", st.ID).WithError(err).Warn("⚠️ Recording skipped")
			default:
				log.WithField("stream_id", st.ID).WithError(err).Error("❌ Recording failed")
			}
		},
	}

	sess = session.New(session.Config{
		Username:     cfg.Username,
		Password:     cfg.Password,
		Channels:     cfg.Channels,
		StreamPolicy: cfg.StreamPolicy,
	}, transport, tokens, audio.NewOpusDecoder, handlers, session.WithLogger(log), session.WithMetrics(m))

	var status *server.Server
	if cfg.StatusPort != 0 {
		status = server.NewStatusServer(cfg.StatusPort, sess, streams, promRegistry, log)
		go func() {
			if err := status.Start(); err != nil {
				log.WithError(err).Error("❌ Status server error")
			}
		}()
	}

	runErr := sess.Run(ctx)

	if status != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := status.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("⚠️ Status server shutdown error")
		}
		shutdownCancel()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.WithError(runErr).Error("❌ Session ended")
		os.Exit(1)
	}
	log.Info("Listener stopped")
}
