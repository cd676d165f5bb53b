// Command ileguard runs the Intent-Locked Execution guard server: a
// dual-path defense layer between clients and an LLM review backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/shieldllm/ileguard/pkg/auth"
	"github.com/shieldllm/ileguard/pkg/config"
	"github.com/shieldllm/ileguard/pkg/defense"
	"github.com/shieldllm/ileguard/pkg/llm"
	"github.com/shieldllm/ileguard/pkg/ratelimit"
	"github.com/shieldllm/ileguard/pkg/server"
	"github.com/shieldllm/ileguard/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(config.GetEnv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	cfg := config.Load()
	if cfg.JWTAlgorithm != "HS256" {
		log.Fatalf("unsupported JWT_ALGORITHM %q, only HS256 is supported", cfg.JWTAlgorithm)
	}

	if cfg.LexiconDir != "" {
		if err := defense.LoadLexicon(cfg.LexiconDir); err != nil {
			log.WithError(err).Fatal("failed to load defense lexicon")
		}
		log.WithField("dir", cfg.LexiconDir).Info("defense lexicon loaded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, mongoClient, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDBName, log)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("mongodb connection failed")
	}

	var limiter defense.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimitPerMinute, log)
		log.WithField("addr", cfg.RedisAddr).Info("redis rate limiter enabled")
	} else {
		limiter = ratelimit.NewSlidingWindow(cfg.RateLimitPerMinute)
	}

	primary := llm.NewClient("primary", cfg.PrimaryBaseURL, cfg.PrimaryModel, cfg.PrimaryAPIKey, cfg.LLMTimeout, log)
	shadow := llm.NewClient("shadow", cfg.ShadowBaseURL, cfg.ShadowModel, cfg.ShadowAPIKey, cfg.LLMTimeout, log)

	thresholds := defense.Thresholds{
		Low:      cfg.ThreshLow,
		High:     cfg.ThreshHigh,
		Critical: cfg.ThreshCritical,
	}
	controller := defense.NewController(thresholds, primary, cfg.LLMMaxTokens)
	pipeline := defense.NewPipeline(st, limiter, primary, shadow, controller,
		cfg.LLMMaxTokens, cfg.InputMaxChars, log)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAccessExpires)

	srv := server.New(st, pipeline, tokens, cfg.PrimaryBaseURL, cfg.ShadowBaseURL, log)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("ileguard listening")
		errCh <- srv.Listen(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server stopped")
		}
	}

	if err := srv.Shutdown(); err != nil {
		log.WithError(err).Warn("server shutdown failed")
	}
	ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := mongoClient.Disconnect(ctx); err != nil {
		log.WithError(err).Warn("mongodb disconnect failed")
	}
	log.Info("shutdown complete")
}
