package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/bookhook/internal/autobot"
	"example.com/bookhook/internal/config"
	"example.com/bookhook/internal/tgate"
)

func main() {
	configPath := flag.String("config", "", "путь к bookhook.toml (по умолчанию ищется рядом и в $HOME)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config invalid")
	}

	setupLogging(cfg.Log.Level)

	client := tgate.New(tgate.GateConfig{
		Addr:      cfg.Gateway.Addr,
		AuthToken: cfg.Gateway.AuthToken,
		BotChatID: cfg.Gateway.BotChatID,
	})

	bot, err := autobot.New(optionsFromConfig(cfg), client)
	if err != nil {
		log.Fatal().Err(err).Msg("automation init failed")
	}

	// события шлюза напрямую в пайплайн ядра
	client.OnConnecting = func() { log.Info().Msg("connecting to gateway...") }
	client.OnConnected = func() { log.Info().Msg("gateway connected") }
	client.OnDisconnected = func() { log.Info().Msg("gateway disconnected") }
	client.OnError = func(err error) { log.Warn().Err(err).Msg("gateway error") }
	client.OnEvent = bot.HandleEvent

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bot.Start(); err != nil {
		log.Fatal().Err(err).Msg("automation start failed")
	}
	defer bot.Stop()

	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("gateway connect failed")
	}
	defer client.Disconnect()

	log.Info().Msg("bookhook running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutting down")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func optionsFromConfig(cfg *config.Config) autobot.Options {
	return autobot.Options{
		TriggerText: cfg.Trigger.Text,

		Button1Keywords: cfg.Steps.Button1Keywords,
		Button2Keywords: cfg.Steps.Button2Keywords,
		Button2Index:    cfg.Steps.Button2Index,
		Button3Keywords: cfg.Steps.Button3Keywords,
		SuccessPhrases:  cfg.Steps.SuccessPhrases,

		Step1Timeout: cfg.Steps.Step1Timeout,
		Step2Timeout: cfg.Steps.Step2Timeout,
		Step3Timeout: cfg.Steps.Step3Timeout,

		PostTriggerDelay: cfg.Timing.PostTriggerDelay,
		InterClickDelay:  cfg.Timing.InterClickDelay,

		Strategy:   cfg.Stabilization.Strategy,
		Threshold:  cfg.Stabilization.Threshold,
		Confidence: cfg.Stabilization.Confidence,

		MaxAttempts:  cfg.Retry.MaxAttempts,
		BaseDelay:    cfg.Retry.BaseDelay,
		FloodCeiling: cfg.Retry.FloodCeiling,

		CacheSize:     cfg.Cache.Messages,
		HistoryWindow: cfg.Cache.HistoryWindow,

		ReportInterval: cfg.Log.ReportInterval,
	}
}
