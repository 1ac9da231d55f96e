package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/calvinhq/calvin/internal/config"
	"github.com/calvinhq/calvin/internal/logger"
	"github.com/calvinhq/calvin/pkg/chat"
	"github.com/calvinhq/calvin/pkg/dispatch"
	"github.com/calvinhq/calvin/pkg/gateway"
	"github.com/calvinhq/calvin/pkg/llm"
	"github.com/calvinhq/calvin/pkg/provider"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Calvin chat service",
	Long: `Start the Calvin chat service in the foreground.
Configured tool providers are connected at startup and the gateway server
accepts websocket chat clients until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lg, err := logger.New(logger.Config{
		Level:   level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	log.Info().Str("version", version).Msg("Starting Calvin")

	registry, err := provider.NewRegistry(providerConfigs(cfg),
		provider.WithConnectTimeout(time.Duration(cfg.Dispatch.ConnectTimeout)*time.Second))
	if err != nil {
		return fmt.Errorf("failed to create provider registry: %w", err)
	}

	initCtx, cancelInit := context.WithCancel(context.Background())
	registry.Initialize(initCtx)
	cancelInit()

	generator, err := llm.NewGenerator(llm.GeneratorConfig{
		Backend: cfg.Generation.Backend,
		BaseURL: cfg.Generation.BaseURL,
		APIKey:  cfg.Generation.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	planner := dispatch.NewPlanner(dispatch.DefaultRules(), cfg.Dispatch.MaxInvocations)
	engine := dispatch.NewEngine(registry,
		time.Duration(cfg.Dispatch.CallTimeout)*time.Second,
		time.Duration(cfg.Dispatch.BatchTimeout)*time.Second)

	session := chat.NewManager(registry, planner, engine, generator, chat.GenerationConfig{
		Model:        cfg.Generation.Model,
		SystemPrompt: cfg.Generation.SystemPrompt,
		Stream:       cfg.Generation.Stream,
		Options: llm.Options{
			Temperature:   cfg.Generation.Temperature,
			TopP:          cfg.Generation.TopP,
			TopK:          cfg.Generation.TopK,
			MaxTokens:     cfg.Generation.MaxTokens,
			RepeatPenalty: cfg.Generation.RepeatPenalty,
			Seed:          cfg.Generation.Seed,
		},
	})

	var server *gateway.Server
	if cfg.Gateway.Enabled {
		server, err = gateway.NewServer(gateway.Config{
			Host:         cfg.Gateway.Host,
			Port:         cfg.Gateway.Port,
			SharedSecret: cfg.Gateway.SharedSecret,
			Session:      session,
			Registry:     registry,
			Generator:    generator,
			Logger:       lg.GetZerolog(),
		})
		if err != nil {
			registry.Shutdown()
			return fmt.Errorf("failed to create gateway server: %w", err)
		}
		if err := server.Start(); err != nil {
			registry.Shutdown()
			return fmt.Errorf("failed to start gateway server: %w", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info().Str("signal", received.String()).Msg("Shutting down")

	if server != nil {
		if err := server.Stop(); err != nil {
			log.Error().Err(err).Msg("Gateway shutdown failed")
		}
	}
	registry.Shutdown()

	return nil
}

func providerConfigs(cfg *config.Config) []provider.Config {
	configs := make([]provider.Config, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		configs = append(configs, provider.Config{
			Name:      p.Name,
			Transport: provider.TransportKind(p.Transport),
			Command:   p.Command,
			Args:      p.Args,
			Env:       p.Env,
			URL:       p.URL,
		})
	}
	return configs
}
