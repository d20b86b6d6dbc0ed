package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aschepis/backscratcher/llmchain/config"
	llmlogger "github.com/aschepis/backscratcher/llmchain/logger"
)

func main() {
	// Parse command-line flags
	var (
		provider = flag.String("provider", "", "Provider to use (openai, ollama, anthropic). If not set, the first configured provider is used")
		model    = flag.String("model", "", "Model to use. If not set, the provider default is used")
		prompt   = flag.String("prompt", "", "Prompt text. If not set, the prompt is read from stdin")
		system   = flag.String("system", "", "Optional system message")
		stream   = flag.Bool("stream", false, "Stream the response as it is generated")
		embed    = flag.Bool("embed", false, "Print the embedding vector of the prompt instead of a completion")
		count    = flag.Bool("tokens", false, "Print the token budget of the prompt without calling the provider")
		logFile  = flag.String("logfile", "", "Path to log file. If not set, logs to stderr")
		pretty   = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	// Validate that --logfile and --pretty are mutually exclusive
	if *logFile != "" && *pretty {
		fmt.Fprintf(os.Stderr, "Error: --logfile and --pretty are mutually exclusive\n")
		os.Exit(1)
	}

	logger, err := llmlogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	configPath := config.GetConfigPath()
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Str("path", configPath).Msg("Failed to load configuration")
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	text := *prompt
	if text == "" {
		data, err := readStdin()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read prompt: %v\n", err)
			os.Exit(1)
		}
		text = data
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := request{
		Provider: *provider,
		Model:    *model,
		Prompt:   text,
		System:   *system,
		Stream:   *stream,
		Embed:    *embed,
		Tokens:   *count,
	}
	if err := run(ctx, cfg, req, logger, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above
	}
}
