package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmchain/config"
	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
)

// request is one command invocation.
type request struct {
	Provider string
	Model    string
	Prompt   string
	System   string
	Stream   bool
	Embed    bool
	Tokens   bool
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func run(ctx context.Context, cfg *config.Config, req request, logger zerolog.Logger, out io.Writer) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if req.Embed && (req.Stream || req.Tokens) {
		return errors.New("-embed cannot be combined with -stream or -tokens")
	}

	if cfg.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ChatTimeout)*time.Second)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	metrics, err := retry.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	defer logRetryMetrics(logger, reg)

	registry := cfg.Registry()

	if req.Embed {
		provider := req.Provider
		if provider == "" {
			provider = llm.ProviderOpenAI
		}
		key, err := registry.ResolveEmbeddings(provider, req.Model)
		if err != nil {
			return err
		}
		emb, err := config.NewEmbeddings(cfg, key, logger, metrics)
		if err != nil {
			return err
		}
		vec, err := emb.EmbedQuery(ctx, req.Prompt)
		if err != nil {
			return err
		}
		return writeVector(out, vec)
	}

	var prefs []llm.Preference
	if req.Provider != "" {
		prefs = []llm.Preference{{Provider: req.Provider, Model: req.Model}}
	}
	key, err := registry.Resolve(prefs)
	if err != nil {
		return err
	}
	if req.Provider == "" && req.Model != "" {
		key.Model = req.Model
	}
	logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Resolved provider")

	exec, err := config.NewExecutor(cfg, key, logger, metrics)
	if err != nil {
		return err
	}

	prompt := buildPrompt(req)
	opts := &llm.Options{Model: key.Model, Stream: llm.Bool(req.Stream)}

	if req.Tokens {
		count, err := exec.TokensUsed(opts, prompt)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "tokens_used=%d max_tokens=%d tokens_remaining=%d\n",
			count.TokensUsed, count.MaxTokens, count.TokensRemaining())
		return err
	}

	result, err := exec.Execute(ctx, opts, prompt)
	if err != nil {
		return err
	}
	if !result.IsStreaming() {
		text, err := result.Text(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, text)
		return err
	}
	return writeStream(out, result.Stream())
}

func buildPrompt(req request) llm.Prompt {
	if req.System == "" {
		return llm.NewTextPrompt(req.Prompt)
	}
	return llm.NewChatPrompt(
		llm.NewChatMessage(llm.RoleSystem, req.System),
		llm.NewChatMessage(llm.RoleUser, req.Prompt),
	)
}

func writeStream(out io.Writer, stream llm.SegmentStream) error {
	defer stream.Close() //nolint:errcheck // No remedy for stream close errors
	for stream.Next() {
		seg := stream.Segment()
		if seg.Kind != llm.SegmentContent {
			continue
		}
		if _, err := io.WriteString(out, seg.Content); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}

func writeVector(out io.Writer, vec []float32) error {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%g", v)
	}
	_, err := fmt.Fprintf(out, "[%s]\n", strings.Join(parts, ","))
	return err
}

func logRetryMetrics(logger zerolog.Logger, reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to gather retry metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			ev := logger.Debug().Str("metric", mf.GetName()).Float64("value", m.GetCounter().GetValue())
			for _, lp := range m.GetLabel() {
				ev = ev.Str(lp.GetName(), lp.GetValue())
			}
			ev.Msg("Retry metric")
		}
	}
}
