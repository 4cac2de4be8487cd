package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/handler"
	appI18n "github.com/ShahHtetNaing/GATE-IELTS/internal/i18n"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/llm"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gate-ielts",
		Short: "IELTS Academic test simulator powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve)

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `gate-ielts --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP test server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("provider", llm.ProviderOpenAI, "Content and grading provider (openai, gemini)")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("speech-model", "tts-1", "Text-to-speech model for listening audio")
	f.String("speech-voice", "alloy", "Text-to-speech voice")
	f.String("transcribe-model", "whisper-1", "Speech-to-text model for speaking submissions")
	f.String("gemini-key", "", "Google AI API key (gemini provider)")
	f.String("gemini-model", "gemini-1.5-flash", "Gemini model name (gemini provider)")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.StringSlice("allowed-origins", nil, "Allowed WebSocket origins (empty = allow all)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("GATEIELTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gate-ielts")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gate-ielts")
	v.AddConfigPath("/etc/gate-ielts")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create content and grading service.
	svc, err := llm.New(llm.Config{
		Provider:        strings.ToLower(v.GetString("provider")),
		BaseURL:         v.GetString("llm-url"),
		APIKey:          v.GetString("llm-key"),
		Model:           v.GetString("llm-model"),
		SpeechModel:     v.GetString("speech-model"),
		SpeechVoice:     v.GetString("speech-voice"),
		TranscribeModel: v.GetString("transcribe-model"),
		GeminiKey:       v.GetString("gemini-key"),
		GeminiModel:     v.GetString("gemini-model"),
	})
	if err != nil {
		return fmt.Errorf("create LLM service: %w", err)
	}
	if p, ok := svc.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "provider", v.GetString("provider"), "model", v.GetString("llm-model"))
	}

	cfg := model.AppConfig{
		Lang:           lang,
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
	}

	h, err := handler.New(svc, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"provider", v.GetString("provider"),
		"model", v.GetString("llm-model"),
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}
