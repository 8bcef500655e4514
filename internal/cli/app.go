package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"studygen/internal/config"
	"studygen/internal/logger"
	"studygen/internal/services"
)

// app holds the wired services shared by the subcommands.
type app struct {
	cfg       config.Config
	log       *logger.Logger
	extractor *services.ExtractorService
	study     *services.StudyService
}

// newLogger builds the process logger, honouring --log-mode over LOG_MODE.
func newLogger(cmd *cobra.Command, cfg config.Config) (*logger.Logger, error) {
	mode := cfg.LogMode
	if m, _ := cmd.Flags().GetString("log-mode"); m != "" {
		mode = m
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func newApp(cfg config.Config, log *logger.Logger) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	prompts, err := services.NewPromptBuilder()
	if err != nil {
		return nil, err
	}
	ai := services.NewAIService(services.AIConfig{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
		MaxAttempts: cfg.LLMMaxAttempts,
	}, log)

	extractor := services.NewExtractorService(log)
	study := services.NewStudyService(
		services.NewDocumentService(cfg.UploadDir),
		extractor,
		services.NewGenerationService(ai, prompts, cfg.VariantConcurrency, log),
		services.NewExportService(cfg.ExportDir, cfg.PublicPathPrefix, log),
		cfg.RequestTimeout,
		log,
	)
	return &app{cfg: cfg, log: log, extractor: extractor, study: study}, nil
}
