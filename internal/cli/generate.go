package cli

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"studygen/internal/config"
	"studygen/internal/models"
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>...",
	Short: "Generate study material from local documents and export it as PDF",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	addGenerateFlags(generateCmd)
}

func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", string(models.ContentSummary), "Content type: mcq, descriptive, assignment or summary")
	cmd.Flags().Int("count", models.DefaultQuestionCount, "Number of questions")
	cmd.Flags().String("difficulty", string(models.DifficultyMedium), "Difficulty: easy, medium or hard")
	cmd.Flags().Int("solutions", 1, "Number of solution sets (1-3, mcq and descriptive only)")
	cmd.Flags().String("title", "", "Title used for the exported PDF")
	cmd.Flags().String("out", "", "Directory for the exported PDF (overrides EXPORT_DIR)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.ExportDir = out
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	req, err := generationRequestFromFlags(cmd)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	res, err := a.study.GenerateFromDocuments(cmd.Context(), localDocuments(args), req, func(step, message string, current, total int) {
		fmt.Fprintf(stderr, "[%d/%d] %s\n", current, total, message)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Content)
	fmt.Fprintf(stderr, "PDF: %s\n", filepath.Join(cfg.ExportDir, path.Base(res.PDFURL)))
	if res.QuizID != nil {
		fmt.Fprintf(stderr, "Quiz ID: %s\n", *res.QuizID)
	}
	return nil
}

func generationRequestFromFlags(cmd *cobra.Command) (models.GenerationRequest, error) {
	flags := cmd.Flags()
	contentType, err := flags.GetString("type")
	if err != nil {
		return models.GenerationRequest{}, err
	}
	count, err := flags.GetInt("count")
	if err != nil {
		return models.GenerationRequest{}, err
	}
	difficulty, err := flags.GetString("difficulty")
	if err != nil {
		return models.GenerationRequest{}, err
	}
	solutions, err := flags.GetInt("solutions")
	if err != nil {
		return models.GenerationRequest{}, err
	}
	title, err := flags.GetString("title")
	if err != nil {
		return models.GenerationRequest{}, err
	}
	return models.GenerationRequest{
		Title:             title,
		NumberOfQuestions: count,
		Type:              models.ContentType(contentType),
		Difficulty:        models.Difficulty(difficulty),
		NumberOfSolutions: solutions,
	}, nil
}
