package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"studygen/internal/apierr"
	"studygen/internal/logger"
	"studygen/internal/models"
)

// Completer turns one prompt into one model reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GenerationService fans a request out into prompts and assembles the replies.
type GenerationService struct {
	llm         Completer
	prompts     *PromptBuilder
	concurrency int
	log         *logger.Logger
	now         func() time.Time
}

func NewGenerationService(llm Completer, prompts *PromptBuilder, concurrency int, log *logger.Logger) *GenerationService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &GenerationService{
		llm:         llm,
		prompts:     prompts,
		concurrency: concurrency,
		log:         log.With("component", "Generation"),
		now:         time.Now,
	}
}

// Generate produces the study content for req from documentText. Question
// types produce one solution set per variant; assignment and summary are a
// single call.
func (s *GenerationService) Generate(ctx context.Context, req models.GenerationRequest, documentText string) (*models.GenerationResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apierr.Invalid("%v", err)
	}

	result := &models.GenerationResult{Title: req.Title, Timestamp: s.now()}
	if !req.Type.HasVariants() {
		prompt, err := s.prompts.Build(PromptParams{
			Type:         req.Type,
			Difficulty:   req.Difficulty,
			Variant:      1,
			Count:        req.NumberOfQuestions,
			DocumentText: documentText,
		})
		if err != nil {
			return nil, apierr.Generation(0, err)
		}
		content, err := s.llm.Complete(ctx, prompt)
		if err != nil {
			return nil, asGenerationError(err)
		}
		if strings.TrimSpace(content) == "" {
			return nil, apierr.Generation(0, ErrEmptyCompletion)
		}
		result.Content = content
		return result, nil
	}

	variants, err := s.generateVariants(ctx, req, documentText)
	if err != nil {
		return nil, err
	}
	blocks := make([]string, len(variants))
	for i, v := range variants {
		blocks[i] = fmt.Sprintf("### Solution %d\n%s", v.Index, v.Content)
	}
	result.Variants = variants
	result.Content = strings.Join(blocks, "\n\n")
	return result, nil
}

func (s *GenerationService) generateVariants(ctx context.Context, req models.GenerationRequest, documentText string) ([]models.SolutionVariant, error) {
	variants := make([]models.SolutionVariant, req.NumberOfSolutions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range variants {
		index := i + 1
		g.Go(func() error {
			prompt, err := s.prompts.Build(PromptParams{
				Type:         req.Type,
				Difficulty:   req.Difficulty,
				Variant:      index,
				Count:        req.NumberOfQuestions,
				DocumentText: fmt.Sprintf("%s\n\n(Variant %d)", documentText, index),
			})
			if err != nil {
				return apierr.Generation(0, err)
			}

			start := time.Now()
			content, err := s.llm.Complete(gctx, prompt)
			if err != nil {
				return asGenerationError(fmt.Errorf("variant %d: %w", index, err))
			}
			content = strings.TrimSpace(content)
			if content == "" {
				return apierr.Generation(0, fmt.Errorf("variant %d: %w", index, ErrEmptyCompletion))
			}
			s.log.Debug("variant generated", "variant", index, "type", req.Type, "duration", time.Since(start))
			variants[i] = models.SolutionVariant{Index: index, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return variants, nil
}

// asGenerationError keeps typed errors and classifies the rest as
// generation failures.
func asGenerationError(err error) error {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apierr.New(apiErr.Status, apiErr.Code, err)
	}
	return apierr.Generation(0, err)
}
