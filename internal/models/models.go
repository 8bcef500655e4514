package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DocumentFormat is the extraction format inferred from a file extension.
type DocumentFormat string

const (
	FormatPDF          DocumentFormat = "pdf"
	FormatText         DocumentFormat = "txt"
	FormatWordDocument DocumentFormat = "docx"
	FormatSlideDeck    DocumentFormat = "pptx"
	FormatUnknown      DocumentFormat = "unknown"
)

// FormatFromPath maps a file extension to its DocumentFormat, case-insensitively.
func FormatFromPath(path string) DocumentFormat {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "pdf":
		return FormatPDF
	case "txt":
		return FormatText
	case "doc", "docx":
		return FormatWordDocument
	case "ppt", "pptx":
		return FormatSlideDeck
	default:
		return FormatUnknown
	}
}

type Document struct {
	ID           string
	OriginalName string
	StoredPath   string
	Format       DocumentFormat
	Size         int64
	UploadedAt   time.Time
}

type ContentType string

const (
	ContentMCQ         ContentType = "mcq"
	ContentDescriptive ContentType = "descriptive"
	ContentAssignment  ContentType = "assignment"
	ContentSummary     ContentType = "summary"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentMCQ, ContentDescriptive, ContentAssignment, ContentSummary:
		return true
	}
	return false
}

// HasVariants reports whether the type is generated as multiple solution sets.
func (t ContentType) HasVariants() bool {
	return t == ContentMCQ || t == ContentDescriptive
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

const (
	DefaultQuestionCount = 10
	MaxQuestionCount     = 50
	MinSolutions         = 1
	MaxSolutions         = 3
)

// GenerationRequest carries the client's parameters for one generation call.
type GenerationRequest struct {
	Title             string      `json:"title,omitempty"`
	NumberOfQuestions int         `json:"numberOfQuestions"`
	Type              ContentType `json:"type"`
	Difficulty        Difficulty  `json:"difficulty"`
	NumberOfSolutions int         `json:"numberOfSolutions"`
}

// Normalize applies defaults and clamps the solution count to 1..3.
func (r *GenerationRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Type = ContentType(strings.ToLower(strings.TrimSpace(string(r.Type))))
	r.Difficulty = Difficulty(strings.ToLower(strings.TrimSpace(string(r.Difficulty))))
	if r.Difficulty == "" {
		r.Difficulty = DifficultyMedium
	}
	if r.NumberOfQuestions == 0 {
		r.NumberOfQuestions = DefaultQuestionCount
	}
	r.NumberOfSolutions = ClampSolutions(r.NumberOfSolutions)
}

func (r GenerationRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("invalid content type %q", r.Type)
	}
	if r.Type.HasVariants() && !r.Difficulty.Valid() {
		return fmt.Errorf("invalid difficulty %q", r.Difficulty)
	}
	if r.Type != ContentSummary {
		if r.NumberOfQuestions < 1 || r.NumberOfQuestions > MaxQuestionCount {
			return fmt.Errorf("numberOfQuestions must be between 1 and %d", MaxQuestionCount)
		}
	}
	return nil
}

// ClampSolutions bounds a requested variant count to MinSolutions..MaxSolutions.
func ClampSolutions(n int) int {
	if n < MinSolutions {
		return MinSolutions
	}
	if n > MaxSolutions {
		return MaxSolutions
	}
	return n
}

type SolutionVariant struct {
	Index   int
	Content string
}

type GenerationResult struct {
	Content   string
	Title     string
	Timestamp time.Time
	Variants  []SolutionVariant
}

type ExportedDocument struct {
	Filename string
	Path     string
	URL      string
}

// UploadedFile is the transport view of a stored Document.
type UploadedFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// StudyResult is the response payload of a successful generation.
type StudyResult struct {
	Content string  `json:"content"`
	PDFURL  string  `json:"pdf_url"`
	Title   string  `json:"title"`
	QuizID  *string `json:"quizId"`
}
