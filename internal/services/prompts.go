package services

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"studygen/internal/models"
)

//go:embed prompts.yaml
var promptsYAML []byte

// defaultFocusVariant is used when a variant index has no focus instruction.
const defaultFocusVariant = 1

type promptSpec struct {
	Difficulty map[models.Difficulty]string `yaml:"difficulty"`
	Focus      map[int]string               `yaml:"focus"`
	Template   string                       `yaml:"template"`

	tmpl *template.Template
}

// PromptParams are the inputs of a single prompt.
type PromptParams struct {
	Type         models.ContentType
	Difficulty   models.Difficulty
	Variant      int
	Count        int
	DocumentText string
}

type promptData struct {
	Variant               int
	Count                 int
	DifficultyLabel       string
	DifficultyInstruction string
	Focus                 string
	DocumentText          string
}

// PromptBuilder renders the instruction prompt for each content type.
type PromptBuilder struct {
	specs map[models.ContentType]*promptSpec
}

// NewPromptBuilder parses the embedded prompt tables.
func NewPromptBuilder() (*PromptBuilder, error) {
	return parsePromptBuilder(promptsYAML)
}

func parsePromptBuilder(data []byte) (*PromptBuilder, error) {
	var specs map[models.ContentType]*promptSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse prompt tables: %w", err)
	}
	for _, ct := range []models.ContentType{models.ContentMCQ, models.ContentDescriptive, models.ContentAssignment, models.ContentSummary} {
		spec, ok := specs[ct]
		if !ok || spec == nil || strings.TrimSpace(spec.Template) == "" {
			return nil, fmt.Errorf("prompt tables: missing template for %s", ct)
		}
		if ct.HasVariants() {
			for _, d := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
				if spec.Difficulty[d] == "" {
					return nil, fmt.Errorf("prompt tables: %s has no %s difficulty instruction", ct, d)
				}
			}
			if spec.Focus[defaultFocusVariant] == "" {
				return nil, fmt.Errorf("prompt tables: %s has no focus for variant %d", ct, defaultFocusVariant)
			}
		}
		tmpl, err := template.New(string(ct)).Option("missingkey=error").Parse(spec.Template)
		if err != nil {
			return nil, fmt.Errorf("prompt tables: parse %s template: %w", ct, err)
		}
		spec.tmpl = tmpl
	}
	return &PromptBuilder{specs: specs}, nil
}

// Build renders the prompt for p. Variants without a focus instruction use
// variant 1's focus.
func (b *PromptBuilder) Build(p PromptParams) (string, error) {
	spec, ok := b.specs[p.Type]
	if !ok || spec.tmpl == nil {
		return "", fmt.Errorf("no prompt template for content type %q", p.Type)
	}

	data := promptData{
		Variant:      p.Variant,
		Count:        p.Count,
		DocumentText: p.DocumentText,
	}
	if p.Type.HasVariants() {
		instruction, ok := spec.Difficulty[p.Difficulty]
		if !ok {
			return "", fmt.Errorf("unknown difficulty %q", p.Difficulty)
		}
		focus, ok := spec.Focus[p.Variant]
		if !ok {
			focus = spec.Focus[defaultFocusVariant]
		}
		data.DifficultyLabel = strings.ToUpper(string(p.Difficulty))
		data.DifficultyInstruction = instruction
		data.Focus = focus
	}

	var out strings.Builder
	if err := spec.tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", p.Type, err)
	}
	return out.String(), nil
}
