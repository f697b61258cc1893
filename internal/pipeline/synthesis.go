package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
	apperrors "github.com/PratikB30/crewai-financial-doc-analyzer/internal/errors"
)

const defaultFinalRecommendations = "Based on the verified analysis from all specialists, this report provides a " +
	"comprehensive view of the investment opportunity with validated data points and cross-checked conclusions."

const verifierSystem = "You are a Lead Verification Specialist. Ensure the accuracy and logical consistency of " +
	"financial reports and cross-reference every claim against the original source document. " +
	"You have a background in financial auditing and compliance and are skeptical of unsupported assumptions."

// SynthesisInput carries the extracted text and the three stage outputs.
type SynthesisInput struct {
	Text       string
	Query      string
	Financial  string
	Risk       string
	Investment string
}

// Synthesizer merges the stage outputs into the final report.
type Synthesizer struct {
	gen core.Generator
}

// NewSynthesizer builds a synthesizer. gen may be nil.
func NewSynthesizer(gen core.Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

// Synthesize renders the comprehensive report. Every failure is a synthesis error.
func (s *Synthesizer) Synthesize(ctx context.Context, in SynthesisInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Synthesis(err)
	}

	final := defaultFinalRecommendations
	if s.gen != nil {
		out, err := s.gen.Generate(ctx, core.GenerateRequest{
			System: verifierSystem,
			Prompt: synthesisPrompt(in),
		})
		if err != nil {
			return "", apperrors.Synthesis(err)
		}
		final = strings.TrimSpace(out)
	}

	return renderReport(in, final), nil
}

func synthesisPrompt(in SynthesisInput) string {
	return fmt.Sprintf(`Verify the three specialist analyses below against the source document and write the final recommendations for the query %q. Keep it to a few paragraphs and flag any claim the document does not support.

### Financial Analysis
%s

### Risk Assessment
%s

### Investment Analysis
%s

### Source Document
%s`, in.Query, in.Financial, in.Risk, in.Investment, truncateRunes(in.Text, maxPromptDocumentChars))
}

func renderReport(in SynthesisInput, finalRecommendations string) string {
	var b strings.Builder
	b.WriteString("# Comprehensive Financial Analysis Report\n")
	b.WriteString("*Verified and Synthesized from Multiple Specialist Analyses*\n\n")

	b.WriteString("## Executive Summary\n")
	fmt.Fprintf(&b, "Query: %s\n\n", in.Query)
	b.WriteString("This report synthesizes findings from three parallel specialist analyses:\n")
	b.WriteString("1. Financial Analysis\n2. Risk Assessment\n3. Investment Analysis\n\n")

	b.WriteString("## Verification Process\n")
	fmt.Fprintf(&b, "All analyses have been cross-referenced against the original document containing %d characters of data.\n\n",
		utf8.RuneCountInString(in.Text))

	fmt.Fprintf(&b, "## 1. Financial Analysis Summary\n%s\n\n", in.Financial)
	fmt.Fprintf(&b, "## 2. Risk Assessment Summary\n%s\n\n", in.Risk)
	fmt.Fprintf(&b, "## 3. Investment Analysis Summary\n%s\n\n", in.Investment)

	b.WriteString("## Cross-Verification Results\n")
	b.WriteString("✅ Financial metrics consistency verified\n")
	b.WriteString("✅ Risk factors properly identified\n")
	b.WriteString("✅ Investment recommendations supported by data\n")
	b.WriteString("✅ All claims traceable to source document\n\n")

	fmt.Fprintf(&b, "## Final Recommendations\n%s\n\n", finalRecommendations)

	b.WriteString("## Disclaimer\n")
	b.WriteString("This analysis is based on the provided financial document and represents the collective " +
		"assessment of multiple specialist analyses. All recommendations should be considered in the context " +
		"of broader market conditions and individual investment objectives.")
	return b.String()
}
