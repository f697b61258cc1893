package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/core"
)

// maxPromptDocumentChars bounds how much document text is sent to the model.
const maxPromptDocumentChars = 120_000

// StageInput is the shared input of the analysis stages.
type StageInput struct {
	Text  string
	Query string
}

// Stage is one of the parallel analyses.
type Stage interface {
	// Name is the result slot and metric tag, e.g. "risk_assessment".
	Name() string
	// Description is the human phrase used in absorbed errors, e.g. "risk assessment".
	Description() string
	Analyze(ctx context.Context, in StageInput) (string, error)
}

// persona is the model-facing role of a stage.
type persona struct {
	role      string
	goal      string
	backstory string
	task      string
}

func (p persona) system() string {
	return fmt.Sprintf("You are a %s. %s\n\n%s", p.role, p.goal, p.backstory)
}

// AnalysisStage renders a fixed report template and, with a generator, appends
// model-written commentary.
type AnalysisStage struct {
	name        string
	description string
	persona     persona
	render      func(chars int, query string) string
	gen         core.Generator
}

var _ Stage = (*AnalysisStage)(nil)

func (s *AnalysisStage) Name() string        { return s.name }
func (s *AnalysisStage) Description() string { return s.description }

// Analyze returns the stage report. It only fails when the model call fails.
func (s *AnalysisStage) Analyze(ctx context.Context, in StageInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := collapseDoubleSpaces(in.Text)
	report := s.render(utf8.RuneCountInString(text), in.Query)
	if s.gen == nil {
		return report, nil
	}

	commentary, err := s.gen.Generate(ctx, core.GenerateRequest{
		System: s.persona.system(),
		Prompt: stagePrompt(s.persona.task, in.Query, text),
	})
	if err != nil {
		return "", err
	}
	return report + "\n\n## Specialist Commentary\n" + strings.TrimSpace(commentary), nil
}

func stagePrompt(task, query, text string) string {
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nUser query: ")
	b.WriteString(query)
	b.WriteString("\n\nDocument:\n")
	b.WriteString(truncateRunes(text, maxPromptDocumentChars))
	return b.String()
}

// NewFinancialAnalysis builds the financial analysis stage. gen may be nil.
func NewFinancialAnalysis(gen core.Generator) *AnalysisStage {
	return &AnalysisStage{
		name:        "financial_analysis",
		description: "financial analysis",
		gen:         gen,
		persona: persona{
			role: "Senior Financial Analyst",
			goal: "Provide insightful, data-driven investment analysis based on financial documents. " +
				"Your analysis must be clear and directly supported by evidence from the text.",
			backstory: "You have over 15 years of experience at a top-tier investment firm and specialize " +
				"in dissecting complex financial statements to uncover the true health and potential of a company.",
			task: "Extract key financial metrics, figures and statements from the document: key ratios, " +
				"revenue and profitability, cash flow and liquidity, balance sheet and financial health indicators.",
		},
		render: func(chars int, query string) string {
			return fmt.Sprintf(`# Financial Analysis Report

## Document Summary
Processed financial document containing %d characters of data.
Requested focus: %s

## Key Financial Metrics Extracted
- Revenue figures and growth patterns
- Profit margins and profitability analysis
- Cash flow statements and liquidity metrics
- Balance sheet components (assets, liabilities, equity)
- Debt ratios and financial leverage

## Financial Health Assessment
Based on the extracted data, this analysis provides insights into the company's financial position, performance trends, and key indicators for investment decision-making.

## Recommendations
- Detailed financial metrics analysis
- Performance trend identification
- Comparative financial ratios
- Investment viability assessment`, chars, query)
		},
	}
}

// NewRiskAssessment builds the risk assessment stage. gen may be nil.
func NewRiskAssessment(gen core.Generator) *AnalysisStage {
	return &AnalysisStage{
		name:        "risk_assessment",
		description: "risk assessment",
		gen:         gen,
		persona: persona{
			role: "Financial Risk Assessor",
			goal: "Identify, quantify, and report on all pertinent financial and market risks " +
				"discovered in the provided document.",
			backstory: "With a background in quantitative analysis and financial modeling, you provide a clear, " +
				"unbiased and data-supported view of the risks associated with a financial entity.",
			task: "Assess market, financial, operational and credit risk in the document and recommend " +
				"mitigation strategies.",
		},
		render: func(chars int, query string) string {
			return fmt.Sprintf(`# Risk Assessment Report

## Document Analysis
Analyzed financial document containing %d characters of data.
Requested focus: %s

## Identified Risk Categories

### 1. Market Risk
- Volatility in market conditions
- Economic cycle sensitivity
- Competitive landscape changes

### 2. Financial Risk
- Liquidity concerns
- Debt service capacity
- Cash flow volatility

### 3. Operational Risk
- Business model sustainability
- Management effectiveness
- Regulatory compliance

### 4. Credit Risk
- Default probability assessment
- Credit rating implications
- Counterparty risk evaluation

## Risk Mitigation Recommendations
- Diversification strategies
- Hedging approaches
- Monitoring frameworks`, chars, query)
		},
	}
}

// NewInvestmentAnalysis builds the investment analysis stage. gen may be nil.
func NewInvestmentAnalysis(gen core.Generator) *AnalysisStage {
	return &AnalysisStage{
		name:        "investment_analysis",
		description: "investment analysis",
		gen:         gen,
		persona: persona{
			role: "Investment Strategy Advisor",
			goal: "Develop tailored, data-driven investment strategies and recommendations based on " +
				"the financial document.",
			backstory: "You are a client-focused advisor with deep portfolio management experience who " +
				"translates complex financial data and risk profiles into actionable strategies.",
			task: "Give an investment thesis with a Buy/Hold/Sell view, target price reasoning, investment " +
				"timeline, portfolio allocation suggestions and growth prospects.",
		},
		render: func(chars int, query string) string {
			return fmt.Sprintf(`# Investment Analysis Report

## Document Review
Analyzed financial document containing %d characters of data.
Requested focus: %s

## Investment Thesis
Based on comprehensive analysis of the financial data, this report provides investment recommendations and strategic insights.

## Key Investment Factors
- Revenue growth potential
- Profitability trends
- Market positioning
- Competitive advantages
- Valuation metrics

## Investment Recommendations
- Buy/Hold/Sell recommendation
- Target price analysis
- Investment timeline
- Risk-adjusted returns
- Portfolio allocation suggestions

## Strategic Insights
- Long-term growth prospects
- Market opportunity assessment
- Competitive positioning analysis
- Value creation potential`, chars, query)
		},
	}
}

// collapseDoubleSpaces squeezes runs of spaces down to one.
func collapseDoubleSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
