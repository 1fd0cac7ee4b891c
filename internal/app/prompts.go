package app

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"datasteward/internal/model"
)

type Intent string

const (
	IntentSummary  Intent = "summary"
	IntentInsights Intent = "insights"
	IntentQuality  Intent = "quality"
	IntentReport   Intent = "report"
	IntentGeneral  Intent = "general"
)

const noContentPlaceholder = "(no data content available)"

var reportSections = []string{
	"Executive Summary",
	"Data Overview",
	"Data Quality Assessment",
	"Key Insights and Patterns",
	"Risks and Compliance Considerations",
	"Recommendations and Next Steps",
}

// AnalysisSchema is the structure requested from the model when a new file
// is analyzed. dataQuality is advisory and never persisted.
var AnalysisSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"recordCount": map[string]interface{}{"type": "number", "description": "Estimated number of records in the file"},
		"columns": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Column or field names in order",
		},
		"description": map[string]interface{}{"type": "string", "description": "One or two sentences describing the data"},
		"dataQuality": map[string]interface{}{"type": "string", "description": "Short note on visible quality issues"},
	},
	"required": []string{"recordCount", "columns", "description", "dataQuality"},
}

// DetectIntent buckets a question into the response styles the assistant
// knows about. Report requests win over everything else.
func DetectIntent(question string) Intent {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "report"):
		return IntentReport
	case containsAny(q, "summar", "overview", "describe", "what is in", "what's in"):
		return IntentSummary
	case containsAny(q, "quality", "missing", "duplicate", "null", "invalid", "inconsisten", "clean"):
		return IntentQuality
	case containsAny(q, "insight", "trend", "pattern", "correlat", "anomal", "outlier"):
		return IntentInsights
	default:
		return IntentGeneral
	}
}

// TruncateSample cuts s to at most limit runes. A non-positive limit yields
// an empty sample.
func TruncateSample(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func BuildQuestionPrompt(src model.DataSource, sample, question string) string {
	var b strings.Builder
	b.WriteString("You are an expert data steward assistant helping a user understand an uploaded data source.\n\n")
	writeSourceMetadata(&b, src)
	writeSample(&b, sample)

	fmt.Fprintf(&b, "User question: %s\n\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "Detected intent: %s\n", DetectIntent(question))
	b.WriteString("Tailor the style of your answer to the intent of the question:\n")
	b.WriteString("- summary: a concise overview of what the data contains and how it is structured.\n")
	b.WriteString("- insights: patterns, trends, distributions and notable values.\n")
	b.WriteString("- quality: completeness, consistency, duplicates, format and validity problems.\n")
	b.WriteString("- report: a structured report with headings.\n")
	b.WriteString("- general: answer directly, referencing the data where possible.\n")
	b.WriteString("If the sample is missing, say so and answer from the metadata.")
	return b.String()
}

func BuildReportPrompt(src model.DataSource, sample string) string {
	var b strings.Builder
	b.WriteString("You are an expert data steward. Write a comprehensive data analysis report for the data source below.\n\n")
	writeSourceMetadata(&b, src)
	writeSample(&b, sample)

	b.WriteString("Structure the report with exactly these sections, in order:\n")
	for i, section := range reportSections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, section)
	}
	b.WriteString("Use markdown headings and keep each section focused and actionable.")
	return b.String()
}

func BuildAnalysisPrompt(name string, typ model.DataSourceType, preview string) string {
	var b strings.Builder
	b.WriteString("Analyze this uploaded data file and describe its structure.\n\n")
	fmt.Fprintf(&b, "File name: %s\n", name)
	fmt.Fprintf(&b, "File type: %s\n\n", typ)
	b.WriteString("Content preview:\n")
	if strings.TrimSpace(preview) == "" {
		b.WriteString(noContentPlaceholder)
	} else {
		b.WriteString(preview)
	}
	b.WriteString("\n\nReturn the estimated record count, the column names in order, a short description and a data quality note.")
	return b.String()
}

func BuildTeamAssistPrompt(userName, channelName, text string) string {
	return fmt.Sprintf(
		"You are an AI assistant embedded in a data stewardship team chat channel named %q. "+
			"Team members work on data quality, KYC review and master data management. "+
			"%s wrote: %q\n\n"+
			"Reply helpfully and concisely with practical data stewardship guidance.",
		channelName, userName, strings.TrimSpace(text),
	)
}

func BuildAnalysisQueryPrompt(question string) string {
	return "You are a data quality analyst supporting a data stewardship team. " +
		"Answer the following question with concrete, actionable guidance on data quality, " +
		"governance and remediation.\n\nQuestion: " + strings.TrimSpace(question)
}

func writeSourceMetadata(b *strings.Builder, src model.DataSource) {
	b.WriteString("Data source:\n")
	fmt.Fprintf(b, "- Name: %s\n", src.Name)
	fmt.Fprintf(b, "- Type: %s\n", src.Type)
	fmt.Fprintf(b, "- Records: %d\n", src.Records())
	if len(src.Columns) > 0 {
		fmt.Fprintf(b, "- Columns: %s\n", strings.Join(src.Columns, ", "))
	} else {
		b.WriteString("- Columns: unknown\n")
	}
	if src.Description != "" {
		fmt.Fprintf(b, "- Description: %s\n", src.Description)
	}
	b.WriteString("\n")
}

func writeSample(b *strings.Builder, sample string) {
	b.WriteString("Data sample:\n")
	if strings.TrimSpace(sample) == "" {
		b.WriteString(noContentPlaceholder)
	} else {
		b.WriteString(sample)
	}
	b.WriteString("\n\n")
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
