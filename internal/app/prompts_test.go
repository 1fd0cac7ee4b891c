package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"datasteward/internal/model"
)

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		question string
		want     Intent
	}{
		{"Summarize this data", IntentSummary},
		{"Give me an overview", IntentSummary},
		{"Are there missing emails?", IntentQuality},
		{"Any duplicate customers?", IntentQuality},
		{"What trends do you see?", IntentInsights},
		{"Write a quality report", IntentReport},
		{"Who is the largest customer?", IntentGeneral},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectIntent(tc.question), tc.question)
	}
}

func TestTruncateSample(t *testing.T) {
	assert.Equal(t, "héll", TruncateSample("héllo", 4))
	assert.Equal(t, "héllo", TruncateSample("héllo", 10))
	assert.Equal(t, "", TruncateSample("héllo", 0))
}

func TestBuildQuestionPrompt(t *testing.T) {
	src := model.DataSource{
		Name:        "customers.csv",
		Type:        model.DataSourceCSV,
		RecordCount: intPtr(500),
		Columns:     []string{"id", "name", "email"},
		Description: "Customer roster",
	}

	prompt := BuildQuestionPrompt(src, "id=1, name=Ann", "  Which rows look invalid? ")
	for _, want := range []string{
		"- Name: customers.csv",
		"- Type: csv",
		"- Records: 500",
		"- Columns: id, name, email",
		"- Description: Customer roster",
		"id=1, name=Ann",
		"User question: Which rows look invalid?",
		"Detected intent: quality",
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, noContentPlaceholder)

	bare := BuildQuestionPrompt(model.DataSource{Name: "x.json", Type: model.DataSourceJSON}, "", "hi")
	assert.Contains(t, bare, "- Records: 0")
	assert.Contains(t, bare, "- Columns: unknown")
	assert.Contains(t, bare, noContentPlaceholder)
}

func TestBuildReportPromptOutline(t *testing.T) {
	prompt := BuildReportPrompt(model.DataSource{Name: "ledger.xlsx", Type: model.DataSourceExcel}, "row")
	for i, section := range reportSections {
		assert.Contains(t, prompt, string(rune('1'+i))+". "+section)
	}
	assert.True(t, strings.Index(prompt, "Executive Summary") < strings.Index(prompt, "Recommendations and Next Steps"))
}

func TestBuildAnalysisPrompt(t *testing.T) {
	prompt := BuildAnalysisPrompt("customers.csv", model.DataSourceCSV, "")
	assert.Contains(t, prompt, "File name: customers.csv")
	assert.Contains(t, prompt, "File type: csv")
	assert.Contains(t, prompt, noContentPlaceholder)

	required, ok := AnalysisSchema["required"].([]string)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"recordCount", "columns", "description", "dataQuality"}, required)
}
