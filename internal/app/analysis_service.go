package app

import (
	"context"
	"log"
	"strings"

	"datasteward/internal/ai"
)

const AnalysisApologyMessage = "I apologize, but I'm unable to process your analysis request at the moment. Please try again later."

// AnalysisService answers free-text questions on the analysis screen. Model
// failures are answered with a fixed apology rather than an error.
type AnalysisService struct {
	generator ai.Generator
	maxTokens int
}

func NewAnalysisService(generator ai.Generator, maxTokens int) *AnalysisService {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &AnalysisService{generator: generator, maxTokens: maxTokens}
}

func (s *AnalysisService) Query(ctx context.Context, userID uint, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrInvalidInput
	}

	answer, err := s.generator.GenerateText(ctx, ai.TextRequest{
		Prompt:    BuildAnalysisQueryPrompt(question),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		log.Printf("analysis query failed, user=%d: %v", userID, err)
		return AnalysisApologyMessage, nil
	}
	return answer, nil
}
