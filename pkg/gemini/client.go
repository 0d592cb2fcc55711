// Package gemini 문제 생성과 제출 코드 평가를 Gemini API로 처리
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

var ErrNotConfigured = errors.New("gemini api key not configured")

// models genai.Models 중 사용하는 부분
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client QuestionGenerator와 Evaluator 구현
type Client struct {
	models models
	model  string
	logger *zap.Logger
}

// NewClient Gemini API 클라이언트 생성
func NewClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newClient(client.Models, model, logger), nil
}

func newClient(m models, model string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{models: m, model: model, logger: logger}
}

// GenerateQuestion 평균 레이팅에 맞는 문제 생성 (HTML)
func (c *Client) GenerateQuestion(ctx context.Context, averageRating float64) (string, error) {
	text, err := c.generate(ctx, QuestionPrompt(averageRating), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate question: %w", err)
	}
	return cleanHTML(text), nil
}

// Evaluate 두 제출 코드를 비교 평가한 원문 반환
func (c *Client) Evaluate(ctx context.Context, question, codeA, codeB string) (string, error) {
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.2)}

	text, err := c.generate(ctx, EvaluationPrompt(question, codeA, codeB), config)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate submissions: %w", err)
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	c.logger.Debug("Gemini response",
		zap.String("model", c.model),
		zap.Int("promptBytes", len(prompt)),
		zap.Int("responseBytes", len(text)))
	return text, nil
}

// cleanHTML 모델이 붙이는 ```html 코드 펜스 제거
func cleanHTML(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// Disabled API 키가 없을 때 사용. 모든 요청이 ErrNotConfigured로 실패한다.
type Disabled struct{}

func (Disabled) GenerateQuestion(ctx context.Context, averageRating float64) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Evaluate(ctx context.Context, question, codeA, codeB string) (string, error) {
	return "", ErrNotConfigured
}
