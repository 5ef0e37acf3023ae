package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

const qaSystemPrompt = `You generate question and answer pairs from web page content.
Given a page in markdown, produce self-contained questions a reader might ask
about the page, each with a concise factual answer drawn only from the page.
Respond with a fenced yaml block containing a list of objects with "question"
and "answer" keys, and nothing else.`

// Markdown longer than this is truncated before being sent to the model.
const maxPromptChars = 60000

// ClaudeService generates Q&A pairs from markdown using the Anthropic API.
type ClaudeService struct {
	config      *common.ClaudeConfig
	logger      arbor.ILogger
	client      anthropic.Client
	timeout     time.Duration
	maxTokens   int
	maxPairs    int
	rateLimiter *rate.Limiter
	retryPolicy *RetryPolicy
}

// NewClaudeService creates a new Claude Q&A service instance.
func NewClaudeService(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Q&A generation (set ANTHROPIC_API_KEY, COLLIGO_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	maxPairs := claudeConfig.MaxPairs
	if maxPairs <= 0 {
		maxPairs = 10
	}

	rpm := claudeConfig.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}

	client := anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
	)

	service := &ClaudeService{
		config:      claudeConfig,
		logger:      logger,
		client:      client,
		timeout:     timeout,
		maxTokens:   maxTokens,
		maxPairs:    maxPairs,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		retryPolicy: NewRetryPolicy(),
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Int("max_pairs", maxPairs).
		Int("requests_per_minute", rpm).
		Msg("Claude Q&A service initialized successfully")

	return service, nil
}

// GenerateQAPairs generates question/answer pairs for one page of markdown.
// Rate-limited API errors and server errors retry with backoff; permanent
// failures surface as classified errors for the job record.
func (s *ClaudeService) GenerateQAPairs(ctx context.Context, markdown string) ([]models.QAPair, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, jobs.NewError(jobs.ErrorKindExtractionError, "no markdown content to generate Q&A pairs from")
	}

	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	startTime := time.Now()
	s.logger.Debug().
		Int("markdown_length", len(markdown)).
		Msg("Starting Q&A generation")

	prompt := s.buildPrompt(markdown)

	var response string
	statusCode, err := s.retryPolicy.ExecuteWithRetry(ctx, s.logger, func() (int, error) {
		var callErr error
		response, callErr = s.generateCompletion(ctx, prompt)
		return statusFromError(callErr), callErr
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("Q&A generation failed")
		return nil, classifyAPIError(statusCode, err)
	}

	pairs, err := parseQAResponse(response)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("response_length", len(response)).
			Msg("Failed to parse Q&A response")
		return nil, jobs.WrapError(jobs.ErrorKindApiError, err)
	}

	if len(pairs) > s.maxPairs {
		pairs = pairs[:s.maxPairs]
	}

	s.logger.Debug().
		Int("pair_count", len(pairs)).
		Dur("duration", time.Since(startTime)).
		Msg("Q&A generation completed")

	return pairs, nil
}

// HealthCheck exercises the Anthropic API with a minimal probe.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	s.logger.Debug().Msg("Running Claude Q&A service health check")

	healthCheckCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := s.generateCompletion(healthCheckCtx, "ping")
	if err != nil {
		return fmt.Errorf("Claude probe failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("Claude probe returned empty response")
	}

	s.logger.Debug().
		Str("model", s.config.Model).
		Msg("Claude Q&A service health check passed")

	return nil
}

// Close releases service resources. The underlying HTTP client needs no
// explicit shutdown.
func (s *ClaudeService) Close() error {
	return nil
}

// buildPrompt assembles the user prompt, truncating oversized pages.
func (s *ClaudeService) buildPrompt(markdown string) string {
	if len(markdown) > maxPromptChars {
		markdown = markdown[:maxPromptChars]
		s.logger.Debug().
			Int("limit", maxPromptChars).
			Msg("Markdown truncated for prompt")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate up to %d question and answer pairs for the following page.\n\n", s.maxPairs)
	b.WriteString("Page content:\n\n")
	b.WriteString(markdown)
	return b.String()
}

// generateCompletion makes a single Messages API call with the configured
// model, timeout, and temperature.
func (s *ClaudeService) generateCompletion(ctx context.Context, prompt string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: qaSystemPrompt},
		},
	}

	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	return response.String(), nil
}

// parseQAResponse extracts the fenced yaml block from the model response and
// unmarshals it into Q&A pairs. A response without a fence is tried as bare
// yaml before giving up.
func parseQAResponse(response string) ([]models.QAPair, error) {
	yamlContent := response

	if start := strings.Index(response, "```yaml"); start != -1 {
		yamlContent = response[start+7:]
		if end := strings.LastIndex(yamlContent, "```"); end != -1 {
			yamlContent = yamlContent[:end]
		}
	} else if start := strings.Index(response, "```"); start != -1 {
		yamlContent = response[start+3:]
		if end := strings.LastIndex(yamlContent, "```"); end != -1 {
			yamlContent = yamlContent[:end]
		}
	}

	var pairs []models.QAPair
	if err := yaml.Unmarshal([]byte(yamlContent), &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse Q&A yaml: %w", err)
	}

	// Drop entries the model left incomplete.
	valid := pairs[:0]
	for _, pair := range pairs {
		if strings.TrimSpace(pair.Question) != "" && strings.TrimSpace(pair.Answer) != "" {
			valid = append(valid, pair)
		}
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("no usable Q&A pairs in response")
	}

	return valid, nil
}

// statusCodeRegex matches the HTTP status code embedded in SDK error strings.
var statusCodeRegex = regexp.MustCompile(`\b(4\d\d|5\d\d)\b`)

// statusFromError extracts an HTTP status code from an API error message.
// Returns 0 when no code is present.
func statusFromError(err error) int {
	if err == nil {
		return 0
	}
	match := statusCodeRegex.FindString(err.Error())
	if match == "" {
		return 0
	}
	code, convErr := strconv.Atoi(match)
	if convErr != nil {
		return 0
	}
	return code
}

// classifyAPIError maps a failed API call onto the error taxonomy.
func classifyAPIError(statusCode int, err error) error {
	switch {
	case statusCode == 401 || statusCode == 403:
		return jobs.WrapError(jobs.ErrorKindAuthError, err)
	case statusCode == 429:
		return jobs.WrapError(jobs.ErrorKindRateLimited, err)
	case isRetryableError(err):
		return jobs.WrapError(jobs.ErrorKindTimeout, err)
	default:
		return jobs.WrapError(jobs.ErrorKindApiError, err)
	}
}
