package answergen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/formpilot/formpilot/internal/domain"
)

// ClaudeConfig configures the Claude-backed generator.
type ClaudeConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	RateLimitRPM int
	CacheTTL     time.Duration
	MaxRetries   int
}

// DefaultClaudeConfig returns default configuration
func DefaultClaudeConfig() ClaudeConfig {
	return ClaudeConfig{
		BaseURL:      "https://api.anthropic.com",
		Model:        "claude-sonnet-4-20250514",
		Timeout:      30 * time.Second,
		RateLimitRPM: 50,
		CacheTTL:     24 * time.Hour,
		MaxRetries:   3,
	}
}

// Metrics records API activity for the generator. *observability.Metrics
// satisfies it; a nil value disables recording.
type Metrics interface {
	RecordClaudeRequest(model, status string, duration time.Duration)
	RecordClaudeCacheHit()
	RecordClaudeCacheMiss()
}

// ClaudeGenerator asks the Claude API for an answer grounded in the user's
// profile. Responses are cached by prompt hash so repeated questions across
// runs do not re-hit the API.
type ClaudeGenerator struct {
	config     ClaudeConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    Metrics
	logger     *zap.Logger

	cache   map[string]cachedAnswer
	cacheMu sync.RWMutex
}

type cachedAnswer struct {
	answer    string
	expiresAt time.Time
}

// NewClaudeGenerator creates a Claude-backed generator.
func NewClaudeGenerator(cfg ClaudeConfig, metrics Metrics, logger *zap.Logger) (*ClaudeGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	defaults := DefaultClaudeConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = defaults.RateLimitRPM
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	return &ClaudeGenerator{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1),
		metrics:    metrics,
		logger:     logger,
		cache:      make(map[string]cachedAnswer),
	}, nil
}

// Generate implements Generator.
func (g *ClaudeGenerator) Generate(ctx context.Context, question string, profile domain.Profile) (string, error) {
	userPrompt := buildAnswerPrompt(question, profile)
	cacheKey := g.cacheKey(userPrompt)

	g.cacheMu.RLock()
	if entry, ok := g.cache[cacheKey]; ok && time.Now().Before(entry.expiresAt) {
		g.cacheMu.RUnlock()
		if g.metrics != nil {
			g.metrics.RecordClaudeCacheHit()
		}
		return entry.answer, nil
	}
	g.cacheMu.RUnlock()
	if g.metrics != nil {
		g.metrics.RecordClaudeCacheMiss()
	}

	var lastErr error
	for attempt := 0; attempt < g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}

		start := time.Now()
		answer, err := g.complete(ctx, answerSystemPrompt, userPrompt)
		if g.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			g.metrics.RecordClaudeRequest(g.config.Model, status, time.Since(start))
		}
		if err != nil {
			lastErr = err
			g.logger.Warn("answer generation attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		answer = strings.TrimSpace(answer)
		if answer == "" {
			lastErr = fmt.Errorf("empty completion")
			continue
		}

		g.cacheMu.Lock()
		g.cache[cacheKey] = cachedAnswer{answer: answer, expiresAt: time.Now().Add(g.config.CacheTTL)}
		g.cacheMu.Unlock()

		return answer, nil
	}

	return "", fmt.Errorf("answer generation failed after %d attempts: %w", g.config.MaxRetries, lastErr)
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (g *ClaudeGenerator) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		Model:       g.config.Model,
		MaxTokens:   300,
		System:      systemPrompt,
		Messages:    []claudeMessage{{Role: "user", Content: userPrompt}},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp claudeResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}

	g.logger.Debug("generated answer",
		zap.Int("tokens_in", apiResp.Usage.InputTokens),
		zap.Int("tokens_out", apiResp.Usage.OutputTokens),
	)

	return apiResp.Content[0].Text, nil
}

func (g *ClaudeGenerator) cacheKey(userPrompt string) string {
	hash := sha256.Sum256([]byte(g.config.Model + "|" + userPrompt))
	return hex.EncodeToString(hash[:16])
}
