package matcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	CacheTTL     time.Duration
	MaxBatchSize int
	RateLimitRPM int
}

// DefaultEmbeddingConfig returns default embedding configuration
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:        "text-embedding-3-small",
		BaseURL:      "https://api.openai.com/v1",
		CacheTTL:     24 * time.Hour,
		MaxBatchSize: 100,
		RateLimitRPM: 3000,
	}
}

// Metrics records embedding API activity. *observability.Metrics satisfies
// it; a nil value disables recording.
type Metrics interface {
	RecordEmbeddingRequest(model, status string, duration time.Duration)
}

// EmbeddingService generates embeddings through an OpenAI-compatible API,
// caching results in memory and optionally in Redis.
type EmbeddingService struct {
	config     EmbeddingConfig
	httpClient *http.Client
	redis      *redis.Client
	metrics    Metrics
	logger     *zap.Logger
	limiter    *rate.Limiter

	cache    map[string][]float32
	cacheMu  sync.RWMutex
	cacheMax int
}

// NewEmbeddingService creates a new embedding service. redisClient may be nil,
// in which case only the in-memory cache is used. metrics may be nil.
func NewEmbeddingService(config EmbeddingConfig, redisClient *redis.Client, metrics Metrics, logger *zap.Logger) *EmbeddingService {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 100
	}
	rpm := config.RateLimitRPM
	if rpm <= 0 {
		rpm = 3000
	}
	return &EmbeddingService{
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		redis:      redisClient,
		metrics:    metrics,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm/10+1),
		cache:      make(map[string][]float32),
		cacheMax:   10000,
	}
}

// Embed generates an embedding for a single text.
func (es *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := es.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts, serving cached entries
// and only calling the API for the rest.
func (es *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := es.cacheKey(text)
		if emb, ok := es.fromCache(ctx, key); ok {
			results[i] = emb
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	for start := 0; start < len(missTexts); start += es.config.MaxBatchSize {
		end := start + es.config.MaxBatchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}

		if err := es.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqStart := time.Now()
		embeddings, err := es.requestEmbeddings(ctx, missTexts[start:end])
		if es.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			es.metrics.RecordEmbeddingRequest(es.config.Model, status, time.Since(reqStart))
		}
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}

		for j, emb := range embeddings {
			idx := missIdx[start+j]
			results[idx] = emb
			es.toCache(ctx, es.cacheKey(texts[idx]), emb)
		}
	}

	return results, nil
}

func (es *EmbeddingService) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text + es.config.Model))
	return hex.EncodeToString(hash[:16])
}

func (es *EmbeddingService) fromCache(ctx context.Context, key string) ([]float32, bool) {
	es.cacheMu.RLock()
	emb, ok := es.cache[key]
	es.cacheMu.RUnlock()
	if ok {
		return emb, true
	}

	if es.redis != nil {
		data, err := es.redis.Get(ctx, "emb:"+key).Bytes()
		if err == nil {
			var embedding []float32
			if json.Unmarshal(data, &embedding) == nil {
				es.setMemoryCache(key, embedding)
				return embedding, true
			}
		}
	}
	return nil, false
}

func (es *EmbeddingService) toCache(ctx context.Context, key string, emb []float32) {
	es.setMemoryCache(key, emb)
	if es.redis != nil {
		data, _ := json.Marshal(emb)
		es.redis.Set(ctx, "emb:"+key, data, es.config.CacheTTL)
	}
}

func (es *EmbeddingService) setMemoryCache(key string, emb []float32) {
	es.cacheMu.Lock()
	defer es.cacheMu.Unlock()

	if len(es.cache) >= es.cacheMax {
		count := 0
		for k := range es.cache {
			delete(es.cache, k)
			count++
			if count >= es.cacheMax/10 {
				break
			}
		}
	}
	es.cache[key] = emb
}

func (es *EmbeddingService) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"model": es.config.Model,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", es.config.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+es.config.APIKey)

	resp, err := es.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("embedding API returned no vector for input %d", i)
		}
	}

	es.logger.Debug("generated embeddings",
		zap.Int("count", len(texts)),
		zap.Int("tokens", result.Usage.TotalTokens),
	)

	return embeddings, nil
}

// CosineSimilarity calculates cosine similarity between two embeddings
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
