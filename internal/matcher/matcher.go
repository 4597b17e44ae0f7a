package matcher

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/domain"
)

// DefaultThreshold is the minimum similarity score for a question to count as
// matching a profile field.
const DefaultThreshold = 0.45

// Result is the outcome of matching one question. Field is empty when the
// best score falls below the threshold; Score still carries the best score so
// callers can log near misses.
type Result struct {
	Field domain.FieldName
	Score float64
}

// Matched reports whether the question cleared the threshold.
func (r Result) Matched() bool {
	return r.Field != ""
}

// Matcher maps free-text form questions to canonical profile fields. A
// Matcher instance is scoped to the lifetime that constructed it; callers
// inject one per engine rather than sharing a process-wide singleton.
type Matcher interface {
	Match(ctx context.Context, question string) (Result, error)
	MatchBatch(ctx context.Context, questions []string) ([]Result, error)
}

// Embedder produces embedding vectors for texts. *EmbeddingService is the
// production implementation.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingMatcher scores questions against the field corpus by cosine
// similarity of embeddings. Corpus embeddings are computed once at
// construction.
type EmbeddingMatcher struct {
	embedder  Embedder
	threshold float64
	entries   []corpusEntry
	vectors   [][]float32
	logger    *zap.Logger
}

// NewEmbeddingMatcher builds a matcher with corpus embeddings precomputed.
// The construction call hits the embedding backend, so a failure here means
// the backend is unreachable and the caller should fall back to the keyword
// matcher.
func NewEmbeddingMatcher(ctx context.Context, embedder Embedder, threshold float64, logger *zap.Logger) (*EmbeddingMatcher, error) {
	entries := corpus()
	phrases := make([]string, len(entries))
	for i, e := range entries {
		phrases[i] = e.phrase
	}

	vectors, err := embedder.EmbedBatch(ctx, phrases)
	if err != nil {
		return nil, fmt.Errorf("precomputing corpus embeddings: %w", err)
	}

	logger.Info("embedding matcher ready",
		zap.Int("corpus_size", len(entries)),
		zap.Float64("threshold", threshold),
	)

	return &EmbeddingMatcher{
		embedder:  embedder,
		threshold: threshold,
		entries:   entries,
		vectors:   vectors,
		logger:    logger,
	}, nil
}

// Match maps one question to its best-scoring field.
func (m *EmbeddingMatcher) Match(ctx context.Context, question string) (Result, error) {
	results, err := m.MatchBatch(ctx, []string{question})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// MatchBatch maps many questions in one embedding call. Results are
// positionally aligned with questions and identical to per-question Match
// calls.
func (m *EmbeddingMatcher) MatchBatch(ctx context.Context, questions []string) ([]Result, error) {
	results := make([]Result, len(questions))

	cleaned := make([]string, len(questions))
	for i, q := range questions {
		cleaned[i] = domain.NormalizeQuestion(q)
	}

	var embedIdx []int
	var embedTexts []string
	for i, q := range cleaned {
		if q == "" {
			continue
		}
		embedIdx = append(embedIdx, i)
		embedTexts = append(embedTexts, q)
	}
	if len(embedTexts) == 0 {
		return results, nil
	}

	vectors, err := m.embedder.EmbedBatch(ctx, embedTexts)
	if err != nil {
		return nil, err
	}

	for j, qv := range vectors {
		i := embedIdx[j]
		best := m.bestEntry(qv)
		results[i].Score = best.Score
		if best.Score >= m.threshold {
			results[i].Field = best.Field
		}
	}
	return results, nil
}

func (m *EmbeddingMatcher) bestEntry(question []float32) Result {
	var best Result
	for i, v := range m.vectors {
		score := CosineSimilarity(question, v)
		if score > best.Score {
			best = Result{Field: m.entries[i].field, Score: score}
		}
	}
	return best
}

// KeywordMatcher is the reduced-mode matcher used when no embedding backend
// is configured or reachable. It scores by exact and containment overlap
// against the same corpus, so obvious questions still resolve.
type KeywordMatcher struct {
	threshold float64
	entries   []corpusEntry
	phrases   []string
}

// NewKeywordMatcher builds a keyword matcher over the field corpus. Corpus
// phrases are folded once at construction.
func NewKeywordMatcher(threshold float64) *KeywordMatcher {
	entries := corpus()
	phrases := make([]string, len(entries))
	for i, e := range entries {
		phrases[i] = foldPunctuation(e.phrase)
	}
	return &KeywordMatcher{
		threshold: threshold,
		entries:   entries,
		phrases:   phrases,
	}
}

func (m *KeywordMatcher) Match(_ context.Context, question string) (Result, error) {
	q := foldPunctuation(domain.NormalizeQuestion(question))
	if q == "" {
		return Result{}, nil
	}

	var best Result
	for i, e := range m.entries {
		score := keywordScore(q, m.phrases[i])
		if score > best.Score {
			best = Result{Field: e.field, Score: score}
		}
	}
	if best.Score < m.threshold {
		best.Field = ""
	}
	return best, nil
}

func (m *KeywordMatcher) MatchBatch(ctx context.Context, questions []string) ([]Result, error) {
	results := make([]Result, len(questions))
	for i, q := range questions {
		r, err := m.Match(ctx, q)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

// keywordScore scores a normalized question against one corpus phrase. An
// exact match scores 1.0; word-boundary containment scores the length ratio
// of the shorter to the longer string.
func keywordScore(question, phrase string) float64 {
	if question == phrase {
		return 1.0
	}
	if containsWords(question, phrase) || containsWords(phrase, question) {
		shorter, longer := len(question), len(phrase)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}
	return 0
}

// containsWords reports whether needle appears in haystack on word
// boundaries, so "sex" does not match inside "sextet".
func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// foldPunctuation drops everything but letters, digits and spaces and
// collapses the resulting whitespace. Word-boundary containment misfires on
// trailing punctuation ("what is your name?" vs "what is your name"), which
// the embedding path never notices but keyword comparison must.
func foldPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
