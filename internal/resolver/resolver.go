package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/answergen"
	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/matcher"
)

// GeneratedConfidence is the fixed confidence recorded for answers produced
// by the generative tier.
const GeneratedConfidence = 70

// Resolution is the full outcome for one question: the answer to apply plus
// an optional mapping proposal for the learning loop. Learned hits propose
// nothing; they are already known.
type Resolution struct {
	Answer  domain.ResolvedAnswer
	Mapping *domain.NewMapping
}

// Resolver turns a question into an answer through three tiers: learned
// mappings, semantic profile match, then generative fallback. It holds no
// mutable state, so resolving the same question twice against the same
// snapshot and profile gives the same outcome.
type Resolver struct {
	matcher   matcher.Matcher
	generator answergen.Generator
	logger    *zap.Logger
}

// New creates a resolver.
func New(m matcher.Matcher, g answergen.Generator, logger *zap.Logger) *Resolver {
	return &Resolver{matcher: m, generator: g, logger: logger}
}

// Resolve produces the answer for one question. learned and profile are
// read-only inputs for the duration of a run.
func (r *Resolver) Resolve(ctx context.Context, question string, learned domain.LearnedSnapshot, profile domain.Profile) Resolution {
	// Tier 1: previously learned answer for this exact question.
	if value, ok := learned.Lookup(question); ok {
		return Resolution{
			Answer: domain.ResolvedAnswer{
				Value:  value,
				Source: domain.SourceLearned,
			},
		}
	}

	// Tier 2: semantic match against the profile. A matched field whose
	// value is blank or whitespace falls through to generation.
	match, err := r.matcher.Match(ctx, question)
	if err != nil {
		r.logger.Warn("matcher unavailable, skipping profile tier",
			zap.String("question", question),
			zap.Error(err),
		)
	} else if match.Matched() {
		if value := profile.Value(match.Field); strings.TrimSpace(value) != "" {
			confidence := int(match.Score * 100)
			return Resolution{
				Answer: domain.ResolvedAnswer{
					Value:      value,
					Source:     domain.SourceProfile,
					Confidence: confidence,
				},
				Mapping: &domain.NewMapping{
					Question:   question,
					Field:      match.Field,
					Value:      value,
					Confidence: confidence,
				},
			}
		}
	}

	// Tier 3: generative fallback.
	value, err := r.generator.Generate(ctx, question, profile)
	if err != nil {
		// The generator chain normally bottoms out in the template
		// generator and cannot fail; if it somehow does, answer generically
		// rather than leaving the field blank.
		r.logger.Error("answer generation failed, using generic answer",
			zap.String("question", question),
			zap.Error(err),
		)
		value = genericAnswer(profile)
	}

	return Resolution{
		Answer: domain.ResolvedAnswer{
			Value:      value,
			Source:     domain.SourceAIGenerated,
			Confidence: GeneratedConfidence,
		},
		Mapping: &domain.NewMapping{
			Question:   question,
			Field:      domain.FieldAIGenerated,
			Value:      value,
			Confidence: GeneratedConfidence,
		},
	}
}

// genericAnswer is the last-resort answer when every generation path failed.
func genericAnswer(p domain.Profile) string {
	if p.Bio != "" {
		return p.Bio
	}
	return "I am an enthusiastic student eager to learn and grow."
}
