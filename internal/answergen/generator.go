package answergen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/domain"
)

// Generator produces an answer for a question that matched no profile field.
// Implementations must return a non-empty answer or an error, never both
// empty.
type Generator interface {
	Generate(ctx context.Context, question string, profile domain.Profile) (string, error)
}

// WithFallback chains a primary generator with a fallback. The fallback is
// consulted whenever the primary errors or returns an empty answer, so pairing
// any remote generator with the TemplateGenerator guarantees an answer.
func WithFallback(primary, fallback Generator, logger *zap.Logger) Generator {
	return &fallbackGenerator{primary: primary, fallback: fallback, logger: logger}
}

type fallbackGenerator struct {
	primary  Generator
	fallback Generator
	logger   *zap.Logger
}

func (g *fallbackGenerator) Generate(ctx context.Context, question string, profile domain.Profile) (string, error) {
	answer, err := g.primary.Generate(ctx, question, profile)
	if err == nil && strings.TrimSpace(answer) != "" {
		return answer, nil
	}
	if err != nil {
		g.logger.Warn("primary answer generation failed, using fallback",
			zap.String("question", question),
			zap.Error(err),
		)
	}
	return g.fallback.Generate(ctx, question, profile)
}

// TemplateGenerator builds answers locally from the profile using pattern
// templates. It never errors and never returns an empty answer, which makes
// it the terminal fallback in every generator chain.
type TemplateGenerator struct{}

// NewTemplateGenerator creates the local template generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

const genericAnswer = "I am an enthusiastic student eager to learn and grow."

func (g *TemplateGenerator) Generate(_ context.Context, question string, profile domain.Profile) (string, error) {
	q := strings.ToLower(strings.TrimSpace(question))

	switch {
	case containsAny(q, "why do you want", "motivation", "why are you", "why join", "reason for"):
		return g.motivation(profile), nil
	case containsAny(q, "about yourself", "introduce yourself", "tell us about", "describe yourself", "brief about"):
		return g.introduction(profile), nil
	case containsAny(q, "achievement", "accomplishment", "proud of", "notable"):
		return g.achievements(profile), nil
	case containsAny(q, "expect", "expectation", "hope to", "looking forward", "what do you want to learn"):
		return g.expectations(profile), nil
	case containsAny(q, "skill", "technical skill", "tools", "technologies", "programming"):
		if profile.Skills != "" {
			return profile.Skills, nil
		}
		return "Problem solving, teamwork, and communication skills.", nil
	case containsAny(q, "experience", "work experience", "internship", "project"):
		return g.experience(profile), nil
	}

	return g.generic(profile), nil
}

func (g *TemplateGenerator) motivation(p domain.Profile) string {
	var parts []string
	if p.Interests != "" {
		parts = append(parts, fmt.Sprintf("I am deeply interested in %s", p.Interests))
	}
	if p.Skills != "" {
		parts = append(parts, fmt.Sprintf("and have skills in %s", p.Skills))
	}
	if p.Department != "" {
		parts = append(parts, fmt.Sprintf("As a %s student", p.Department))
	}
	if p.Bio != "" {
		parts = append(parts, truncate(p.Bio, 200))
	}
	if len(parts) == 0 {
		return "I am passionate about learning and growing in this field."
	}
	return strings.Join(parts, ". ")
}

func (g *TemplateGenerator) introduction(p domain.Profile) string {
	var parts []string
	if p.FullName != "" {
		parts = append(parts, fmt.Sprintf("I am %s", p.FullName))
	}
	switch {
	case p.Department != "" && p.CollegeName != "":
		parts = append(parts, fmt.Sprintf("a %s student at %s", p.Department, p.CollegeName))
	case p.Department != "":
		parts = append(parts, fmt.Sprintf("studying %s", p.Department))
	}
	if p.Year != "" {
		parts = append(parts, fmt.Sprintf("currently in %s", p.Year))
	}
	if p.Skills != "" {
		parts = append(parts, fmt.Sprintf("I have skills in %s", p.Skills))
	}
	if p.Interests != "" {
		parts = append(parts, fmt.Sprintf("and I am interested in %s", p.Interests))
	}
	if p.Bio != "" {
		parts = append(parts, truncate(p.Bio, 200))
	}
	if len(parts) == 0 {
		return "I am an enthusiastic student eager to learn and contribute."
	}
	return strings.Join(parts, ". ")
}

func (g *TemplateGenerator) achievements(p domain.Profile) string {
	var parts []string
	if p.Skills != "" {
		parts = append(parts, fmt.Sprintf("I have developed proficiency in %s", p.Skills))
	}
	if p.Department != "" {
		parts = append(parts, fmt.Sprintf("with a strong academic foundation in %s", p.Department))
	}
	if len(p.Bio) > 50 {
		parts = append(parts, truncate(p.Bio, 200))
	}
	if len(parts) == 0 {
		return "I have consistently worked on improving my skills and contributing to team projects."
	}
	return strings.Join(parts, ". ")
}

func (g *TemplateGenerator) expectations(p domain.Profile) string {
	var parts []string
	if p.Interests != "" {
		parts = append(parts, fmt.Sprintf("exploring %s", p.Interests))
	}
	parts = append(parts, "enhancing my practical skills", "networking with like-minded peers")
	return "I look forward to " + strings.Join(parts, ", ") + "."
}

func (g *TemplateGenerator) experience(p domain.Profile) string {
	var parts []string
	if p.Skills != "" {
		parts = append(parts, fmt.Sprintf("I have hands-on experience with %s", p.Skills))
	}
	if p.Department != "" {
		parts = append(parts, fmt.Sprintf("gained through my %s studies", p.Department))
	}
	if p.Bio != "" {
		parts = append(parts, truncate(p.Bio, 200))
	}
	if len(parts) == 0 {
		return "I have experience through academic projects and self-learning."
	}
	return strings.Join(parts, ". ")
}

func (g *TemplateGenerator) generic(p domain.Profile) string {
	var parts []string
	if p.Bio != "" {
		parts = append(parts, truncate(p.Bio, 300))
	} else if p.FullName != "" && p.Department != "" {
		parts = append(parts, fmt.Sprintf("As %s, a %s student, I would like to share that I am enthusiastic about this opportunity.", p.FullName, p.Department))
	}
	if p.Skills != "" {
		parts = append(parts, fmt.Sprintf("My skills include %s.", p.Skills))
	}
	if p.Interests != "" {
		parts = append(parts, fmt.Sprintf("I am interested in %s.", p.Interests))
	}
	if len(parts) == 0 {
		return genericAnswer
	}
	return strings.Join(parts, " ")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// truncate limits s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
