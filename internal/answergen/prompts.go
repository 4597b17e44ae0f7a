package answergen

import (
	"fmt"
	"strings"

	"github.com/formpilot/formpilot/internal/domain"
)

const answerSystemPrompt = `You are an assistant helping a student fill out a form.
Based on the student's profile, generate a realistic, appropriate, and concise answer
for the given question. The answer must sound natural and be truthful based on the profile information.

RULES:
1. Answer must be relevant to the question
2. Use information from the profile when possible
3. Keep answers concise (1-3 sentences for paragraph questions, short for text fields)
4. Do NOT invent specific dates, numbers, or certifications that aren't in the profile
5. Do NOT use any markdown or formatting, plain text only
6. Be realistic and safe, do not exaggerate or hallucinate`

// buildAnswerPrompt renders the user prompt: the non-empty profile fields
// followed by the question.
func buildAnswerPrompt(question string, profile domain.Profile) string {
	var b strings.Builder
	b.WriteString("STUDENT PROFILE:\n")
	for _, fv := range profile.NonEmpty() {
		fmt.Fprintf(&b, "- %s: %s\n", fieldLabel(fv.Field), fv.Value)
	}
	fmt.Fprintf(&b, "\nFORM QUESTION: %q\n\nANSWER:", question)
	return b.String()
}

// fieldLabel turns a canonical field name into a human-readable label, e.g.
// "full_name" becomes "Full Name".
func fieldLabel(f domain.FieldName) string {
	words := strings.Split(string(f), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
