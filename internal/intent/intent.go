// Package intent labels a user prompt with a coarse request category so the
// prompt assembler can append category-specific instructions.
package intent

import "strings"

// Intent labels.
const (
	CodeGeneration = "code_generation"
	CodeReview     = "code_review"
	Debugging      = "debugging"
	Explanation    = "explanation"
	Summarization  = "summarization"
	Translation    = "translation"
	General        = "general"
)

// Result is one classification outcome.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// keyword tables are policy data; extend them without touching Classify.
var intentKeywords = map[string][]string{
	CodeGeneration: {"write a function", "write code", "implement", "generate code", "create a script", "scaffold"},
	CodeReview:     {"review this", "review my", "code review", "any issues with", "critique"},
	Debugging:      {"debug", "stack trace", "error message", "not working", "fix this bug", "panics", "crashes"},
	Explanation:    {"explain", "what does", "how does", "why does", "walk me through"},
	Summarization:  {"summarize", "summary", "tl;dr", "key points", "condense"},
	Translation:    {"translate", "translation", "in spanish", "in french", "in german", "in chinese", "in japanese"},
}

// classification order breaks ties deterministically when keyword hit
// counts are equal.
var intentOrder = []string{CodeGeneration, Debugging, CodeReview, Summarization, Translation, Explanation}

// Classify returns the best-matching intent label for a prompt. Confidence
// grows with the number of keyword hits and is capped at 0.95; an
// unclassified prompt returns the general label at low confidence.
func Classify(prompt string) Result {
	lowered := strings.ToLower(prompt)

	best := Result{Label: General, Confidence: 0.3}
	bestHits := 0
	for _, label := range intentOrder {
		hits := 0
		for _, keyword := range intentKeywords[label] {
			if strings.Contains(lowered, keyword) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			confidence := 0.5 + 0.15*float64(hits)
			if confidence > 0.95 {
				confidence = 0.95
			}
			best = Result{Label: label, Confidence: confidence}
		}
	}
	return best
}

// InstructionSuffix returns the guidance appended to the assembled prompt
// for a given intent label, empty for general requests.
func InstructionSuffix(label string) string {
	switch label {
	case CodeGeneration:
		return "Provide complete, runnable code with a brief explanation of key decisions."
	case CodeReview:
		return "Point out correctness issues first, then style concerns, citing specific lines."
	case Debugging:
		return "Identify the most likely root cause before suggesting fixes."
	case Explanation:
		return "Explain step by step, starting from the overall picture."
	case Summarization:
		return "Keep the summary short and preserve concrete figures and names."
	case Translation:
		return "Preserve tone and formatting of the source text."
	default:
		return ""
	}
}
