package domain

import (
	"strings"
	"time"
	"unicode"
)

// VerifiedAnswer is an owner-approved Q&A pair. Rows are append-only: edits
// create a new version and set SupersededBy on the old one, so the retrieval
// engine only ever reads the latest non-superseded row per question.
type VerifiedAnswer struct {
	ID                string
	TwinID            string
	QuestionText      string
	QuestionEmbedding []float32
	AnswerText        string
	Confidence        float32
	SupersededBy      string
	CreatedAt         time.Time
}

// Superseded reports whether a newer version of this answer exists.
func (a *VerifiedAnswer) Superseded() bool {
	return a.SupersededBy != ""
}

var contractions = map[string]string{
	"what's":  "what is",
	"whats":   "what is",
	"who's":   "who is",
	"where's": "where is",
	"how's":   "how is",
	"it's":    "it is",
	"isn't":   "is not",
	"aren't":  "are not",
	"don't":   "do not",
	"doesn't": "does not",
	"can't":   "can not",
	"won't":   "will not",
	"i'm":     "i am",
	"you're":  "you are",
	"we're":   "we are",
	"they're": "they are",
}

// NormalizeQuestion canonicalizes question text for exact-match comparison:
// lowercase, contractions expanded, punctuation stripped, whitespace collapsed.
// The approval workflow stores the same normalization alongside each question,
// so both sides must stay in sync with this function.
func NormalizeQuestion(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))

	var tokens []string
	for _, field := range strings.Fields(lowered) {
		if expanded, ok := contractions[strings.Trim(field, ".,!?;:")]; ok {
			tokens = append(tokens, strings.Fields(expanded)...)
			continue
		}
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsNumber(r) {
				return r
			}
			return -1
		}, field)
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}

	return strings.Join(tokens, " ")
}
