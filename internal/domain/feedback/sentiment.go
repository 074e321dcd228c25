package feedback

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ayurveda/clinic/internal/platform/llm"
)

// Analyzer tags a feedback message with a sentiment.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Sentiment, error)
}

// LexiconAnalyzer scores messages against fixed word lists. A negator
// directly before a word flips its polarity.
type LexiconAnalyzer struct{}

var (
	positiveWords = wordSet("good", "great", "excellent", "amazing", "helpful", "kind", "caring",
		"relaxed", "relaxing", "better", "improved", "happy", "satisfied", "recommend", "wonderful",
		"friendly", "professional", "effective", "comfortable", "thank", "thanks", "love", "loved",
		"best", "calm", "relief", "healing", "attentive", "clean")
	negativeWords = wordSet("bad", "poor", "terrible", "awful", "rude", "worse", "worst", "pain",
		"painful", "late", "delay", "delayed", "unhelpful", "dirty", "disappointed", "disappointing",
		"unhappy", "waste", "expensive", "careless", "ignored", "uncomfortable", "horrible",
		"problem", "slow")
	negators = wordSet("not", "no", "never", "hardly", "didn't", "don't", "wasn't", "isn't", "dont", "didnt", "wasnt", "isnt")
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func (LexiconAnalyzer) Analyze(_ context.Context, text string) (Sentiment, error) {
	score := 0
	words := tokenize(text)
	for i, w := range words {
		var polarity int
		switch {
		case positiveWords[w]:
			polarity = 1
		case negativeWords[w]:
			polarity = -1
		default:
			continue
		}
		if i > 0 && negators[words[i-1]] {
			polarity = -polarity
		}
		score += polarity
	}
	switch {
	case score > 0:
		return Positive, nil
	case score < 0:
		return Negative, nil
	}
	return Neutral, nil
}

const classifyPrompt = "You classify patient feedback for an Ayurvedic clinic. " +
	"Answer with exactly one word: positive, negative or neutral."

// LLMAnalyzer asks a language model to classify the message.
type LLMAnalyzer struct {
	Client llm.Client
}

func (a LLMAnalyzer) Analyze(ctx context.Context, text string) (Sentiment, error) {
	out, err := a.Client.Complete(ctx, classifyPrompt, text)
	if err != nil {
		return "", err
	}
	word := strings.Trim(strings.ToLower(strings.TrimSpace(out)), ".!\"'")
	if i := strings.IndexFunc(word, unicode.IsSpace); i >= 0 {
		word = word[:i]
	}
	s, err := ParseSentiment(word)
	if err != nil {
		return "", fmt.Errorf("classifier answered %q: %w", out, err)
	}
	return s, nil
}
