// Package intent recognises the few free-text messages the bot answers
// outside of an edit.
package intent

import (
	"strings"
	"unicode"
)

// Label 表示识别出的用户意图。
type Label string

const (
	None     Label = "none"
	Thanks   Label = "thanks"
	Greeting Label = "greeting"
)

// Decision 给出意图识别结果以及命中的短语。
type Decision struct {
	Intent Label
	Phrase string
}

// Phrases must make up the whole message; "thanks for nothing, where is my
// file" is not a thank-you.
var phraseBuckets = map[Label][]string{
	Thanks: {
		"thanks", "thank you", "thx", "ty", "thanks a lot", "thank you very much", "many thanks",
		"спасибо", "спс", "большое спасибо", "благодарю", "спасибо большое",
	},
	Greeting: {
		"hi", "hello", "hey", "good morning", "good evening",
		"привет", "здравствуйте", "добрый день", "добрый вечер", "хай",
	},
}

var phraseIndex = buildIndex()

func buildIndex() map[string]Label {
	index := make(map[string]Label)
	for label, phrases := range phraseBuckets {
		for _, phrase := range phrases {
			index[normalize(phrase)] = label
		}
	}
	return index
}

// Classify 根据整句文本判断用户意图。
func Classify(text string) Decision {
	normalized := normalize(text)
	if normalized == "" {
		return Decision{Intent: None}
	}
	if label, ok := phraseIndex[normalized]; ok {
		return Decision{Intent: label, Phrase: normalized}
	}
	return Decision{Intent: None}
}

// normalize lowercases text, drops punctuation and emoji and collapses spaces.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
