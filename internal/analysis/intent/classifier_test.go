package intent

import "testing"

func TestClassifyThanks(t *testing.T) {
	for _, text := range []string{"thanks", "Thank you!", "  СПАСИБО ", "thx :)", "Большое спасибо!!!"} {
		if got := Classify(text); got.Intent != Thanks {
			t.Fatalf("expected thanks for %q, got %s", text, got.Intent)
		}
	}
}

func TestClassifyGreeting(t *testing.T) {
	decision := Classify("Привет!")
	if decision.Intent != Greeting {
		t.Fatalf("expected greeting, got %s", decision.Intent)
	}
	if decision.Phrase != "привет" {
		t.Fatalf("expected normalized phrase, got %q", decision.Phrase)
	}
}

func TestClassifyRequiresWholeMessage(t *testing.T) {
	for _, text := range []string{"", "hello there, where is my file", "no thanks", "Ocean", "!!!"} {
		if got := Classify(text); got.Intent != None {
			t.Fatalf("expected none for %q, got %s", text, got.Intent)
		}
	}
}
