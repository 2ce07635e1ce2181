package rgog

import (
	"reflect"
	"testing"
)

func TestLanguagesToBitflagsRoundTrip(t *testing.T) {
	langs := []string{"en-US", "fr-FR", "ja-JP", "so-SO"}
	lo, hi := LanguagesToBitflags(langs)
	got := BitflagsToLanguages(lo, hi)
	if !reflect.DeepEqual(got, langs) {
		t.Fatalf("round trip = %v, want %v", got, langs)
	}
}

func TestLanguagesToBitflagsUnknownTagIgnored(t *testing.T) {
	lo, hi := LanguagesToBitflags([]string{"xx-unknown"})
	if lo != 0 || hi != 0 {
		t.Fatalf("unknown language should set no bits, got lo=%d hi=%d", lo, hi)
	}
}

func TestLanguagesToBitflagsSpansBothWords(t *testing.T) {
	// en-US is bit 0 (lo word), so-SO is bit 83 (hi word, 83-64=19).
	lo, hi := LanguagesToBitflags([]string{"en-US", "so-SO"})
	if lo&1 == 0 {
		t.Fatal("expected bit 0 set in lo")
	}
	if hi&(1<<19) == 0 {
		t.Fatal("expected bit 19 set in hi (so-SO at global position 83)")
	}
}

func TestBitflagsToLanguagesEmpty(t *testing.T) {
	if got := BitflagsToLanguages(0, 0); len(got) != 0 {
		t.Fatalf("expected no languages, got %v", got)
	}
}
