package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "GATE-IELTS Simulator" {
		t.Errorf("T(AppTitle) = %q, want 'GATE-IELTS Simulator'", got)
	}

	got = T(ctx, "ErrGrading")
	if got != "Grading failed. Your answers are safe; press Retry to submit them again." {
		t.Errorf("T(ErrGrading) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "AppTitle")
	if got != "Симулятор GATE-IELTS" {
		t.Errorf("T(AppTitle) = %q, want 'Симулятор GATE-IELTS'", got)
	}

	got = T(ctx, "NoticeCancelled")
	if got != "Тест был отменён." {
		t.Errorf("T(NoticeCancelled) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "RawScore", map[string]any{"Correct": 3, "Total": 5})
	if got != "Raw score: 3 of 5" {
		t.Errorf("Td(RawScore) = %q, want 'Raw score: 3 of 5'", got)
	}
}

func TestMissingTranslationFallsBackToID(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NoSuchMessage"); got != "NoSuchMessage" {
		t.Errorf("T(NoSuchMessage) = %q, want the ID itself", got)
	}
}

func TestMissingLocalizerUsesEnglish(t *testing.T) {
	initLang(t, "en")

	got := T(context.Background(), "AppTitle")
	if got != "GATE-IELTS Simulator" {
		t.Errorf("T without localizer = %q, want English fallback", got)
	}
}

func TestInitRejectsBadTag(t *testing.T) {
	if err := Init("no_such-lang!"); err == nil {
		t.Error("Init should reject an unparsable language tag")
	}
}
