package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLanguage(context.Background(), lang)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "ErrForbidden", "Not allowed"},
		{"te", "ErrForbidden", "అనుమతి లేదు"},
		{"en", "ErrAlreadyRecorded", "Already submitted"},
		{"fr", "ErrNotFound", "Not found"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsImported", 1); got != "1 question imported" {
		t.Errorf("Tp(1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsImported", 5); got != "5 questions imported" {
		t.Errorf("Tp(5) = %q", got)
	}
}

func TestResultMessage(t *testing.T) {
	data := map[string]any{
		"Name": "Anil", "Roll": "101", "Score": 2, "Total": 2,
		"Year": "Y2", "Branch": "CS", "Section": "A",
	}

	en := Td(initLang(t, "en"), "ResultSMS", data)
	for _, want := range []string{"Student: Anil", "Roll: 101", "Marks: 2/2", "Section: A"} {
		if !strings.Contains(en, want) {
			t.Errorf("english message missing %q:\n%s", want, en)
		}
	}

	te := Td(initLang(t, "te"), "ResultSMS", data)
	if !strings.Contains(te, "మార్కులు: 2/2") {
		t.Errorf("telugu message = %q", te)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrConflict")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "te-IN,te;q=0.9,en;q=0.8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "వైరుధ్యం" {
		t.Errorf("with te header got %q", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "Conflict" {
		t.Errorf("without header got %q", got)
	}
}
