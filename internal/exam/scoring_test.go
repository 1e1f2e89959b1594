package exam

import (
	"testing"

	"github.com/pavelanni/examhall/internal/model"
)

func TestScore(t *testing.T) {
	questions := []model.Question{
		{ID: 1, OptionA: "3", OptionB: "4", OptionC: "5", OptionD: "6", CorrectKey: "b"},
		{ID: 2, OptionA: "Mumbai", OptionB: "Chennai", OptionC: "New Delhi", OptionD: "Kolkata", CorrectKey: "new delhi"},
		{ID: 3, OptionA: "x", OptionB: "y", OptionC: "z", OptionD: "w", CorrectKey: " D "},
		{ID: 4, OptionA: "x", OptionB: "y", OptionC: "z", OptionD: "w", CorrectKey: ""},
	}

	tests := []struct {
		name    string
		answers map[int64]string
		want    int
	}{
		{"no answers", nil, 0},
		{"letter key", map[int64]string{1: "b"}, 1},
		{"letter key upper", map[int64]string{1: " B "}, 1},
		{"letter key wrong", map[int64]string{1: "a"}, 0},
		{"text key", map[int64]string{2: "c"}, 1},
		{"text key upper letter", map[int64]string{2: "C"}, 1},
		{"text key wrong option", map[int64]string{2: "a"}, 0},
		{"text key with text answer", map[int64]string{2: "New Delhi"}, 0},
		{"spaced letter key", map[int64]string{3: "d"}, 1},
		{"empty key never scores", map[int64]string{4: "a"}, 0},
		{"unknown question ignored", map[int64]string{99: "a", 1: "b"}, 1},
		{"all correct", map[int64]string{1: "b", 2: "c", 3: "D", 4: "b"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(questions, tt.answers); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"A", "a"},
		{" c ", "c"},
		{"d", "d"},
		{"E", "E"},
		{"  New Delhi ", "New Delhi"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := canonicalKey(tt.in); got != tt.want {
			t.Errorf("canonicalKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
