package exam

import (
	"strings"

	"github.com/pavelanni/examhall/internal/model"
)

func isLetterKey(k string) bool {
	switch strings.ToLower(k) {
	case "a", "b", "c", "d":
		return true
	}
	return false
}

// Score counts correct answers. answers maps question ID to the option letter
// the student picked; IDs outside questions are ignored.
//
// A letter key is matched against the picked letter. Any other key is matched
// against the text of the picked option. Both comparisons ignore case and
// surrounding space.
func Score(questions []model.Question, answers map[int64]string) int {
	score := 0
	for _, q := range questions {
		if isCorrect(q, answers[q.ID]) {
			score++
		}
	}
	return score
}

func isCorrect(q model.Question, answer string) bool {
	key := strings.TrimSpace(q.CorrectKey)
	answer = strings.TrimSpace(answer)
	if key == "" || answer == "" {
		return false
	}
	if isLetterKey(key) {
		return strings.EqualFold(answer, key)
	}
	picked, ok := q.Option(answer)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(picked), key)
}
