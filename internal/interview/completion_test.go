package interview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapUpHeuristic(t *testing.T) {
	h := NewWrapUpHeuristic()

	tests := []struct {
		name  string
		text  string
		turns int
		want  bool
	}{
		{"wrap-up with enough turns", "cool cool, got it. lemme make you something real quick...", 2, true},
		{"wrap-up uppercase", "OK! Making You Something now", 3, true},
		{"wrap-up with one turn", "cool cool, got it. lemme make you something real quick...", 1, false},
		{"ordinary question", "that's sick, what kind of hiking do you do?", 5, false},
		{"phrase split across words", "i could make yousomething", 5, false},
		{"empty", "", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.IsInterviewComplete(tt.text, tt.turns))
		})
	}
}

func TestUserDoneHeuristic(t *testing.T) {
	h := NewUserDoneHeuristic()

	assert.True(t, h.IsInterviewComplete("I love hiking and coding, nothing else, that's it", 2))
	assert.True(t, h.IsInterviewComplete("thats all lol", 3))
	assert.True(t, h.IsInterviewComplete("I’m done!", 2))
	assert.False(t, h.IsInterviewComplete("that's it", 1))
	assert.False(t, h.IsInterviewComplete("this is it", 4))
	assert.False(t, h.IsInterviewComplete("we goods", 4))
}

func TestContainsPhrase(t *testing.T) {
	assert.True(t, ContainsPhrase("STOP", OptOutKeywords))
	assert.True(t, ContainsPhrase("please stop texting me", OptOutKeywords))
	assert.True(t, ContainsPhrase("Unsubscribe.", OptOutKeywords))
	assert.False(t, ContainsPhrase("i can't stopwatch this", OptOutKeywords))
	assert.False(t, ContainsPhrase("nonstop fun", OptOutKeywords))
	assert.False(t, ContainsPhrase("anything", nil))
}

func TestCompletionFunc(t *testing.T) {
	var h CompletionHeuristic = CompletionFunc(func(text string, turns int) bool {
		return text == "done" && turns > 0
	})
	assert.True(t, h.IsInterviewComplete("done", 1))
	assert.False(t, h.IsInterviewComplete("done", 0))
}
