// Package messages defines Bubbletea message types for the chat UI.
package messages

import (
	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

// QuestionSubmitted is sent when the user asks a question.
type QuestionSubmitted struct {
	Question string
}

// AnswerReceived carries the outcome of a chat turn back to the model.
type AnswerReceived struct {
	Question string
	Answer   *domain.Answer
	Err      error
}

// ConversationCleared signals the history was reset.
type ConversationCleared struct{}
