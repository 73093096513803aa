package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type MessageStatus string

const (
	MessageStatusFinal   MessageStatus = "final"
	MessageStatusLoading MessageStatus = "loading"
	MessageStatusError   MessageStatus = "error"
)

// Message is one turn of the conversation. ID and Timestamp are assigned at
// creation and never change. Content of a loading assistant message grows by
// appends until the message is finalized.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	Status    MessageStatus

	// AudioRef keys the recorded utterance in the audio resource manager.
	// Empty for messages without audio.
	AudioRef string
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Status:    MessageStatusFinal,
	}
}

// NewLoadingMessage creates the empty assistant message a stream grows into.
func NewLoadingMessage() Message {
	m := NewMessage(RoleAssistant, "")
	m.Status = MessageStatusLoading
	return m
}
