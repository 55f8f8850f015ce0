package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatGreeting opens every conversation.
const ChatGreeting = "Hi! 👋 I'm your AI fitness assistant. Ask me anything about workouts, exercises, nutrition, or fitness tips! 💪"
