package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/completion"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/metrics"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"go.uber.org/zap"
)

const (
	// ChatContextWindow is how many prior messages are forwarded with a question.
	ChatContextWindow = 5

	chatTemperature = 0.8
	chatMaxTokens   = 500

	ChatFallbackMessage = "Sorry, I encountered an error. Please try again! 🔄"
	OffTopicMessage     = "I'm your fitness assistant and I specialize in workouts, nutrition, and health topics! 💪 Ask me about exercises, training tips, or nutrition advice instead!"
)

const chatPersonaPrompt = `You are an expert fitness coach and personal trainer specializing in workouts, exercises, nutrition, and health.

IMPORTANT RULES:
1. ONLY answer questions related to: fitness, workouts, exercises, nutrition, diet, health, wellness, strength training, cardio, bodybuilding, weight loss, muscle gain, sports performance, injury prevention, recovery, and supplements.

2. If the user asks about ANYTHING else (weather, politics, general knowledge, entertainment, etc.), politely decline and redirect them back to fitness topics.

3. Keep responses concise (2-4 sentences), friendly, and encouraging. Use emojis occasionally to make it engaging.

4. If you detect an off-topic question, respond with: "` + OffTopicMessage + `"

Provide helpful, accurate fitness advice based on current exercise science.
`

// Conversation is the in-memory chat history of one user. It is never persisted.
type Conversation struct {
	mu       sync.Mutex
	messages []models.ChatMessage
	pending  int
}

func NewConversation() *Conversation {
	return &Conversation{
		messages: []models.ChatMessage{{Role: models.RoleAssistant, Content: models.ChatGreeting}},
	}
}

func (c *Conversation) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

// Pending reports how many questions are still waiting for a reply.
func (c *Conversation) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Turn is a question whose reply slot is still open. Resolve closes it; only
// the first call has an effect.
type Turn struct {
	conversation *Conversation
	once         sync.Once
}

// begin appends the question and returns the prior messages it was asked after.
func (c *Conversation) begin(question models.ChatMessage) ([]models.ChatMessage, *Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prior := append([]models.ChatMessage(nil), c.messages...)
	c.messages = append(c.messages, question)
	c.pending++
	return prior, &Turn{conversation: c}
}

func (t *Turn) Resolve(reply models.ChatMessage) {
	t.once.Do(func() {
		c := t.conversation
		c.mu.Lock()
		defer c.mu.Unlock()
		c.messages = append(c.messages, reply)
		c.pending--
	})
}

type ChatService struct {
	completer completer
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewChatService(completer completer, logger *zap.Logger, m *metrics.Metrics) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		completer: completer,
		logger:    logger,
		metrics:   m,
	}
}

// Ask appends the question, asks the model and appends exactly one assistant
// reply, falling back to a fixed apology on any failure. Blank questions are
// ignored; others are kept as typed. The full history is returned.
func (s *ChatService) Ask(
	ctx context.Context,
	conversation *Conversation,
	userText string,
	profile models.Profile,
	lastPlan *models.Plan,
) []models.ChatMessage {
	if strings.TrimSpace(userText) == "" {
		return conversation.Messages()
	}

	userMessage := models.ChatMessage{Role: models.RoleUser, Content: userText}
	prior, turn := conversation.begin(userMessage)
	reply := models.ChatMessage{Role: models.RoleAssistant, Content: ChatFallbackMessage}
	defer func() {
		turn.Resolve(reply)
	}()

	content, err := s.completer.Complete(ctx, completion.Request{
		Messages:    BuildChatMessages(prior, userMessage, profile, lastPlan),
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		s.metrics.ChatReply("fallback")
		s.logger.Warn("Chat completion failed", zap.Error(err))
		return s.resolved(conversation, turn, reply)
	}

	s.metrics.ChatReply("success")
	reply = models.ChatMessage{Role: models.RoleAssistant, Content: content}
	return s.resolved(conversation, turn, reply)
}

func (s *ChatService) resolved(conversation *Conversation, turn *Turn, reply models.ChatMessage) []models.ChatMessage {
	turn.Resolve(reply)
	return conversation.Messages()
}

// BuildChatMessages assembles the upstream context: the system instruction,
// at most ChatContextWindow prior messages and the new question.
func BuildChatMessages(
	prior []models.ChatMessage,
	question models.ChatMessage,
	profile models.Profile,
	lastPlan *models.Plan,
) []models.ChatMessage {
	window := prior
	if len(window) > ChatContextWindow {
		window = window[len(window)-ChatContextWindow:]
	}

	messages := make([]models.ChatMessage, 0, len(window)+2)
	messages = append(messages, models.ChatMessage{
		Role:    "system",
		Content: BuildChatSystemPrompt(profile, lastPlan),
	})
	for _, msg := range window {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		messages = append(messages, models.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return append(messages, question)
}

func BuildChatSystemPrompt(profile models.Profile, lastPlan *models.Plan) string {
	var b strings.Builder
	b.WriteString(chatPersonaPrompt)

	if profile.Name != "" {
		b.WriteString("\nUser Profile Context:\n")
		fmt.Fprintf(&b, "- Name: %s\n", profile.Name)
		fmt.Fprintf(&b, "- Age: %s\n", profile.Age)
		fmt.Fprintf(&b, "- Gender: %s\n", profile.Gender)
		fmt.Fprintf(&b, "- Current Weight: %s kg\n", profile.CurrentWeight)
		fmt.Fprintf(&b, "- Target Weight: %s kg\n", profile.TargetWeight)
		fmt.Fprintf(&b, "- Fitness Goal: %s\n", profile.FitnessGoal)
		fmt.Fprintf(&b, "- Activity Level: %s\n", profile.ActivityLevel)
		fmt.Fprintf(&b, "- Equipment: %s\n", profile.Equipment)
	}

	if lastPlan != nil {
		sections, err := json.Marshal(lastPlan.Plan)
		if err == nil {
			fmt.Fprintf(&b, "\nCURRENTLY GENERATED PLAN:\n%s\n", sections)
		}
	}
	return b.String()
}
