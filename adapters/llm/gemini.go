// Package llm provides the dialogue model adapters. The production backend is
// Gemini over the genai SDK; the mock scripts deterministic delta sequences
// for pipeline tests.
package llm

import (
	"context"
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/voxkit/voxbridge/domain/repositories"
)

const (
	defaultModel           = "gemini-2.0-flash"
	defaultTemperature     = 0.7
	defaultTopP            = 0.9
	defaultTopK            = 40
	defaultMaxOutputTokens = 512
)

// GeminiConfig holds configuration for the Gemini dialogue backend.
type GeminiConfig struct {
	APIKey          string
	Model           string
	SystemPrompt    string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
}

// GeminiDialogue implements DialogueModel using Google's Gemini API.
type GeminiDialogue struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

var _ repositories.DialogueModel = (*GeminiDialogue)(nil)

// NewGeminiDialogue creates a Gemini-backed dialogue model.
func NewGeminiDialogue(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiDialogue, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.TopP == 0 {
		config.TopP = defaultTopP
	}
	if config.TopK == 0 {
		config.TopK = defaultTopK
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaultMaxOutputTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiDialogue{client: client, config: config, logger: logger}, nil
}

func (g *GeminiDialogue) StartChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &geminiChatSession{
		client:  g.client,
		config:  g.config,
		logger:  g.logger,
		history: toGeminiContents(history),
	}, nil
}

// geminiChatSession holds one conversation. Not safe for concurrent use; the
// session actor is the only caller.
type geminiChatSession struct {
	client  *genai.Client
	config  GeminiConfig
	logger  *zap.Logger
	history []*genai.Content
}

var _ repositories.ChatSession = (*geminiChatSession)(nil)

func (s *geminiChatSession) SendStreaming(ctx context.Context, message repositories.ChatMessage) (repositories.DeltaStream, error) {
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userContent)

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(s.config.Temperature),
		TopP:            genai.Ptr(s.config.TopP),
		TopK:            genai.Ptr(s.config.TopK),
		MaxOutputTokens: int32(s.config.MaxOutputTokens),
	}
	if s.config.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(s.config.SystemPrompt, genai.RoleUser)
	}

	seq := s.client.Models.GenerateContentStream(ctx, s.config.Model, contents, genConfig)
	next, stop := iter.Pull2(seq)

	return &geminiDeltaStream{
		session:     s,
		userContent: userContent,
		next:        next,
		stop:        stop,
	}, nil
}

func (s *geminiChatSession) History() ([]repositories.ChatMessage, error) {
	return fromGeminiContents(s.history), nil
}

// geminiDeltaStream pulls text deltas out of the streamed responses. The user
// turn and the accumulated reply are committed to history only once the stream
// finishes cleanly, so an aborted generation leaves history untouched.
type geminiDeltaStream struct {
	session     *geminiChatSession
	userContent *genai.Content
	next        func() (*genai.GenerateContentResponse, error, bool)
	stop        func()
	accumulated string
	done        bool
}

func (d *geminiDeltaStream) Next() (string, error) {
	if d.done {
		return "", io.EOF
	}
	for {
		resp, err, ok := d.next()
		if !ok {
			d.done = true
			d.commit()
			return "", io.EOF
		}
		if err != nil {
			d.done = true
			return "", fmt.Errorf("gemini stream: %w", err)
		}

		var delta string
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			for _, part := range resp.Candidates[0].Content.Parts {
				delta += part.Text
			}
		}
		if delta == "" {
			continue
		}
		d.accumulated += delta
		return delta, nil
	}
}

func (d *geminiDeltaStream) Close() error {
	d.done = true
	d.stop()
	return nil
}

func (d *geminiDeltaStream) commit() {
	if d.accumulated == "" {
		return
	}
	s := d.session
	s.history = append(s.history,
		d.userContent,
		genai.NewContentFromText(d.accumulated, genai.RoleModel))
	s.logger.Debug("dialogue turn committed",
		zap.Int("history_length", len(s.history)),
		zap.Int("response_runes", len([]rune(d.accumulated))))
}

func toGeminiContents(messages []repositories.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role genai.Role = genai.RoleUser
		if msg.Role == repositories.AssistantRole {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

func fromGeminiContents(contents []*genai.Content) []repositories.ChatMessage {
	messages := make([]repositories.ChatMessage, 0, len(contents))
	for _, content := range contents {
		role := repositories.UserRole
		if content.Role == string(genai.RoleModel) {
			role = repositories.AssistantRole
		}
		var text string
		for _, part := range content.Parts {
			text += part.Text
		}
		if text == "" {
			continue
		}
		messages = append(messages, repositories.ChatMessage{Role: role, Content: text})
	}
	return messages
}
