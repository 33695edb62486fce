package intent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const classifierSystemPrompt = `You classify a todo-assistant user message into exactly one intent.
Intents: add, list, complete, delete, update, chat.
Use chat when no todo action is requested.
Answer with one line: "<intent> <confidence>" where confidence is a number in [0,1].
Example: "add 0.95"`

// OpenAIClassifierConfig configures the model-backed classifier.
type OpenAIClassifierConfig struct {
	APIKey  string
	Model   string
	Floor   float64
	Epsilon float64
}

// OpenAIClassifier backs the Classifier contract with a chat completion.
// The model is sampled at temperature 0 and its answer is forced through
// Resolve so floor and tie-break behave exactly as for the rule backend.
type OpenAIClassifier struct {
	client  openai.Client
	model   string
	floor   float64
	epsilon float64
}

func NewOpenAIClassifier(cfg OpenAIClassifierConfig) *OpenAIClassifier {
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	if cfg.Floor <= 0 {
		cfg.Floor = 0.55
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 0.05
	}
	var clientOpts []option.RequestOption
	if strings.TrimSpace(cfg.APIKey) != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	return &OpenAIClassifier{
		client:  openai.NewClient(clientOpts...),
		model:   cfg.Model,
		floor:   cfg.Floor,
		epsilon: cfg.Epsilon,
	}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, utterance string, history []string) (Prediction, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(classifierSystemPrompt),
	}
	if len(history) > 0 {
		messages = append(messages, openai.SystemMessage(
			"Recent conversation, oldest first:\n"+strings.Join(history, "\n")))
	}
	messages = append(messages, openai.UserMessage(utterance))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.model,
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(16),
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Prediction{}, fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	raw, confidence, err := parseModelAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Resolve(map[Intent]float64{raw: confidence}, c.floor, c.epsilon), nil
}

func parseModelAnswer(content string) (Intent, float64, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(content)))
	if len(fields) == 0 {
		return "", 0, fmt.Errorf("empty model answer")
	}
	in := Intent(strings.Trim(fields[0], `"'.,`))
	if !Valid(in) {
		return "", 0, fmt.Errorf("unknown intent %q in model answer", fields[0])
	}
	confidence := 1.0
	if len(fields) > 1 {
		parsed, err := strconv.ParseFloat(strings.Trim(fields[1], `"'.,`), 64)
		if err != nil {
			return "", 0, fmt.Errorf("bad confidence %q in model answer", fields[1])
		}
		confidence = parsed
	}
	if confidence < 0 || confidence > 1 {
		return "", 0, fmt.Errorf("confidence %v out of range", confidence)
	}
	return in, confidence, nil
}
