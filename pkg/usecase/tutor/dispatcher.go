package tutor

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/adapter"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"google.golang.org/genai"
)

const (
	// MaxMessageLength bounds a single user message, in characters
	MaxMessageLength = 2000

	// MaxHistory is the number of prior messages forwarded upstream
	MaxHistory = 100
)

var (
	ErrEmptyMessage     = goerr.New("message is empty", goerr.T(model.ErrTagValidation))
	ErrMessageTooLong   = goerr.New("message is too long", goerr.T(model.ErrTagValidation))
	ErrEmptyReply       = goerr.New("LLM returned an empty reply")
	ErrLLMNotConfigured = goerr.New("LLM service is not configured")
)

// RespondInput is one conversational turn
type RespondInput struct {
	Message string
	History []model.Message
	Track   model.Track
}

// Validate checks the turn before any upstream call
func (x *RespondInput) Validate() error {
	message := strings.TrimSpace(x.Message)
	if message == "" {
		return ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(message); n > MaxMessageLength {
		return goerr.Wrap(ErrMessageTooLong, "message exceeds limit", goerr.V("length", n))
	}
	if err := x.Track.Validate(); err != nil {
		return err
	}
	return nil
}

// Dispatcher forwards a conversation to the LLM with the persona of its track
type Dispatcher struct {
	gemini   adapter.Gemini
	personas Personas
	timeout  time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each LLM call
func WithTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		x.timeout = d
	}
}

// WithPersonas replaces the embedded personas
func WithPersonas(p Personas) DispatcherOption {
	return func(d *Dispatcher) {
		d.personas = p
	}
}

// NewDispatcher creates a Dispatcher. gemini may be nil when credentials are not configured.
func NewDispatcher(gemini adapter.Gemini, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		gemini:   gemini,
		personas: DefaultPersonas(),
		timeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Respond returns the tutor's reply verbatim. Upstream failures are returned as
// errors; the caller decides how to present them.
func (d *Dispatcher) Respond(ctx context.Context, input RespondInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}
	if d.gemini == nil {
		return "", ErrLLMNotConfigured
	}

	persona, ok := d.personas[input.Track]
	if !ok {
		return "", goerr.New("persona not found", goerr.V("track", input.Track))
	}

	contents := buildContents(input.History, strings.TrimSpace(input.Message))
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(persona.Instruction, ""),
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate reply", goerr.V("track", input.Track))
	}

	reply := adapter.ResponseText(resp)
	if strings.TrimSpace(reply) == "" {
		return "", goerr.Wrap(ErrEmptyReply, "no text in reply", goerr.V("track", input.Track))
	}
	return reply, nil
}

// buildContents converts the most recent history plus the new message into LLM contents
func buildContents(history []model.Message, message string) []*genai.Content {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		if msg.Text == "" {
			continue
		}
		switch msg.Role {
		case model.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		case model.RoleModel:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleModel))
		}
	}

	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}
