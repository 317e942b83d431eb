package phrase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/adapter"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/utils/logging"
	"google.golang.org/genai"
)

// MaxPhraseLength is counted in characters, not bytes
const MaxPhraseLength = 200

var (
	ErrEmptyPhrase      = goerr.New("phrase is empty", goerr.T(model.ErrTagValidation))
	ErrPhraseTooLong    = goerr.New("phrase is too long", goerr.T(model.ErrTagValidation))
	ErrLLMNotConfigured = goerr.New("LLM service is not configured")
)

//go:embed prompt/transform.md
var transformPromptRaw string

var transformPromptTmpl = template.Must(template.New("transform").Parse(transformPromptRaw))

var promptCategories = []model.Category{
	model.CategoryCapacidad,
	model.CategoryIdentidad,
	model.CategoryMerecimiento,
	model.CategoryPermanencia,
	model.CategoryMiedo,
	model.CategoryCulpa,
	model.CategoryObligacion,
	model.CategoryComparacion,
}

// ValidatePhrase rejects empty and over-long phrases
func ValidatePhrase(phrase string) error {
	trimmed := strings.TrimSpace(phrase)
	if trimmed == "" {
		return ErrEmptyPhrase
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxPhraseLength {
		return goerr.Wrap(ErrPhraseTooLong, "phrase exceeds limit",
			goerr.V("length", n),
			goerr.V("max", MaxPhraseLength))
	}
	return nil
}

// Generator turns a limiting phrase into a transformation using the LLM, and
// falls back to the rule list whenever the LLM reply cannot be used.
type Generator struct {
	gemini  adapter.Gemini
	timeout time.Duration
}

type GeneratorOption func(*Generator)

// WithTimeout bounds each LLM call
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.timeout = d
	}
}

// NewGenerator creates a Generator. gemini may be nil when credentials are not
// configured; Generate then reports ErrLLMNotConfigured.
func NewGenerator(gemini adapter.Gemini, opts ...GeneratorOption) *Generator {
	g := &Generator{
		gemini:  gemini,
		timeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a transformation for phrase. Upstream failures are logged and
// answered with Fallback; only a missing LLM configuration is returned as error.
func (g *Generator) Generate(ctx context.Context, phrase string) (*model.Transformation, error) {
	if g.gemini == nil {
		return nil, ErrLLMNotConfigured
	}

	phrase = strings.TrimSpace(phrase)

	result, err := g.generateByAI(ctx, phrase)
	if err != nil {
		logging.From(ctx).Warn("AI transformation failed, using fallback",
			logging.ErrAttr(err),
			"phrase_length", utf8.RuneCountInString(phrase))
		result = Fallback(phrase)
	}

	result.ID = model.NewTransformationID()
	result.RequiredReps = model.DefaultRequiredReps
	result.IsCustom = true
	return result, nil
}

func (g *Generator) generateByAI(ctx context.Context, phrase string) (*model.Transformation, error) {
	var buf bytes.Buffer
	if err := transformPromptTmpl.Execute(&buf, map[string]any{
		"Phrase":     phrase,
		"Categories": promptCategories,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute transform prompt template")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.7),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category": {Type: genai.TypeString, Description: "category of the limiting belief"},
				"old":      {Type: genai.TypeString, Description: "original phrase"},
				"new":      {Type: genai.TypeString, Description: "transformed phrase"},
				"effect":   {Type: genai.TypeString, Description: "effect of the transformation"},
			},
			Required: []string{"category", "old", "new", "effect"},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buf.String(), genai.RoleUser),
	}

	resp, err := g.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate transformation")
	}

	return parseTransformation(adapter.ResponseText(resp))
}

type transformationReply struct {
	Category string `json:"category"`
	Old      string `json:"old"`
	New      string `json:"new"`
	Effect   string `json:"effect"`
}

// parseTransformation extracts and validates the structured block of a raw reply
func parseTransformation(text string) (*model.Transformation, error) {
	block, ok := extractJSONBlock(text)
	if !ok {
		return nil, goerr.New("no JSON block in reply", goerr.V("reply", text))
	}

	var reply transformationReply
	if err := json.Unmarshal([]byte(block), &reply); err != nil {
		return nil, goerr.Wrap(err, "failed to parse reply", goerr.V("block", block))
	}

	result := &model.Transformation{
		Category:      model.Category(strings.TrimSpace(reply.Category)),
		Old:           strings.TrimSpace(reply.Old),
		New:           strings.TrimSpace(reply.New),
		Effect:        strings.TrimSpace(reply.Effect),
		GeneratedByAI: true,
	}
	if err := result.Validate(); err != nil {
		return nil, goerr.Wrap(err, "incomplete reply", goerr.V("block", block))
	}

	return result, nil
}

// ParseTransformationForTest is a test helper that exposes parseTransformation
func ParseTransformationForTest(text string) (*model.Transformation, error) {
	return parseTransformation(text)
}
