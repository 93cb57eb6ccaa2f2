package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/domain"
	"github.com/Bryant-Tello/Entel/internal/metrics"
)

// classifyMaxChars bounds the transcript slice sent to the chat model.
const classifyMaxChars = 15000

// classifyTemperature stays above zero so each transcript gets its own
// analysis instead of a generic template answer.
const classifyTemperature = 0.7

const classifySystemPrompt = `Eres un asistente que clasifica transcripciones de llamadas de un call center de telecomunicaciones.

Clasifica el MOTIVO PRINCIPAL de la llamada en una de estas categorías (usa EXACTAMENTE estas cadenas):

- "reclamo"
- "problema_tecnico"
- "soporte_comercial"
- "solicitud_administrativa"
- "otro"

Motivo principal = lo que el CLIENTE llama a resolver (no la validación de datos).

Reglas:
- "reclamo": quejas por cobros, mala atención, problemas no resueltos.
- "problema_tecnico": fallas de servicio (internet, señal, router, etc.).
- "soporte_comercial": planes, promociones, cambio de plan, más gigas, contratar o dar de baja servicios.
- "solicitud_administrativa": bloqueo de número, cambio de titular, actualización de datos, documentos.
- "otro": solo si no encaja en ninguna de las anteriores.

Responde SOLO con JSON:
{
  "clasificacion_general": ""
}

Lee TODO el texto completo. Identifica el MOTIVO PRINCIPAL que el CLIENTE menciona.`

const extractSystemPrompt = `Eres un asistente que analiza transcripciones de llamadas de telecomunicaciones.

Analiza la transcripción completa y extrae el tema principal y palabras clave.

Responde SOLO con JSON:
{
  "tema_principal": "",
  "palabras_clave": []
}

Instrucciones:
- "tema_principal": Una frase corta de 3 a 5 palabras máximo que resuma el motivo principal que el CLIENTE menciona. Debe ser específico y basado SOLO en lo que dice el texto. NO incluyas tags como <PERSON>, <LOCATION>, <NUM>, etc. Solo texto normal.
- "palabras_clave": Entre 3 y 8 palabras o frases cortas (1-3 palabras) en minúsculas que aparezcan LITERALMENTE en el texto y sean relevantes al motivo de la llamada.

REGLAS CRÍTICAS:
- Lee TODO el texto completo antes de responder
- El tema principal debe reflejar el problema o motivo REAL que el CLIENTE menciona
- El tema principal debe tener entre 3 y 5 palabras máximo
- El tema principal NO debe contener tags como <PERSON>, <LOCATION>, <NUM>, <DATE>, etc. Solo texto normal sin símbolos < >
- Las palabras clave DEBEN aparecer LITERALMENTE en el texto (busca palabras exactas que veas en el texto)
- NO inventes palabras que no estén en el texto
- NO uses nombres propios, números, correos, teléfonos, direcciones
- NO uses artículos, preposiciones, pronombres, saludos genéricos
- NO uses tags como <PERSON>, <LOCATION>, <NUM>, etc. en el tema principal ni en palabras clave
- Extrae SOLO palabras que realmente aparezcan en el texto y tengan significado contextual relacionado con el motivo`

var tagRegex = regexp.MustCompile(`<[^>]+>`)

// Classifier labels transcripts via chat completions in two steps: first the
// category, then the main topic and keywords.
type Classifier struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewClassifier creates an OpenAI chat classifier.
func NewClassifier(cfg *Config) *Classifier {
	return &Classifier{
		client: newClient(cfg),
		model:  cfg.ChatModel,
		logger: cfg.Logger,
	}
}

// Analyze classifies a cleaned transcript. A transport failure returns an
// error; a model answer that cannot be validated returns an Unclassified
// result with the reason, so callers can distinguish "provider broken" from
// "model refused".
func (c *Classifier) Analyze(ctx context.Context, cleanedText string) (domain.Classification, error) {
	if strings.TrimSpace(cleanedText) == "" {
		return domain.Unclassified("empty transcript"), nil
	}

	text := cleanedText
	if len(text) > classifyMaxChars {
		text = text[:classifyMaxChars]
	}

	category, reason, err := c.classify(ctx, text)
	if err != nil {
		metrics.ClassificationRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return domain.Classification{}, err
	}
	if reason != "" {
		metrics.ClassificationRequestsTotal.WithLabelValues(c.model, "invalid").Inc()
		return domain.Unclassified(reason), nil
	}

	topic, keywords, err := c.extract(ctx, text, category)
	if err != nil {
		metrics.ClassificationRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return domain.Classification{}, err
	}

	keywords = validateKeywordsAgainstText(keywords, cleanedText)

	metrics.ClassificationRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return domain.Classified(category, topic, keywords), nil
}

// classify runs step 1. A non-empty reason means the model did not return a
// usable category.
func (c *Classifier) classify(ctx context.Context, text string) (domain.Category, string, error) {
	content, err := c.chat(ctx, classifySystemPrompt, "Transcripción de la llamada:\n\n"+text)
	if err != nil {
		return "", "", fmt.Errorf("classify: %w", err)
	}

	var parsed struct {
		Category string `json:"clasificacion_general"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(content)), &parsed); err != nil {
		c.logger.Error("Classification response is not valid JSON",
			zap.String("content", truncateForLog(content)), zap.Error(err))
		return "", "model returned malformed JSON", nil
	}

	if parsed.Category == "" {
		c.logger.Error("Model returned empty classification",
			zap.String("content", truncateForLog(content)))
		return "", "model returned no category", nil
	}

	cat := domain.Category(parsed.Category)
	if !cat.Valid() {
		c.logger.Error("Model returned unknown category",
			zap.String("category", parsed.Category))
		return "", fmt.Sprintf("unknown category %q", parsed.Category), nil
	}

	return cat, "", nil
}

// extract runs step 2: main topic and keywords, given the category from
// step 1. Malformed JSON here degrades to an empty topic rather than
// discarding the classification.
func (c *Classifier) extract(ctx context.Context, text string, category domain.Category) (string, []string, error) {
	user := fmt.Sprintf("Transcripción de la llamada:\n\n%s\n\nLa llamada fue clasificada como: %s.", text, category)

	content, err := c.chat(ctx, extractSystemPrompt, user)
	if err != nil {
		return "", nil, fmt.Errorf("extract topic: %w", err)
	}

	var parsed struct {
		Topic    string   `json:"tema_principal"`
		Keywords []string `json:"palabras_clave"`
	}
	if err := json.Unmarshal([]byte(stripJSONFences(content)), &parsed); err != nil {
		c.logger.Error("Topic extraction response is not valid JSON",
			zap.String("content", truncateForLog(content)), zap.Error(err))
		return "", nil, nil
	}

	return scrubTopic(parsed.Topic), scrubKeywords(parsed.Keywords), nil
}

func (c *Classifier) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: classifyTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response: %w", domain.ErrProviderUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// stripJSONFences removes a markdown code fence around a JSON answer.
func stripJSONFences(content string) string {
	if i := strings.Index(content, "```json"); i >= 0 {
		rest := content[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.Index(content, "```"); i >= 0 {
		rest := content[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return content
}

// scrubTopic removes redaction tags and caps the topic at five words.
func scrubTopic(topic string) string {
	topic = strings.TrimSpace(tagRegex.ReplaceAllString(topic, ""))
	words := strings.Fields(topic)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

// scrubKeywords removes redaction tags and deduplicates.
func scrubKeywords(keywords []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		clean := strings.TrimSpace(tagRegex.ReplaceAllString(kw, ""))
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}

// validateKeywordsAgainstText keeps only keywords that literally appear in
// the transcript. A single-word keyword must be a substring; a phrase passes
// either whole or when all its significant words appear. When fewer than
// three survive, the model's own list is trusted, capped at eight.
func validateKeywordsAgainstText(keywords []string, text string) []string {
	textLower := strings.ToLower(text)

	var valid []string
	for _, kw := range keywords {
		kwLower := strings.ToLower(strings.TrimSpace(kw))
		if kwLower == "" {
			continue
		}
		if strings.Contains(textLower, kwLower) {
			valid = append(valid, kw)
			continue
		}
		words := strings.Fields(kwLower)
		if len(words) > 1 && allSignificantWordsPresent(words, textLower) {
			valid = append(valid, kw)
		}
	}

	if len(valid) < 3 {
		if len(keywords) > 8 {
			return keywords[:8]
		}
		return keywords
	}
	return valid
}

func allSignificantWordsPresent(words []string, textLower string) bool {
	for _, w := range words {
		if len(w) > 2 && !strings.Contains(textLower, w) {
			return false
		}
	}
	return true
}

func truncateForLog(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
