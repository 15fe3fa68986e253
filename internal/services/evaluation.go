// Package services – EvaluationClient
//
// This file adapts the structured LLM capability to the two evaluator calls
// the service needs: scoring one description and summarizing a completed
// session. Both go through structuredCall, which owns the shared failure
// taxonomy: no payload is UpstreamUnavailable, anything unusable is
// UpstreamError. No retries are attempted here.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/llm"
	"github.com/douremember/go-descriptions-backend/internal/observability"
)

// Task names double as JSON schema names.
const (
	TaskEvaluateDescription = "evaluate_description"
	TaskSummarizeSession    = "summarize_session"
)

// Evaluator scores descriptions and summarizes sessions.
type Evaluator interface {
	EvaluateDescription(ctx context.Context, patientText, referenceText string, keywords []string) (*domain.EvaluationResult, error)
	SummarizeSession(ctx context.Context, agg domain.SessionAggregates, conclusions []string) (*domain.SessionConclusion, error)
}

// EvaluationClient implements Evaluator over an llm.Model.
type EvaluationClient struct {
	Model   llm.Model
	Timeout time.Duration
}

// NewEvaluationClient returns a client with a 60s per-call timeout.
func NewEvaluationClient(m llm.Model) *EvaluationClient {
	return &EvaluationClient{Model: m, Timeout: 60 * time.Second}
}

// structuredCall runs task, decodes the answer into T and validates it.
func structuredCall[T any](ctx context.Context, m llm.Model, timeout time.Duration, task llm.Task, validate func(*T) error) (*T, error) {
	ctx, span := otel.Tracer("services/EvaluationClient").Start(ctx, task.Name)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := m.GenerateJSON(ctx, task)
	observability.ObserveEvaluatorCall(task.Name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		if errors.Is(err, llm.ErrEmptyResponse) {
			return nil, ErrEvaluatorUnavailable.Wrap(err)
		}
		return nil, ErrEvaluatorResponse.Wrap(err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEvaluatorUnavailable
	}

	var out T
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return nil, ErrEvaluatorResponse.Wrap(err)
	}
	if err := validate(&out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validate")
		return nil, ErrEvaluatorResponse.Wrap(err)
	}
	return &out, nil
}

// stripCodeFence removes a ```json fence some models wrap answers in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// evaluationPayload mirrors the evaluator schema. Pointers detect absent
// required fields.
type evaluationPayload struct {
	OmissionRate       *float64 `json:"omissionRate"`
	CommissionRate     *float64 `json:"commissionRate"`
	AccuracyRate       *float64 `json:"accuracyRate"`
	CoherenceScore     *float64 `json:"coherenceScore"`
	FluencyScore       *float64 `json:"fluencyScore"`
	TotalScore         *float64 `json:"totalScore"`
	OmittedDetails     []string `json:"omittedDetails"`
	OmittedKeywords    []string `json:"omittedKeywords"`
	CommissionElements []string `json:"commissionElements"`
	CorrectElements    []string `json:"correctElements"`
	Conclusion         *string  `json:"conclusion"`
}

func (p *evaluationPayload) validate() error {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"omissionRate", p.OmissionRate},
		{"commissionRate", p.CommissionRate},
		{"accuracyRate", p.AccuracyRate},
		{"coherenceScore", p.CoherenceScore},
		{"fluencyScore", p.FluencyScore},
		{"totalScore", p.TotalScore},
	} {
		if err := unitInterval(f.name, f.v); err != nil {
			return err
		}
	}
	if p.Conclusion == nil || strings.TrimSpace(*p.Conclusion) == "" {
		return errors.New("missing field conclusion")
	}
	return nil
}

func (p *evaluationPayload) result() *domain.EvaluationResult {
	return &domain.EvaluationResult{
		OmissionRate:       *p.OmissionRate,
		CommissionRate:     *p.CommissionRate,
		AccuracyRate:       *p.AccuracyRate,
		CoherenceScore:     *p.CoherenceScore,
		FluencyScore:       *p.FluencyScore,
		TotalScore:         *p.TotalScore,
		OmittedDetails:     orEmpty(p.OmittedDetails),
		OmittedKeywords:    orEmpty(p.OmittedKeywords),
		CommissionElements: orEmpty(p.CommissionElements),
		CorrectElements:    orEmpty(p.CorrectElements),
		Conclusion:         strings.TrimSpace(*p.Conclusion),
	}
}

type summaryPayload struct {
	TechnicalConclusion *string `json:"technicalConclusion"`
	PlainConclusion     *string `json:"plainConclusion"`
}

func (p *summaryPayload) validate() error {
	if p.TechnicalConclusion == nil || strings.TrimSpace(*p.TechnicalConclusion) == "" {
		return errors.New("missing field technicalConclusion")
	}
	if p.PlainConclusion == nil || strings.TrimSpace(*p.PlainConclusion) == "" {
		return errors.New("missing field plainConclusion")
	}
	return nil
}

func unitInterval(name string, v *float64) error {
	if v == nil {
		return fmt.Errorf("missing field %s", name)
	}
	if *v < 0 || *v > 1 {
		return fmt.Errorf("field %s out of range: %v", name, *v)
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// EvaluateDescription scores patientText against the reference.
func (c *EvaluationClient) EvaluateDescription(ctx context.Context, patientText, referenceText string, keywords []string) (*domain.EvaluationResult, error) {
	ctx, span := otel.Tracer("services/EvaluationClient").Start(ctx, "EvaluateDescription",
		trace.WithAttributes(attribute.Int("keywords", len(keywords))),
	)
	defer span.End()

	task := llm.Task{
		Name:         TaskEvaluateDescription,
		Instructions: evaluateInstructions,
		Input: domain.EvaluationRequest{
			PatientText:   patientText,
			ReferenceText: referenceText,
			Keywords:      orEmpty(keywords),
		},
		Schema: evaluationSchema,
	}
	p, err := structuredCall(ctx, c.Model, c.Timeout, task, (*evaluationPayload).validate)
	if err != nil {
		return nil, err
	}
	return p.result(), nil
}

// SummarizeSession produces the technical and plain-language conclusions.
func (c *EvaluationClient) SummarizeSession(ctx context.Context, agg domain.SessionAggregates, conclusions []string) (*domain.SessionConclusion, error) {
	ctx, span := otel.Tracer("services/EvaluationClient").Start(ctx, "SummarizeSession",
		trace.WithAttributes(attribute.Int("conclusions", len(conclusions))),
	)
	defer span.End()

	task := llm.Task{
		Name:         TaskSummarizeSession,
		Instructions: summarizeInstructions,
		Input: domain.SummaryRequest{
			Recall:           agg.Recall,
			Commission:       agg.Commission,
			Omission:         agg.Omission,
			Coherence:        agg.Coherence,
			Fluency:          agg.Fluency,
			Total:            agg.Total,
			PriorConclusions: orEmpty(conclusions),
		},
		Schema: summarySchema,
	}
	p, err := structuredCall(ctx, c.Model, c.Timeout, task, (*summaryPayload).validate)
	if err != nil {
		return nil, err
	}
	return &domain.SessionConclusion{
		TechnicalConclusion: strings.TrimSpace(*p.TechnicalConclusion),
		PlainConclusion:     strings.TrimSpace(*p.PlainConclusion),
	}, nil
}

const evaluateInstructions = `Eres un evaluador clínico de memoria episódica. Compara la descripción del paciente (patientText) con la descripción de referencia del cuidador (referenceText) y las palabras clave (keywords).
Clasifica los elementos de la referencia en núcleo (nombres, objetos y acciones principales, escenario distintivo) y detalle secundario; los elementos núcleo pesan el doble.
Devuelve tasas entre 0 y 1: omissionRate (elementos de referencia olvidados), commissionRate (elementos inventados), accuracyRate (elementos reconocidos correctamente), coherenceScore y fluencyScore del relato, y totalScore como valoración global.
Enumera omittedDetails, omittedKeywords, commissionElements y correctElements, y escribe una conclusion breve en español.`

const summarizeInstructions = `Eres un neuropsicólogo. Recibes los promedios de una sesión de tres descripciones de imágenes (valores entre 0 y 1) y las conclusiones individuales (priorConclusions).
Escribe technicalConclusion: un análisis clínico conciso para el profesional sanitario.
Escribe plainConclusion: un resumen empático y sencillo dirigido al paciente y su familia, sin tecnicismos.`

var evaluationSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["omissionRate","commissionRate","accuracyRate","coherenceScore","fluencyScore","totalScore","omittedDetails","omittedKeywords","commissionElements","correctElements","conclusion"],
  "properties": {
    "omissionRate":       {"type": "number"},
    "commissionRate":     {"type": "number"},
    "accuracyRate":       {"type": "number"},
    "coherenceScore":     {"type": "number"},
    "fluencyScore":       {"type": "number"},
    "totalScore":         {"type": "number"},
    "omittedDetails":     {"type": "array", "items": {"type": "string"}},
    "omittedKeywords":    {"type": "array", "items": {"type": "string"}},
    "commissionElements": {"type": "array", "items": {"type": "string"}},
    "correctElements":    {"type": "array", "items": {"type": "string"}},
    "conclusion":         {"type": "string"}
  }
}`)

var summarySchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["technicalConclusion","plainConclusion"],
  "properties": {
    "technicalConclusion": {"type": "string"},
    "plainConclusion":     {"type": "string"}
  }
}`)
