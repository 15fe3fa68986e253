package search

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/llm"
)

// LocalModel is a deterministic llm.Model that scores descriptions by word
// overlap with the reference. It needs no network and is used in
// development and tests.
type LocalModel struct {
	stopwords []string
	stop      map[string]struct{}
	// CoverageShare is the fraction of a reference sentence's terms the
	// description must mention for the sentence to count as recalled.
	CoverageShare float64
	// MinSentenceRunes drops shorter reference sentences; MaxSentences caps
	// how many are compared (0 means all).
	MinSentenceRunes int
	MaxSentences     int
}

// NewLocalModel returns a LocalModel using SpanishStopwords.
func NewLocalModel() *LocalModel {
	return &LocalModel{
		stopwords:     SpanishStopwords,
		stop:          stopSet(SpanishStopwords),
		CoverageShare: 0.5,
	}
}

func (m *LocalModel) reference(text string) Index {
	return NewIndexFromText(text,
		WithStopwords(m.stopwords),
		WithMinRunes(m.MinSentenceRunes),
		WithMaxDocs(m.MaxSentences),
	)
}

// GenerateJSON answers evaluation and summary tasks by input type.
func (m *LocalModel) GenerateJSON(ctx context.Context, task llm.Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out any
	switch in := task.Input.(type) {
	case domain.EvaluationRequest:
		out = m.Evaluate(in)
	case domain.SummaryRequest:
		out = m.Summarize(in)
	default:
		return "", fmt.Errorf("local model: unsupported task %q (%T)", task.Name, task.Input)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Evaluate scores the patient text against the reference and keywords.
func (m *LocalModel) Evaluate(in domain.EvaluationRequest) domain.EvaluationResult {
	patient := Terms(in.PatientText, m.stop)
	reference := Terms(in.ReferenceText, m.stop)
	refSet := toSet(reference)
	patSet := toSet(patient)

	correct := make([]string, 0, len(patient))
	commission := make([]string, 0)
	kwTerms := map[string]struct{}{}
	for _, kw := range in.Keywords {
		for _, t := range Terms(kw, m.stop) {
			kwTerms[t] = struct{}{}
		}
	}
	for _, t := range patient {
		_, inRef := refSet[t]
		_, isKw := kwTerms[t]
		if inRef || isKw {
			correct = append(correct, t)
		} else {
			commission = append(commission, t)
		}
	}

	omittedKeywords := make([]string, 0)
	for _, kw := range in.Keywords {
		terms := Terms(kw, m.stop)
		if len(terms) == 0 {
			continue
		}
		hit := true
		for _, t := range terms {
			if _, ok := patSet[t]; !ok {
				hit = false
				break
			}
		}
		if !hit {
			omittedKeywords = append(omittedKeywords, strings.TrimSpace(kw))
		}
	}

	idx := m.reference(in.ReferenceText)
	_, missed := idx.Coverage(in.PatientText, m.share())
	if missed == nil {
		missed = []string{}
	}
	var best string
	if top := idx.TopK(in.PatientText, 1); len(top) > 0 {
		best = top[0].Snippet
	}

	termRecall := ratio(overlap(patSet, refSet), len(refSet))
	accuracy := termRecall
	if n := len(in.Keywords); n > 0 {
		kwRecall := 1 - float64(len(omittedKeywords))/float64(n)
		accuracy = 0.5*termRecall + 0.5*kwRecall
	}
	commissionRate := ratio(len(commission), len(patient))
	coherence := coherenceOf(in.PatientText)
	fluency := fluencyOf(Words(in.PatientText), Words(in.ReferenceText))
	total := 0.4*accuracy + 0.2*(1-commissionRate) + 0.2*coherence + 0.2*fluency

	r := domain.EvaluationResult{
		OmissionRate:       round(1 - accuracy),
		CommissionRate:     round(commissionRate),
		AccuracyRate:       round(accuracy),
		CoherenceScore:     round(coherence),
		FluencyScore:       round(fluency),
		TotalScore:         round(total),
		OmittedDetails:     missed,
		OmittedKeywords:    omittedKeywords,
		CommissionElements: commission,
		CorrectElements:    correct,
	}
	r.Conclusion = descriptionConclusion(r, best)
	return r
}

// Summarize writes the session conclusions from the averages.
func (m *LocalModel) Summarize(in domain.SummaryRequest) domain.SessionConclusion {
	technical := fmt.Sprintf(
		"Recuerdo medio %.0f%%, omisión %.0f%%, comisión %.0f%%, coherencia %.2f, fluidez %.2f. Puntuación total %.2f (%s).",
		in.Recall*100, in.Omission*100, in.Commission*100, in.Coherence, in.Fluency, in.Total, band(in.Total),
	)
	if len(in.PriorConclusions) > 0 {
		technical += " Observaciones por imagen: " + strings.Join(in.PriorConclusions, " ")
	}
	var plain string
	switch {
	case in.Total >= 0.75:
		plain = "El paciente recordó la mayoría de los detalles de las imágenes y los describió con claridad."
	case in.Total >= 0.45:
		plain = "El paciente recordó parte de los detalles; algunos elementos importantes se quedaron sin mencionar."
	default:
		plain = "Al paciente le costó recordar los detalles de las imágenes. Conviene comentarlo con su médico."
	}
	return domain.SessionConclusion{TechnicalConclusion: technical, PlainConclusion: plain}
}

func (m *LocalModel) share() float64 {
	if m.CoverageShare <= 0 || m.CoverageShare > 1 {
		return 0.5
	}
	return m.CoverageShare
}

// descriptionConclusion summarizes r; best is the reference sentence closest
// to the description, if any.
func descriptionConclusion(r domain.EvaluationResult, best string) string {
	msg := fmt.Sprintf("Rendimiento %s: recuerdo %.0f%%, comisión %.0f%%.", band(r.TotalScore), r.AccuracyRate*100, r.CommissionRate*100)
	if best != "" {
		msg += fmt.Sprintf(" Detalle mejor recordado: «%s».", best)
	}
	if len(r.OmittedKeywords) > 0 {
		msg += " Palabras clave omitidas: " + strings.Join(r.OmittedKeywords, ", ") + "."
	}
	return msg
}

func band(total float64) string {
	switch {
	case total >= 0.75:
		return "alto"
	case total >= 0.45:
		return "medio"
	}
	return "bajo"
}

// coherenceOf rewards complete sentences of moderate length.
func coherenceOf(text string) float64 {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range sentences {
		n := len(Words(s))
		switch {
		case n >= 4 && n <= 25:
			total += 1
		case n > 25:
			total += 0.7
		case n > 0:
			total += float64(n) / 4
		}
	}
	return clamp(total / float64(len(sentences)))
}

// fluencyOf compares length and lexical variety with the reference.
func fluencyOf(words, refWords []string) float64 {
	if len(words) == 0 {
		return 0
	}
	target := len(refWords)
	if target == 0 {
		target = 10
	}
	length := clamp(float64(len(words)) / float64(target))
	variety := float64(len(toSet(words))) / float64(len(words))
	return clamp(0.6*length + 0.4*variety)
}

func toSet(terms []string) map[string]struct{} {
	out := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		out[t] = struct{}{}
	}
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return clamp(float64(n) / float64(d))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64) float64 {
	return math.Round(clamp(v)*1000) / 1000
}
