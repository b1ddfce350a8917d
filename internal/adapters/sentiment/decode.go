package sentiment

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"vibecheck/internal/domain"
)

// Inference servers disagree on field names; these are tried in order.
var outputAliases = map[string][]string{
	"label":   {"label", "sentiment", "sentiment_label", "class"},
	"score":   {"score", "confidence", "probability", "prob"},
	"results": {"predictions", "results", "outputs", "data"},
}

var labelAliases = map[string]domain.Sentiment{
	"POSITIVE": domain.Positive,
	"POS":      domain.Positive,
	"LABEL_1":  domain.Positive,
	"NEGATIVE": domain.Negative,
	"NEG":      domain.Negative,
	"LABEL_0":  domain.Negative,
}

// Normalize validates one raw (label, confidence) pair.
func Normalize(label string, confidence float64) (domain.Classification, error) {
	l, ok := labelAliases[strings.ToUpper(strings.TrimSpace(label))]
	if !ok {
		return domain.Classification{}, fmt.Errorf("%w: unknown label %q", ErrMalformedOutput, label)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return domain.Classification{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedOutput, confidence)
	}
	return domain.Classification{Label: l, Confidence: confidence}, nil
}

// decodeBatch turns a decoded JSON response into want classifications.
// Each entry is either a {label, score} object or a list of such
// candidates, in which case the highest scoring one wins.
func decodeBatch(raw any, want int) ([]domain.Classification, error) {
	if m, ok := raw.(map[string]any); ok {
		if inner := firstAlias(m, "results"); inner != nil {
			raw = inner
		} else if want == 1 {
			raw = []any{m}
		}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrMalformedOutput, raw)
	}
	// A single input is sometimes answered with a bare candidate list.
	if want == 1 && len(items) > 1 {
		if _, isObj := items[0].(map[string]any); isObj {
			items = []any{items}
		}
	}
	if len(items) != want {
		return nil, fmt.Errorf("%w: %d results for %d inputs", ErrMalformedOutput, len(items), want)
	}

	out := make([]domain.Classification, 0, want)
	for i, it := range items {
		c, err := decodeOne(it)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeOne(v any) (domain.Classification, error) {
	switch t := v.(type) {
	case map[string]any:
		label := lookupStr(t, outputAliases["label"]...)
		score := getFloatFlexible(t, outputAliases["score"]...)
		if label == "" || score == nil {
			return domain.Classification{}, fmt.Errorf("%w: missing label or score", ErrMalformedOutput)
		}
		return Normalize(label, *score)
	case []any:
		var best *domain.Classification
		for _, cand := range t {
			c, err := decodeOne(cand)
			if err != nil {
				return domain.Classification{}, err
			}
			if best == nil || c.Confidence > best.Confidence {
				best = &c
			}
		}
		if best == nil {
			return domain.Classification{}, fmt.Errorf("%w: empty candidate list", ErrMalformedOutput)
		}
		return *best, nil
	}
	return domain.Classification{}, fmt.Errorf("%w: unexpected %T", ErrMalformedOutput, v)
}

func firstAlias(m map[string]any, key string) any {
	for _, p := range outputAliases[key] {
		if v, ok := m[p]; ok && v != nil {
			return v
		}
	}
	return nil
}

// lookupStr returns the first non-empty string among keys.
func lookupStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several keys (JSON number or string like "0,98").
func getFloatFlexible(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			f := v
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}
