package summarize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SanitizeSummaryJSON normalizes a model response that is close to the schema
// but not quite there, so the document can still validate:
//   - drops null or empty optionals
//   - coerces a numeric-string or float score to an integer, clamped to 1..10
//   - removes unknown top-level keys (additionalProperties is false)
//
// Required fields are never invented; a missing role/summary still fails
// validation afterwards.
func SanitizeSummaryJSON(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string

	optionals := []string{"skills", "experience", "strengths", "education", "certifications", "contact"}
	for _, k := range optionals {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case nil:
			delete(m, k)
			dropped = append(dropped, k+"(null)")
		case []any:
			if len(t) == 0 {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			}
		case map[string]any:
			for kk, vv := range t {
				if vv == nil {
					delete(t, kk)
				}
			}
			if len(t) == 0 {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			}
		}
	}

	if v, ok := m["score"]; ok {
		if score, ok2 := coerceScore(v); ok2 {
			m["score"] = score
		} else {
			delete(m, "score")
			dropped = append(dropped, "score(type)")
		}
	}

	if v, ok := m["justification"].(string); ok {
		// one-line contract: collapse any newlines the model slipped in
		if strings.ContainsAny(v, "\r\n") {
			m["justification"] = strings.Join(strings.Fields(v), " ")
			dropped = append(dropped, "justification(multiline)")
		}
	}

	allowed := map[string]struct{}{
		"role": {}, "summary": {}, "skills": {}, "experience": {},
		"strengths": {}, "education": {}, "certifications": {}, "contact": {},
		"score": {}, "justification": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

func coerceScore(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	score := int(math.Round(f))
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score, true
}
