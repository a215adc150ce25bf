package analyzer

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"go-image-organizer/internal/models"
)

// DefaultConfidence is used when the response carries no usable confidence.
const DefaultConfidence = 0.5

var (
	fenceRe     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	nameFieldRe = regexp.MustCompile(`(?i)"?suggested_?name"?\s*[:=]\s*"?([^"\n,}]+)`)
	wordRe      = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*`)
)

// degradedWords caps how many words of free text become a name.
const degradedWords = 4

var knownFields = map[string]bool{
	"suggestedName": true, "suggested_name": true, "title": true, "description": true,
	"tags": true, "colors": true, "objects": true, "category": true, "subcategory": true,
	"style": true, "mood": true, "confidence": true,
}

// ParseResponse turns raw model output into a Result. Well-formed JSON
// (optionally fenced or surrounded by prose) is parsed field by field with
// loose typing. Anything else takes the degraded path: a name-like token is
// salvaged and everything else is defaulted.
func ParseResponse(raw, model string) *Result {
	if fields, ok := extractJSON(raw); ok {
		return fromFields(fields, raw, model)
	}
	return degraded(raw, model)
}

func extractJSON(raw string) (map[string]json.RawMessage, bool) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func fromFields(fields map[string]json.RawMessage, raw, model string) *Result {
	res := &Result{
		SuggestedName: rawString(fields["suggestedName"]),
		Title:         rawString(fields["title"]),
		Description:   rawString(fields["description"]),
		Tags:          rawList(fields["tags"]),
		Colors:        rawList(fields["colors"]),
		Objects:       rawList(fields["objects"]),
		Category:      rawString(fields["category"]),
		Subcategory:   rawString(fields["subcategory"]),
		Style:         rawString(fields["style"]),
		Mood:          rawString(fields["mood"]),
		Confidence:    rawConfidence(fields["confidence"]),
		Model:         model,
		Raw:           raw,
	}
	if res.SuggestedName == "" {
		res.SuggestedName = rawString(fields["suggested_name"])
	}

	for k, v := range fields {
		if knownFields[k] {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			continue
		}
		if res.Extra == nil {
			res.Extra = make(map[string]any)
		}
		res.Extra[k] = decoded
	}
	return res
}

func degraded(raw, model string) *Result {
	res := &Result{
		Tags:       []string{},
		Colors:     []string{},
		Objects:    []string{},
		Confidence: DefaultConfidence,
		Model:      model,
		Degraded:   true,
		Raw:        raw,
	}
	if m := nameFieldRe.FindStringSubmatch(raw); m != nil {
		res.SuggestedName = strings.TrimSpace(m[1])
		return res
	}
	words := wordRe.FindAllString(raw, degradedWords)
	res.SuggestedName = strings.Join(words, "_")
	return res
}

func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// A single-element list where a string was expected.
	if list := rawList(v); len(list) > 0 {
		return list[0]
	}
	return ""
}

func rawList(v json.RawMessage) []string {
	out := []string{}
	if len(v) == 0 {
		return out
	}
	var list models.StringOrStringSlice
	if err := json.Unmarshal(v, &list); err != nil {
		return out
	}
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func rawConfidence(v json.RawMessage) float64 {
	if len(v) == 0 {
		return DefaultConfidence
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return DefaultConfidence
		}
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
		if err != nil {
			return DefaultConfidence
		}
		f = parsed
	}
	if f > 1 && f <= 100 {
		f /= 100 // percentages
	}
	if f < 0 || f > 1 {
		return DefaultConfidence
	}
	return f
}
