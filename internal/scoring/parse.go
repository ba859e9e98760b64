package scoring

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sjawhar/ghost-interviewer/internal/interview"
)

// ErrMalformed marks scorer output that is not a valid report. The worker
// treats it as retryable.
var ErrMalformed = errors.New("malformed scoring output")

//go:embed report.schema.json
var reportSchema string

var schemaLoader = gojsonschema.NewStringLoader(reportSchema)

// FieldError is one schema violation.
type FieldError struct {
	Field   string
	Message string
}

type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("report validation failed:")
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, " %d. %s: %s;", i+1, err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// Validate checks raw JSON against the report schema.
func Validate(raw string) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return fmt.Errorf("%w: %w", ErrMalformed, ve)
}

// ParseReport extracts, validates and decodes a report from model output.
// Any failure wraps ErrMalformed.
func ParseReport(output string) (interview.Report, error) {
	raw, err := extractJSONObject(output)
	if err != nil {
		return interview.Report{}, err
	}
	if err := Validate(raw); err != nil {
		return interview.Report{}, err
	}

	var report interview.Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return interview.Report{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	if err := report.Check(); err != nil {
		return interview.Report{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return report, nil
}

// extractJSONObject strips markdown fences and any prose around the
// outermost JSON object.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in output", ErrMalformed)
	}
	return text[start : end+1], nil
}

func parseSkills(output string) ([]string, error) {
	text := strings.TrimSpace(output)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in output", ErrMalformed)
	}

	var raw []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: decode skills: %v", ErrMalformed, err)
	}

	skills := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, s)
	}
	if len(skills) == 0 {
		return nil, fmt.Errorf("%w: empty skill list", ErrMalformed)
	}
	return skills, nil
}
