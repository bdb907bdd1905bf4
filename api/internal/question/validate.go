package question

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrNotObject is returned when the candidate is not a JSON object at all.
var ErrNotObject = errors.New("question: candidate is not an object")

// FieldError names one field and why it was rejected.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid question record: " + strings.Join(parts, "; ")
}

// Result is either a valid Record or a list of field errors, never both.
type Result struct {
	Record Record
	Errors []FieldError
}

func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Fields: r.Errors}
}

// Accepted spellings per field; models drift between camelCase and snake_case.
var fieldAliases = map[string][]string{
	"questionText":    {"questionText", "question_text"},
	"answerText":      {"answerText", "answer_text"},
	"analysis":        {"analysis"},
	"subject":         {"subject"},
	"knowledgePoints": {"knowledgePoints", "knowledge_points"},
}

// Validator checks decoded model output against the Record shape and the subject vocabulary.
type Validator struct {
	vocab *Vocabulary
	v     *validator.Validate
}

func NewValidator(vocab *Vocabulary) *Validator {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("subject", func(fl validator.FieldLevel) bool {
		return vocab.Contains(Subject(fl.Field().String()))
	})
	return &Validator{vocab: vocab, v: v}
}

func (v *Validator) Vocabulary() *Vocabulary { return v.vocab }

// Validate turns a decoded JSON value into a Result. Shape problems are reported in the
// Result; only a non-object candidate produces an error.
func (v *Validator) Validate(candidate any) (Result, error) {
	m, ok := candidate.(map[string]any)
	if !ok {
		return Result{}, fmt.Errorf("%w: got %T", ErrNotObject, candidate)
	}

	var (
		rec  Record
		errs []FieldError
	)
	str := func(field string, dst *string) {
		raw, present := lookup(m, field)
		switch s, isString := raw.(string); {
		case !present || raw == nil:
			errs = append(errs, FieldError{Field: field, Reason: "missing"})
		case !isString:
			errs = append(errs, FieldError{Field: field, Reason: fmt.Sprintf("not a string (%T)", raw)})
		default:
			*dst = strings.TrimSpace(s)
		}
	}
	str("questionText", &rec.QuestionText)
	str("answerText", &rec.AnswerText)
	str("analysis", &rec.Analysis)

	rec.Subject = v.vocab.Fallback
	if raw, _ := lookup(m, "subject"); raw != nil {
		if s, ok := raw.(string); ok {
			rec.Subject = v.vocab.Coerce(strings.TrimSpace(s))
		}
	}

	rec.KnowledgePoints = []string{}
	if raw, _ := lookup(m, "knowledgePoints"); raw != nil {
		if items, ok := raw.([]any); ok {
			for i, it := range items {
				s, ok := it.(string)
				if !ok {
					errs = append(errs, FieldError{
						Field:  fmt.Sprintf("knowledgePoints[%d]", i),
						Reason: fmt.Sprintf("not a string (%T)", it),
					})
					continue
				}
				if s = strings.TrimSpace(s); s != "" {
					rec.KnowledgePoints = append(rec.KnowledgePoints, s)
				}
			}
		}
	}

	errs = append(errs, v.structErrors(rec, errs)...)
	if len(errs) > 0 {
		return Result{Errors: errs}, nil
	}
	return Result{Record: rec}, nil
}

// Check validates an already typed record, e.g. one assembled from XML tags.
func (v *Validator) Check(rec Record) Result {
	if errs := v.structErrors(rec, nil); len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Record: rec}
}

func (v *Validator) structErrors(rec Record, already []FieldError) []FieldError {
	err := v.v.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "record", Reason: err.Error()}}
	}
	seen := make(map[string]bool, len(already))
	for _, f := range already {
		seen[f.Field] = true
	}
	var out []FieldError
	for _, fe := range verrs {
		if seen[fe.Field()] {
			continue
		}
		reason := fe.Tag()
		switch fe.Tag() {
		case "required":
			reason = "empty"
		case "subject":
			reason = "not in vocabulary"
		}
		out = append(out, FieldError{Field: fe.Field(), Reason: reason})
	}
	return out
}

func lookup(m map[string]any, field string) (any, bool) {
	for _, k := range fieldAliases[field] {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
