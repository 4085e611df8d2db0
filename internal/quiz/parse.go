package quiz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pavelanni/groqquest/internal/model"
)

const schemaURL = "schema://quiz.json"

// quizSchema is the structural contract for a generated quiz.
const quizSchema = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "title": {"type": "string"},
    "subject": {"type": "string"},
    "questions": {
      "type": "array",
      "minItems": 5,
      "maxItems": 5,
      "items": {
        "type": "object",
        "required": ["question", "options", "correct_answer", "explanation"],
        "properties": {
          "question": {"type": "string", "pattern": "\\S"},
          "options": {
            "type": "array",
            "minItems": 4,
            "maxItems": 4,
            "items": {"type": "string"}
          },
          "correct_answer": {"type": "integer", "minimum": 0, "maximum": 3},
          "explanation": {"type": "string", "pattern": "\\S"}
        }
      }
    }
  }
}`

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(quizSchema))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return c.Compile(schemaURL)
})

// MalformedResponseError reports LLM output that is not a valid quiz.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed quiz response: %s: %v", e.Reason, e.Err)
	}
	return "malformed quiz response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{model.ErrMalformedResponse}
	}
	return []error{model.ErrMalformedResponse, e.Err}
}

// Parse decodes and validates a raw quiz payload. The payload may be a JSON
// object, a {"quiz": {...}} wrapper, or free text with the object embedded
// in it. Either all questions are valid or the whole payload is rejected.
func Parse(raw []byte) (*model.Quiz, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(extractJSON(raw)))
	if err != nil {
		return nil, &MalformedResponseError{Reason: "not valid JSON", Err: err}
	}
	doc = unwrapQuiz(doc)

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile quiz schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &MalformedResponseError{Reason: "schema validation failed", Err: err}
	}

	obj := doc.(map[string]any)
	q := &model.Quiz{
		Title:   strings.TrimSpace(stringField(obj, "title")),
		Subject: strings.TrimSpace(stringField(obj, "subject")),
	}
	if q.Subject == "" {
		q.Subject = model.DefaultSubject
	}
	for i, item := range obj["questions"].([]any) {
		question, err := toQuestion(item.(map[string]any))
		if err != nil {
			return nil, &MalformedResponseError{Reason: fmt.Sprintf("question %d", i+1), Err: err}
		}
		q.Questions = append(q.Questions, question)
	}
	return q, nil
}

// extractJSON finds the JSON object in an LLM reply.
func extractJSON(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if json.Valid(trimmed) {
		return trimmed
	}
	if m := fencedJSON.FindSubmatch(trimmed); m != nil {
		if inner := bytes.TrimSpace(m[1]); json.Valid(inner) {
			return inner
		}
	}
	if obj := firstObject(trimmed); obj != nil {
		return obj
	}
	return trimmed
}

// firstObject scans for the earliest '{' that begins a complete JSON object.
// Objects carrying a questions or quiz key win over stray braces in prose.
func firstObject(text []byte) []byte {
	var fallback []byte
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text[i:]))
		var fields map[string]json.RawMessage
		if err := dec.Decode(&fields); err != nil {
			continue
		}
		obj := text[i : i+int(dec.InputOffset())]
		if _, ok := fields["questions"]; ok {
			return obj
		}
		if _, ok := fields["quiz"]; ok {
			return obj
		}
		if fallback == nil {
			fallback = obj
		}
	}
	return fallback
}

func unwrapQuiz(doc any) any {
	obj, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	if _, ok := obj["questions"]; ok {
		return doc
	}
	if inner, ok := obj["quiz"].(map[string]any); ok {
		return inner
	}
	return doc
}

func toQuestion(m map[string]any) (model.Question, error) {
	idx, err := intField(m["correct_answer"])
	if err != nil {
		return model.Question{}, err
	}
	q := model.Question{
		Prompt:       strings.TrimSpace(stringField(m, "question")),
		CorrectIndex: idx,
		Explanation:  strings.TrimSpace(stringField(m, "explanation")),
	}
	for _, opt := range m["options"].([]any) {
		q.Options = append(q.Options, opt.(string))
	}
	return q, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// intField reads a schema-validated integer. The decoder keeps numbers as
// json.Number, so 2 and 2.0 both arrive here.
func intField(v any) (int, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, errors.New("correct_answer is not a number")
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("correct_answer: %w", err)
	}
	return int(f), nil
}
