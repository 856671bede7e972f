package core

import (
	"encoding/json"
	"fmt"

	"visiontriage/pkg"
)

// ParseError reports a triage reply that could not be decoded into the
// expected envelope.  The session stays in its prior phase so the user can
// retry the same action.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed triage reply: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// triageEnvelope is the JSON contract expected from the model.
type triageEnvelope struct {
	Questions []pkg.QuestionSpec `json:"questions"`
}

// ParseTriageReply decodes the model's structured reply.  A single parse
// attempt is made; an absent "questions" key yields an empty list rather
// than an error, per the envelope contract.
func ParseTriageReply(raw string) ([]pkg.QuestionSpec, error) {
	var env triageEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, &ParseError{Err: err}
	}
	return env.Questions, nil
}
