package pkg

import "time"

// QuestionSpec is one model-generated multiple-choice triage question.  The
// options are presented as exclusive choices; the struct is immutable once
// parsed from the model reply.
type QuestionSpec struct {
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
}

// QA is one (question, chosen answer) pair from the triage conversation.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ImageAttachment holds the raw bytes of an uploaded image together with the
// MIME type detected from its content.  Only JPEG and PNG are accepted.
type ImageAttachment struct {
	Data []byte
	MIME string
}

// CreateSessionResponse is returned when a new consultation session is
// created via the JSON API.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	StartURL  string `json:"start_url"`
}

// AnswerRequest carries the option chosen for the current triage question.
type AnswerRequest struct {
	Option string `json:"option"`
}

// SessionView is the JSON representation of a session's visible state.  It is
// a snapshot; rendering it never mutates the session.
type SessionView struct {
	SessionID       string         `json:"session_id"`
	Phase           string         `json:"phase"`
	HasImage        bool           `json:"has_image"`
	Questions       []QuestionSpec `json:"questions"`
	CurrentQuestion int            `json:"current_question"`
	History         []QA           `json:"history"`
	FinalAnalysis   string         `json:"final_analysis,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
