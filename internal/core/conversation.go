package core

import (
	"errors"
	"fmt"

	"visiontriage/pkg"
)

// Phase is the explicit state of a consultation conversation.  Transitions
// only ever move forward; there is no way back to an earlier triage question
// and no in-session reset.
type Phase int

const (
	// PhaseIdle means no image has been uploaded yet.
	PhaseIdle Phase = iota
	// PhaseAwaitingStart means an image is stored but triage has not begun.
	PhaseAwaitingStart
	// PhaseAsking means the user is answering triage question CurrentIndex.
	PhaseAsking
	// PhaseAnalysisPending means all questions are answered and the final
	// analysis has not been delivered yet.
	PhaseAnalysisPending
	// PhaseComplete means the final analysis is stored.
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingStart:
		return "awaiting_start"
	case PhaseAsking:
		return "asking"
	case PhaseAnalysisPending:
		return "analysis_pending"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrInvalidPhase is returned when an action is not valid in the
	// conversation's current phase.
	ErrInvalidPhase = errors.New("action not valid in current phase")
	// ErrUnknownOption is returned when a submitted answer is not one of the
	// current question's options.
	ErrUnknownOption = errors.New("answer is not one of the offered options")
)

// Conversation holds the entire mutable state of one consultation.  Two
// invariants hold at all times: CurrentIndex is in [0, len(questions)], and
// len(history) == CurrentIndex.  A transition either commits fully or leaves
// the state untouched.
type Conversation struct {
	phase     Phase
	image     *pkg.ImageAttachment
	questions []pkg.QuestionSpec
	current   int
	history   []pkg.QA
	analysis  string
}

// AttachImage stores the uploaded image and moves an idle conversation to
// awaiting-start.  The first upload wins for the session; later uploads are
// ignored without error.
func (c *Conversation) AttachImage(img *pkg.ImageAttachment) {
	if c.image != nil {
		return
	}
	c.image = img
	if c.phase == PhaseIdle {
		c.phase = PhaseAwaitingStart
	}
}

// BeginTriage installs the parsed question list and clears any prior history.
// With a non-empty list the conversation starts asking question 0; with an
// empty list it goes straight to analysis-pending.
func (c *Conversation) BeginTriage(questions []pkg.QuestionSpec) error {
	if c.phase != PhaseAwaitingStart {
		return fmt.Errorf("%w: begin triage in %s", ErrInvalidPhase, c.phase)
	}
	c.questions = questions
	c.current = 0
	c.history = nil
	if len(questions) == 0 {
		c.phase = PhaseAnalysisPending
	} else {
		c.phase = PhaseAsking
	}
	return nil
}

// Answer records the chosen option for the current question and advances the
// conversation, entering analysis-pending after the last question.
func (c *Conversation) Answer(option string) error {
	if c.phase != PhaseAsking {
		return fmt.Errorf("%w: answer in %s", ErrInvalidPhase, c.phase)
	}
	q := c.questions[c.current]
	if !contains(q.Options, option) {
		return fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	c.history = append(c.history, pkg.QA{Question: q.QuestionText, Answer: option})
	c.current++
	if c.current == len(c.questions) {
		c.phase = PhaseAnalysisPending
	}
	return nil
}

// CompleteAnalysis stores the final analysis text.  It is only valid while
// analysis is pending, so it can happen at most once per conversation.
func (c *Conversation) CompleteAnalysis(text string) error {
	if c.phase != PhaseAnalysisPending {
		return fmt.Errorf("%w: complete analysis in %s", ErrInvalidPhase, c.phase)
	}
	c.analysis = text
	c.phase = PhaseComplete
	return nil
}

// Phase returns the conversation's current phase.
func (c *Conversation) Phase() Phase { return c.phase }

// Image returns the stored image attachment, or nil if none was uploaded.
func (c *Conversation) Image() *pkg.ImageAttachment { return c.image }

// Questions returns a defensive copy of the triage question list.
func (c *Conversation) Questions() []pkg.QuestionSpec {
	out := make([]pkg.QuestionSpec, len(c.questions))
	copy(out, c.questions)
	return out
}

// CurrentIndex returns the index of the question being asked.  It equals the
// number of answers collected so far.
func (c *Conversation) CurrentIndex() int { return c.current }

// CurrentQuestion returns the question awaiting an answer, or false when the
// conversation is not in the asking phase.
func (c *Conversation) CurrentQuestion() (pkg.QuestionSpec, bool) {
	if c.phase != PhaseAsking {
		return pkg.QuestionSpec{}, false
	}
	return c.questions[c.current], true
}

// History returns a defensive copy of the (question, answer) transcript.
func (c *Conversation) History() []pkg.QA {
	out := make([]pkg.QA, len(c.history))
	copy(out, c.history)
	return out
}

// FinalAnalysis returns the stored analysis text, empty until complete.
func (c *Conversation) FinalAnalysis() string { return c.analysis }

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
