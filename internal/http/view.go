package http

import (
	"visiontriage/internal/core"
	"visiontriage/internal/session"
	"visiontriage/pkg"
)

// conversationView is the template data for the conversation fragment.  It is
// a read-only snapshot of session state plus an optional inline error.
type conversationView struct {
	SessionID      string
	Phase          string
	HasImage       bool
	History        []pkg.QA
	Current        *pkg.QuestionSpec
	QuestionNumber int
	TotalQuestions int
	FinalAnalysis  string
	Error          string

	CanStart        bool
	AnalysisPending bool
}

// newConversationView snapshots the session for rendering.  The caller must
// hold the session lock.
func newConversationView(sess *session.Session, errMsg string) conversationView {
	conv := &sess.Conversation
	view := conversationView{
		SessionID:       sess.ID,
		Phase:           conv.Phase().String(),
		HasImage:        conv.Image() != nil,
		History:         conv.History(),
		TotalQuestions:  len(conv.Questions()),
		FinalAnalysis:   conv.FinalAnalysis(),
		Error:           errMsg,
		CanStart:        conv.Phase() == core.PhaseAwaitingStart,
		AnalysisPending: conv.Phase() == core.PhaseAnalysisPending,
	}
	if q, ok := conv.CurrentQuestion(); ok {
		view.Current = &q
		view.QuestionNumber = conv.CurrentIndex() + 1
	}
	return view
}
