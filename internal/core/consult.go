package core

import (
	"context"

	"visiontriage/internal/llm"
)

// ConsultService drives a conversation through its triage and analysis
// phases, delegating all text generation to the model gateway.  Each exported
// method performs at most one blocking outbound call.
type ConsultService struct {
	LLM llm.Client
}

// NewConsultService constructs a ConsultService with the given gateway.
func NewConsultService(client llm.Client) *ConsultService {
	return &ConsultService{LLM: client}
}

// StartTriage requests the triage questionnaire for the stored image and
// installs it on the conversation.  On a transport or parse failure the
// conversation is left exactly as it was, so the user can retry.  When the
// model returns an empty question list the final analysis is generated
// immediately, with no questions asked.
func (s *ConsultService) StartTriage(ctx context.Context, conv *Conversation) error {
	if conv.Phase() != PhaseAwaitingStart {
		return ErrInvalidPhase
	}
	raw, err := s.LLM.RequestStructured(ctx, TriagePrompt(), conv.Image())
	if err != nil {
		return err
	}
	questions, err := ParseTriageReply(raw)
	if err != nil {
		return err
	}
	if err := conv.BeginTriage(questions); err != nil {
		return err
	}
	if conv.Phase() == PhaseAnalysisPending {
		return s.GenerateAnalysis(ctx, conv)
	}
	return nil
}

// SubmitAnswer records one chosen option.  Answering the last question
// triggers the final-analysis call synchronously, in the same pass.
func (s *ConsultService) SubmitAnswer(ctx context.Context, conv *Conversation, option string) error {
	if err := conv.Answer(option); err != nil {
		return err
	}
	if conv.Phase() == PhaseAnalysisPending {
		return s.GenerateAnalysis(ctx, conv)
	}
	return nil
}

// GenerateAnalysis builds the analysis prompt from the full transcript and
// performs the narrative call.  A failed call leaves the conversation in
// analysis-pending so the caller can retry; the error text is never stored
// as if it were an analysis.
func (s *ConsultService) GenerateAnalysis(ctx context.Context, conv *Conversation) error {
	if conv.Phase() != PhaseAnalysisPending {
		return ErrInvalidPhase
	}
	text, err := s.LLM.RequestNarrative(ctx, AnalysisPrompt(conv.History()), conv.Image())
	if err != nil {
		return err
	}
	return conv.CompleteAnalysis(text)
}
