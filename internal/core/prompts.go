package core

// prompts.go defines the two fixed prompts sent to the model.  Keeping them
// in a separate file makes them easy to tweak without touching the rest of
// the code.

import (
	"fmt"
	"strings"

	"visiontriage/pkg"
)

const triagePrompt = `You are an AI Triage Assistant. Look at the provided medical image and generate 2-3 important, multiple-choice questions to ask the user for context.
Return a response in a strict JSON format with a single key "questions".
The value of "questions" should be a list of objects, where each object has "question_text" and a list of "options".
Example: {"questions": [{"question_text": "How long has this been present?", "options": ["< 1 day", "1-3 days", "> 3 days"]}]}
Respond ONLY with the JSON object.`

const analysisPromptFormat = `You are an expert medical analyst AI. You will be provided with a medical image and a triage conversation transcript.
Your task is to provide a comprehensive, safe, and transparent final analysis based on BOTH the image and the conversation.

**Triage Conversation Transcript:**
%s

**Analysis Task:**
Provide a detailed analysis formatted with Markdown, including these exact sections:

1.  **Integrated Observation:** A brief summary combining visual findings with user-provided symptoms.

2.  **Key Visual Characteristics:** A bulleted list of objective visual details.

3.  **Potential Interpretation (Multi-Paragraph Format):**
    - In this section, discuss the most likely interpretations in **separate paragraphs**.
    - **First Paragraph:** Begin with the most likely possibility. State your confidence level (e.g., "Confidence: High") and then, in a narrative style, explain the supporting visual and user evidence for this conclusion.
    - **Subsequent Paragraph(s):** In a new paragraph, discuss a less likely possibility. State its confidence (e.g., "Confidence: Low") and explain why it is less likely, referencing the available evidence.
    - Discuss no more than three possibilities in total.

4.  **Crucial Next Steps & Safety Information:**

5.  **MANDATORY DISCLAIMER:**

Structure your response exactly as requested, with separate paragraphs for each interpretation.`

// TriagePrompt returns the fixed instruction asking the model for 2-3
// multiple-choice clarifying questions as a JSON object.
func TriagePrompt() string { return triagePrompt }

// AnalysisPrompt formats the final-analysis instruction with the triage
// transcript interpolated as literal Q:/A: lines in original order.  Output
// is deterministic given the history.
func AnalysisPrompt(history []pkg.QA) string {
	lines := make([]string, 0, len(history))
	for _, qa := range history {
		lines = append(lines, fmt.Sprintf("Q: %s\nA: %s", qa.Question, qa.Answer))
	}
	return fmt.Sprintf(analysisPromptFormat, strings.Join(lines, "\n"))
}
