// Package prompts builds the system and user prompts for the marking
// capability calls. Every prompt instructs the backend to answer with a
// single JSON object so responses can be decoded strictly.
package prompts

import (
	"fmt"
	"strings"

	"github.com/pavelanni/marker/internal/model"
)

// AnalyzerSystem is the system prompt for question analysis.
const AnalyzerSystem = `You are an expert examiner and educational assessment specialist. You analyze
marking guides and extract clear, structured evaluation criteria.

For the question you are given:
1. Identify the question type (mcq, short_answer, essay, numerical, true_false)
2. Extract all key concepts with point values, marking mandatory ones
3. Define evaluation criteria for excellent, good, satisfactory and poor answers
4. List important keywords and common mistakes to watch for

Respond ONLY with a JSON object with these fields:
{"question_type": "...", "key_concepts": [{"concept": "...", "points": <number>, "mandatory": <bool>, "keywords": ["..."]}], "evaluation_criteria": {"excellent": "...", "good": "...", "satisfactory": "...", "poor": "..."}, "keywords": ["..."], "common_mistakes": ["..."]}`

// EvaluatorSystem is the system prompt for answer evaluation.
const EvaluatorSystem = `You are a fair, consistent, and expert examiner. You evaluate student answers
against marking rubrics with precision and objectivity.

Principles:
- Be fair and unbiased
- Look for what students know, not just what they don't know
- Award partial credit appropriately
- Recognize different ways of expressing correct concepts
- Be consistent across all evaluations

Respond ONLY with a JSON object with these fields:
{"concepts_identified": [{"concept": "...", "present": <bool>, "accuracy": "fully_correct|partially_correct|incorrect|not_present", "evidence": "<quote or empty>", "points_earned": <number>, "points_possible": <number>}], "overall_quality": "excellent|good|satisfactory|poor|inadequate", "strengths": ["..."], "weaknesses": ["..."], "misconceptions": ["..."], "confidence_score": <0-1>, "requires_human_review": <bool>, "review_reason": "<reason or empty>"}`

// FeedbackSystem is the system prompt for feedback generation.
const FeedbackSystem = `You are a supportive educator writing constructive feedback for a student.
Be specific, encouraging, and actionable. Focus on growth, not blame.
Respond ONLY with the JSON object described in the instructions.`

// BuildAnalysisPrompt builds the user prompt for analyzing one raw question
// into a rubric.
func BuildAnalysisPrompt(q model.RawQuestion) string {
	var sb strings.Builder
	sb.WriteString("<question_to_analyze>\n")
	fmt.Fprintf(&sb, "Question %s (%.4g marks):\n%s\n", q.Number, q.MaxMarks, q.Text)
	if len(q.Options) > 0 {
		sb.WriteString("\nOptions:\n")
		for _, opt := range q.Options {
			marker := ""
			if opt.IsCorrect || (q.CorrectAnswer != "" && opt.Label == q.CorrectAnswer) {
				marker = " [CORRECT]"
			}
			fmt.Fprintf(&sb, "  %s. %s%s\n", opt.Label, opt.Text, marker)
		}
	}
	if q.MarkingNotes != "" {
		sb.WriteString("\nMarking notes:\n" + q.MarkingNotes + "\n")
	}
	if q.SampleAnswer != "" {
		sb.WriteString("\nSample answer:\n" + q.SampleAnswer + "\n")
	}
	sb.WriteString("</question_to_analyze>\n\n")
	fmt.Fprintf(&sb, "The key concept points should sum to approximately %.4g marks.\n", q.MaxMarks)
	return sb.String()
}

// BuildEvaluationPrompt builds the user prompt for evaluating one answer
// against its rubric.
func BuildEvaluationPrompt(q *model.AnalyzedQuestion, answer string) string {
	var sb strings.Builder

	sb.WriteString("<question>\n" + q.Text + "\n")
	if len(q.Options) > 0 {
		sb.WriteString("\nOptions:\n")
		for _, opt := range q.Options {
			marker := ""
			if opt.IsCorrect || (q.CorrectAnswer != "" && opt.Label == q.CorrectAnswer) {
				marker = " ✓ CORRECT ANSWER"
			}
			fmt.Fprintf(&sb, "  %s. %s%s\n", opt.Label, opt.Text, marker)
		}
	}
	sb.WriteString("</question>\n\n")

	sb.WriteString("<marking_rubric>\n")
	fmt.Fprintf(&sb, "Question Type: %s\nMaximum Marks: %.4g\n\n", q.Type, q.MaxMarks)
	sb.WriteString("Key Concepts to Look For:\n" + formatKeyConcepts(q.KeyConcepts) + "\n\n")
	sb.WriteString("Evaluation Criteria:\n")
	fmt.Fprintf(&sb, "- Excellent: %s\n", q.Criteria.Excellent)
	fmt.Fprintf(&sb, "- Good: %s\n", q.Criteria.Good)
	fmt.Fprintf(&sb, "- Satisfactory: %s\n", q.Criteria.Satisfactory)
	fmt.Fprintf(&sb, "- Poor: %s\n", q.Criteria.Poor)
	if len(q.Keywords) > 0 {
		sb.WriteString("\nKeywords: " + strings.Join(q.Keywords, ", ") + "\n")
	}
	sb.WriteString("</marking_rubric>\n\n")

	sb.WriteString("<student_answer>\n" + answer + "\n</student_answer>\n\n")

	sb.WriteString("<instructions>\n")
	if q.Type == model.TypeMCQ || q.Type == model.TypeTrueFalse {
		sb.WriteString("- The student may answer with just the letter (e.g. \"B\") or the letter and full option text; both are correct if the letter matches.\n")
		sb.WriteString("- Award FULL marks for the correct option, ZERO for an incorrect one.\n")
		sb.WriteString("- Ignore prefixes like \"Q1:\" and formatting noise; extract the actual choice.\n")
	}
	sb.WriteString("- Check for each key concept in the rubric and assess its accuracy.\n")
	sb.WriteString("- Identify strengths, weaknesses, and misconceptions.\n")
	sb.WriteString("- State your confidence and flag for human review if the answer is ambiguous.\n")
	sb.WriteString("</instructions>\n")

	return sb.String()
}

// BuildQuestionFeedbackPrompt builds the user prompt for per-question
// feedback from one evaluation.
func BuildQuestionFeedbackPrompt(e *model.Evaluation) string {
	var sb strings.Builder
	sb.WriteString("<evaluation_summary>\n")
	fmt.Fprintf(&sb, "Question %s: %.4g/%.4g marks, overall quality %s\n",
		e.QuestionID, e.MarksAwarded, e.MaxMarks, e.OverallQuality)
	sb.WriteString("Strengths:\n" + formatList(e.Strengths))
	sb.WriteString("Weaknesses:\n" + formatList(e.Weaknesses))
	sb.WriteString("Misconceptions:\n" + formatList(e.Misconceptions))
	sb.WriteString("Concepts:\n")
	for _, c := range e.Concepts {
		fmt.Fprintf(&sb, "- %s: present=%t accuracy=%s (%.4g/%.4g)\n",
			c.Concept, c.Present, c.Accuracy, c.PointsEarned, c.PointsPossible)
	}
	sb.WriteString("</evaluation_summary>\n\n")
	sb.WriteString("Write constructive feedback for this answer. Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"feedback": "<main feedback>", "strengths": ["..."], "improvement_areas": ["..."], "suggestions": ["..."]}`)
	sb.WriteString("\n")
	return sb.String()
}

// BuildOverallFeedbackPrompt builds the user prompt for the aggregate
// feedback over the whole submission.
func BuildOverallFeedbackPrompt(evals []model.Evaluation, scores *model.ScoreSheet) string {
	var sb strings.Builder
	sb.WriteString("<performance_summary>\n")
	fmt.Fprintf(&sb, "Total: %.4g/%.4g (%.1f%%), grade %s, passed=%t\n",
		scores.TotalMarks, scores.MaxMarks, scores.Percentage, scores.Grade, scores.Passed)
	for _, e := range evals {
		fmt.Fprintf(&sb, "- Question %s: %.4g/%.4g, quality %s\n",
			e.QuestionID, e.MarksAwarded, e.MaxMarks, e.OverallQuality)
	}
	sb.WriteString("</performance_summary>\n\n")
	sb.WriteString("Write an overall assessment for the student. Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"overall_feedback": "<summary>", "key_strengths": ["..."], "key_improvements": ["..."], "study_recommendations": ["..."], "encouragement": "<short encouraging message>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func formatKeyConcepts(concepts []model.KeyConcept) string {
	if len(concepts) == 0 {
		return "No key concepts specified"
	}
	var sb strings.Builder
	for i, c := range concepts {
		required := "Optional"
		if c.Mandatory {
			required = "MANDATORY"
		}
		keywords := ""
		if len(c.Keywords) > 0 {
			keywords = " (Keywords: " + strings.Join(c.Keywords, ", ") + ")"
		}
		fmt.Fprintf(&sb, "%d. %s - %.4g marks [%s]%s\n", i+1, c.Concept, c.Points, required, keywords)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "- none noted\n"
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
	return sb.String()
}
