// Package score aggregates per-question evaluations into a score sheet.
// Everything here is a pure reduction over its inputs.
package score

import "github.com/pavelanni/marker/internal/model"

// Aggregate computes the score sheet for a set of evaluations. Per
// question the awarded marks are the concept points earned capped at the
// question maximum, so a miscounted sum can never exceed the ceiling.
func Aggregate(evals []model.Evaluation) *model.ScoreSheet {
	sheet := &model.ScoreSheet{
		QuestionScores: make([]model.QuestionScore, 0, len(evals)),
	}

	for i := range evals {
		e := &evals[i]
		marks := e.ConceptPointsEarned()
		if marks > e.MaxMarks {
			marks = e.MaxMarks
		}

		pct := 0.0
		if e.MaxMarks > 0 {
			pct = marks / e.MaxMarks * 100
		}

		sheet.TotalMarks += marks
		sheet.MaxMarks += e.MaxMarks
		sheet.QuestionScores = append(sheet.QuestionScores, model.QuestionScore{
			QuestionID:   e.QuestionID,
			MarksAwarded: marks,
			MaxMarks:     e.MaxMarks,
			Percentage:   pct,
			Quality:      e.OverallQuality,
		})
	}

	if sheet.MaxMarks > 0 {
		sheet.Percentage = sheet.TotalMarks / sheet.MaxMarks * 100
	}
	sheet.Grade = Grade(sheet.Percentage)
	sheet.Passed = sheet.Percentage >= 50

	return sheet
}

// Grade maps a percentage to the ten-band letter grade table.
func Grade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 85:
		return "A"
	case percentage >= 80:
		return "A-"
	case percentage >= 75:
		return "B+"
	case percentage >= 70:
		return "B"
	case percentage >= 65:
		return "B-"
	case percentage >= 60:
		return "C+"
	case percentage >= 55:
		return "C"
	case percentage >= 50:
		return "C-"
	default:
		return "F"
	}
}
