// Package qa audits a completed evaluation set for internal
// contradictions and decides whether a human needs to look at the result.
// The audit is deterministic: identical input yields identical output,
// modulo the timestamp.
package qa

import (
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/marker/internal/model"
)

// Config holds the audit thresholds. The defaults are hand-tuned rather
// than empirically validated, so they are configurable instead of
// hard-coded.
type Config struct {
	// Evaluations below LowConfidence are flagged; below VeryLowConfidence
	// the flag severity is high.
	LowConfidence     float64
	VeryLowConfidence float64
	// A concept worth more than MandatoryPointsFloor that is absent counts
	// as missing important content.
	MandatoryPointsFloor float64
	// Score/quality discrepancy bounds (percentages).
	HighScoreFloor float64
	LowScoreCeil   float64
	// Quality tiers this many ordinal steps away from the score-implied
	// tier are flagged.
	QualityGap int
	// Penalties applied to the consistency score.
	IssuePenalty float64
	FlagPenalty  float64
	// Consistency below RecommendReviewBelow triggers a criteria-review
	// recommendation; a flagged fraction above FlaggedFractionCeil
	// triggers a re-evaluation recommendation.
	RecommendReviewBelow float64
	FlaggedFractionCeil  float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		LowConfidence:        0.6,
		VeryLowConfidence:    0.4,
		MandatoryPointsFloor: 1.0,
		HighScoreFloor:       80,
		LowScoreCeil:         50,
		QualityGap:           2,
		IssuePenalty:         0.2,
		FlagPenalty:          0.05,
		RecommendReviewBelow: 0.8,
		FlaggedFractionCeil:  0.3,
	}
}

// Engine runs the consistency checks.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Review audits one submission's evaluations. The five checks are
// independent; no check sees another's output.
func (e *Engine) Review(evals []model.Evaluation) *model.AuditResult {
	var flags []model.Flag
	var issues []model.Issue

	flags = append(flags, e.checkLowConfidence(evals)...)
	issues = append(issues, e.checkScoringBounds(evals)...)
	flags = append(flags, e.checkMandatoryConcepts(evals)...)
	flags = append(flags, e.checkScoreDiscrepancies(evals)...)
	flags = append(flags, e.checkQualityAlignment(evals)...)

	consistency := 1.0 - float64(len(issues))*e.cfg.IssuePenalty - float64(len(flags))*e.cfg.FlagPenalty
	if consistency < 0 {
		consistency = 0
	}
	if consistency > 1 {
		consistency = 1
	}

	var recommendations []string
	if consistency < e.cfg.RecommendReviewBelow {
		recommendations = append(recommendations, "Review marking criteria for consistency")
	}
	if len(evals) > 0 && float64(len(flags)) > float64(len(evals))*e.cfg.FlaggedFractionCeil {
		recommendations = append(recommendations, "Consider re-evaluating flagged answers")
	}
	for _, f := range flags {
		if strings.Contains(f.Reason, "Low confidence") {
			recommendations = append(recommendations, "Human review recommended for low confidence evaluations")
			break
		}
	}

	tier := model.ConfidenceLow
	switch {
	case consistency >= 0.9 && len(flags) == 0:
		tier = model.ConfidenceHigh
	case consistency >= 0.7:
		tier = model.ConfidenceMedium
	}

	return &model.AuditResult{
		Passed:           len(issues) == 0,
		RequiresReview:   len(flags) > 0,
		Flags:            flags,
		Issues:           issues,
		ConfidenceTier:   tier,
		ConsistencyScore: consistency,
		Recommendations:  recommendations,
		AuditedAt:        time.Now().UTC(),
	}
}

// checkLowConfidence flags evaluations the evaluator itself was unsure of.
func (e *Engine) checkLowConfidence(evals []model.Evaluation) []model.Flag {
	var flags []model.Flag
	for i := range evals {
		ev := &evals[i]
		if ev.Confidence >= e.cfg.LowConfidence {
			continue
		}
		severity := model.SeverityMedium
		if ev.Confidence < e.cfg.VeryLowConfidence {
			severity = model.SeverityHigh
		}
		flags = append(flags, model.Flag{
			QuestionID: ev.QuestionID,
			Reason:     "Low confidence score",
			Severity:   severity,
			Details:    map[string]string{"confidence": fmt.Sprintf("%.2f", ev.Confidence)},
		})
	}
	return flags
}

// checkScoringBounds raises a hard issue when the concept points earned
// exceed the question maximum. Any issue fails the whole audit.
func (e *Engine) checkScoringBounds(evals []model.Evaluation) []model.Issue {
	var issues []model.Issue
	for i := range evals {
		ev := &evals[i]
		earned := ev.ConceptPointsEarned()
		if earned > ev.MaxMarks {
			issues = append(issues, model.Issue{
				QuestionID:  ev.QuestionID,
				Description: fmt.Sprintf("Score exceeds maximum: awarded %.4g but max is %.4g", earned, ev.MaxMarks),
			})
		}
	}
	return issues
}

// checkMandatoryConcepts flags answers rated excellent or good while
// missing important content: the qualitative and concept-level judgements
// disagree.
func (e *Engine) checkMandatoryConcepts(evals []model.Evaluation) []model.Flag {
	var flags []model.Flag
	for i := range evals {
		ev := &evals[i]
		missing := 0
		for _, c := range ev.Concepts {
			if !c.Present && c.PointsPossible > e.cfg.MandatoryPointsFloor {
				missing++
			}
		}
		if missing == 0 {
			continue
		}
		if ev.OverallQuality == model.QualityExcellent || ev.OverallQuality == model.QualityGood {
			flags = append(flags, model.Flag{
				QuestionID: ev.QuestionID,
				Reason:     "High score despite missing key concepts",
				Severity:   model.SeverityMedium,
				Details: map[string]string{
					"missing_count": fmt.Sprintf("%d", missing),
					"quality":       string(ev.OverallQuality),
				},
			})
		}
	}
	return flags
}

// checkScoreDiscrepancies flags answers whose numeric score and quality
// tier contradict each other outright.
func (e *Engine) checkScoreDiscrepancies(evals []model.Evaluation) []model.Flag {
	var flags []model.Flag
	for i := range evals {
		ev := &evals[i]
		pct := ev.Percentage()
		quality := ev.OverallQuality

		switch {
		case pct >= e.cfg.HighScoreFloor && (quality == model.QualityPoor || quality == model.QualityInadequate):
			flags = append(flags, model.Flag{
				QuestionID: ev.QuestionID,
				Reason:     "High score but poor quality rating",
				Severity:   model.SeverityHigh,
				Details: map[string]string{
					"percentage": fmt.Sprintf("%.1f", pct),
					"quality":    string(quality),
				},
			})
		case pct < e.cfg.LowScoreCeil && (quality == model.QualityExcellent || quality == model.QualityGood):
			flags = append(flags, model.Flag{
				QuestionID: ev.QuestionID,
				Reason:     "Low score but high quality rating",
				Severity:   model.SeverityHigh,
				Details: map[string]string{
					"percentage": fmt.Sprintf("%.1f", pct),
					"quality":    string(quality),
				},
			})
		}
	}
	return flags
}

// checkQualityAlignment flags quality tiers two or more ordinal steps away
// from the tier the score percentage implies.
func (e *Engine) checkQualityAlignment(evals []model.Evaluation) []model.Flag {
	var flags []model.Flag
	for i := range evals {
		ev := &evals[i]
		pct := ev.Percentage()
		expected := expectedQuality(pct)

		gap := expected.Ordinal() - ev.OverallQuality.Ordinal()
		if gap < 0 {
			gap = -gap
		}
		if gap >= e.cfg.QualityGap {
			flags = append(flags, model.Flag{
				QuestionID: ev.QuestionID,
				Reason:     "Quality rating doesn't match score percentage",
				Severity:   model.SeverityLow,
				Details: map[string]string{
					"percentage":       fmt.Sprintf("%.1f", pct),
					"quality":          string(ev.OverallQuality),
					"expected_quality": string(expected),
				},
			})
		}
	}
	return flags
}

func expectedQuality(percentage float64) model.Quality {
	switch {
	case percentage >= 90:
		return model.QualityExcellent
	case percentage >= 70:
		return model.QualityGood
	case percentage >= 50:
		return model.QualitySatisfactory
	case percentage >= 30:
		return model.QualityPoor
	default:
		return model.QualityInadequate
	}
}
