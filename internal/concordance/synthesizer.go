// Package concordance combines the stage and morphology verdicts into the final report.
package concordance

import (
	"fmt"
	"strings"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
)

const noAnomalies = "No significant anomalies detected."

var dayContext = map[int]string{
	1: "Fertilization check stage (PN check)",
	2: "Early cleavage stage (2-4 cells)",
	3: "Cleavage stage (6-8 cells)",
	4: "Morula stage / Compaction",
	5: "Optimal timing - standard blastocyst development",
	6: "Slightly delayed - monitor closely",
	7: "Slower development - reduced viability potential",
}

var gradeAction = map[entity.QualityBucket]string{
	entity.QualityHigh:        "Suitable for transfer or vitrification per clinic protocol.",
	entity.QualityModerate:    "Consider for transfer after comparison with the rest of the cohort.",
	entity.QualityLow:         "Low implantation potential. Embryologist review advised before any transfer decision.",
	entity.QualityUnavailable: "Automated grading unavailable. Manual Gardner grading required.",
}

var letterScore = map[entity.GradeLetter]int{
	entity.GradeA: 30,
	entity.GradeB: 20,
	entity.GradeC: 10,
}

type Synthesizer struct{}

func NewSynthesizer() *Synthesizer { return &Synthesizer{} }

// DayPenalty is subtracted from the raw viability score for late embryos.
func DayPenalty(day int) int {
	switch {
	case day >= 7:
		return 25
	case day == 6:
		return 10
	}
	return 0
}

// DayContext describes what is expected at a given day of development.
func DayContext(day int) string {
	if c, ok := dayContext[day]; ok {
		return c
	}
	return "Unknown"
}

// GradeScore is the raw viability score of a graded embryo, in [25, 85].
func GradeScore(g entity.GardnerGrade) int {
	score := letterScore[g.ICM] + letterScore[g.TE]
	switch {
	case g.Expansion >= 4:
		score += 25
	case g.Expansion == 3:
		score += 15
	default:
		score += 5
	}
	return score
}

func GradeQuality(g entity.GardnerGrade) entity.QualityBucket {
	if !g.Graded() {
		return entity.QualityUnavailable
	}
	goodLetters := g.ICM != entity.GradeC && g.TE != entity.GradeC
	switch {
	case g.Expansion >= 4 && goodLetters:
		return entity.QualityHigh
	case g.Expansion == 3 || g.Expansion == 4:
		return entity.QualityModerate
	}
	return entity.QualityLow
}

// StageAssessment names the developmental phase of a stage and its quality bucket.
func StageAssessment(s entity.StageResult) (string, entity.QualityBucket) {
	switch {
	case s.Index >= entity.StageTB:
		switch {
		case s.Confidence > 0.85:
			return "Blastocyst", entity.QualityHigh
		case s.Confidence > 0.70:
			return "Blastocyst", entity.QualityModerate
		}
		return "Blastocyst", entity.QualityLow
	case s.Index >= entity.StageTM:
		return "Morula", entity.QualityTransitional
	case s.Index >= entity.StageT8:
		return "8+ Cell", entity.QualityDeveloping
	}
	return "Early Cleavage", entity.QualityPreCompaction
}

// Agreement classifies two quality buckets. High and Moderate are adjacent.
func Agreement(stage, grade entity.QualityBucket) entity.ConcordanceStatus {
	switch {
	case grade == entity.QualityUnavailable:
		return entity.ConcordanceIncomplete
	case stage == grade:
		return entity.ConcordanceAgree
	case stage == entity.QualityHigh && grade == entity.QualityModerate,
		stage == entity.QualityModerate && grade == entity.QualityHigh:
		return entity.ConcordancePartial
	}
	return entity.ConcordanceDisagree
}

// Synthesize builds the report for a completed analysis. Morphology mode never looks at
// the stage result.
func (s *Synthesizer) Synthesize(in entity.SynthesisInput) *entity.ConcordanceReport {
	report := &entity.ConcordanceReport{
		ID:             in.ID,
		Status:         entity.ReportComplete,
		Mode:           in.Mode,
		Grade:          in.Grade,
		KPIs:           in.KPIs,
		Milestones:     in.Milestones,
		Day:            in.Day,
		IsVideo:        in.IsVideo,
		FramesAnalyzed: in.FramesAnalyzed,
		Backend:        in.Backend,
		Details:        details(in),
	}

	if in.Mode == entity.ModeMorphology {
		s.morphology(report, in)
	} else {
		s.temporal(report, in)
	}
	return report
}

func (s *Synthesizer) morphology(r *entity.ConcordanceReport, in entity.SynthesisInput) {
	g := in.Grade
	c := gradeConcordance(g, in.Day)
	c.Status = entity.ConcordanceMorphologyOnly
	c.StageAssessment = "Not Assessed"
	c.StageQuality = entity.QualityNotAssessed
	dayLine := fmt.Sprintf("DAY OF DEVELOPMENT: Day %d - %s", in.Day, c.DayContext)

	if g.Graded() {
		c.Commentary = fmt.Sprintf(
			"GARDNER MODEL: %d%% confident grade is %s (%s quality).\nMORPHOLOGY STATUS: Blastocyst differentiation confirmed.\n%s\n\nCONCLUSION: Morphology suggests %s implantation potential. Viability Score (Gardner-driven): %d%%.",
			c.GradeConfidencePct, g.Code(), c.GradeQuality, dayLine, c.GradeQuality, c.ViabilityScore)
		r.Stage = fmt.Sprintf("Morphology Focus (%s)", g.Code())
		r.Confidence = (g.ExpansionConfidence + g.ICMConfidence + g.TEConfidence) / 3
		r.Commentary = fmt.Sprintf("Gardner grade %s: expansion %d, inner cell mass %s, trophectoderm %s.", g.Code(), g.Expansion, g.ICM, g.TE)
	} else {
		c.Commentary = fmt.Sprintf(
			"ANALYSIS STATUS: Morphological grading was partially successful, but definitive Gardner score unavailable (%s).\n%s",
			g.Status, dayLine)
		r.Stage = "Morphology Focus (grade unavailable)"
		r.Commentary = fmt.Sprintf("Gardner grading unavailable: %s.", g.Status)
	}

	r.StageResult = entity.UnavailableStage()
	r.Action = gradeAction[c.GradeQuality]
	r.Concordance = c
	r.Anomalies = []string{noAnomalies}
	r.HeatmapAvailable = true
}

func (s *Synthesizer) temporal(r *entity.ConcordanceReport, in entity.SynthesisInput) {
	st := in.Stage
	g := in.Grade
	c := gradeConcordance(g, in.Day)
	c.StageAssessment, c.StageQuality = StageAssessment(st)
	c.StageConfidencePct = int(st.Confidence * 100)
	c.Status = Agreement(c.StageQuality, c.GradeQuality)
	dayLine := fmt.Sprintf("DAY OF DEVELOPMENT: Day %d - %s", in.Day, c.DayContext)

	if c.Status == entity.ConcordanceIncomplete {
		c.Commentary = fmt.Sprintf(
			"KINEMATIC MODEL: %d%% confident this is a '%s' stage.\nGARDNER MODEL: Unable to grade (Status: %s).\n%s\n\nCONCLUSION: Incomplete analysis. Gardner grading not available. Embryologist review is required.",
			c.StageConfidencePct, c.StageAssessment, g.Status, dayLine)
	} else {
		c.Commentary = fmt.Sprintf(
			"KINEMATIC MODEL: %d%% confident this is a '%s' (%s quality).\nGARDNER MODEL: %d%% confident grade is %s (%s quality).\n%s\n\nCONCLUSION: Models %s. Day-adjusted viability score: %d%%.",
			c.StageConfidencePct, c.StageAssessment, c.StageQuality,
			c.GradeConfidencePct, g.Code(), c.GradeQuality, dayLine, c.Status, c.ViabilityScore)
	}

	r.StageResult = st
	r.Stage = st.Label
	r.Confidence = st.Confidence
	r.Commentary, r.Action = entity.StageGuidance(st.Index)
	r.Concordance = c
	r.Anomalies = Anomalies(st)
}

// gradeConcordance fills the morphology half of the concordance block.
func gradeConcordance(g entity.GardnerGrade, day int) entity.Concordance {
	c := entity.Concordance{
		Day:          day,
		DayContext:   DayContext(day),
		GradeQuality: GradeQuality(g),
		Grade:        "N/A",
	}
	if g.Graded() {
		score := GradeScore(g)
		c.Grade = g.Code()
		c.GradeConfidencePct = min(95, 40+score)
		c.ViabilityScore = max(0, score-DayPenalty(day))
	}
	return c
}

// Anomalies flags atypical cleavage patterns from the temporal verdict.
func Anomalies(s entity.StageResult) []string {
	var out []string
	if s.Index == entity.StageT3 {
		out = append(out, "Asynchronous cleavage detected (t2->t3).")
	}
	if s.Confidence < 0.75 {
		out = append(out, "Irregular blastomere symmetry observed.")
	}
	if len(out) == 0 {
		return []string{noAnomalies}
	}
	return out
}

// ErrorReport is the terminal report of a request whose inference failed after gating.
func (s *Synthesizer) ErrorReport(in entity.SynthesisInput, reason string) *entity.ConcordanceReport {
	return &entity.ConcordanceReport{
		ID:             in.ID,
		Status:         entity.ReportError,
		Mode:           in.Mode,
		Stage:          "ERROR",
		StageResult:    entity.UnavailableStage(),
		Commentary:     "Neural Failure: " + reason,
		Action:         "Re-run the analysis. If the failure persists, grade manually and contact support.",
		Grade:          entity.ErrorGrade(reason),
		KPIs:           entity.UnavailableKPIs("analysis failed"),
		Milestones:     entity.UnavailableMilestones("analysis failed"),
		Anomalies:      []string{},
		Day:            in.Day,
		IsVideo:        in.IsVideo,
		FramesAnalyzed: in.FramesAnalyzed,
		Backend:        in.Backend,
		Details:        details(in),
		Concordance: entity.Concordance{
			Status:          entity.ConcordanceIncomplete,
			StageAssessment: "Not Assessed",
			StageQuality:    entity.QualityUnavailable,
			Grade:           "N/A",
			GradeQuality:    entity.QualityUnavailable,
			Day:             in.Day,
			DayContext:      DayContext(in.Day),
			Commentary:      "Analysis failed before a verdict could be produced.",
		},
	}
}

func details(in entity.SynthesisInput) string {
	return fmt.Sprintf("Model: %s\nPipeline: %s\nFrames analyzed: %d", in.Backend, strings.ToUpper(string(in.Mode)), in.FramesAnalyzed)
}
