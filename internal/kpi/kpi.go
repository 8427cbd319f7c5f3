// Package kpi derives the secondary clinical metrics shown next to the classifier
// verdicts. None of them are measured from pixels: morphology KPIs are bounded ranges
// keyed by the Gardner grade, milestones are clinical reference timings keyed by the
// final detected stage.
package kpi

import (
	"math"

	"github.com/vikrammonish02/EMprion/internal/domain/entity"
)

type intRange struct{ lo, hi int }

// Cell count by expansion grade; grades above 5 share the last bucket.
var cellCountByExpansion = [...]intRange{
	{50, 70},
	{70, 90},
	{90, 110},
	{110, 140},
	{140, 180},
}

var symmetryBaseByTE = map[entity.GradeLetter]int{
	entity.GradeA: 85,
	entity.GradeB: 75,
	entity.GradeC: 60,
}

const (
	symmetryJitter = 10
	symmetryCap    = 99
)

var fragmentationByICM = map[entity.GradeLetter]intRange{
	entity.GradeA: {2, 5},
	entity.GradeB: {5, 15},
	entity.GradeC: {15, 30},
}

// Reference timings in hours post insemination.
type reference struct {
	code     string
	stage    int
	min, max float64
	typical  float64
}

var milestoneReference = [...]reference{
	{entity.MilestoneT2, entity.StageT2, 24, 29, 26.5},
	{entity.MilestoneT3, entity.StageT3, 34, 40, 37},
	{entity.MilestoneT5, entity.StageT5, 45, 52, 48.5},
	{entity.MilestoneT8, entity.StageT8, 50, 58, 54},
	{entity.MilestoneTM, entity.StageTM, 88, 98, 93},
	{entity.MilestoneTB, entity.StageTB, 98, 116, 105},
	{entity.MilestoneTEB, entity.StageTEB, 108, 130, 118},
}

const milestoneJitter = 1.5

const (
	reasonMorphologyMode = "Morphology Mode"
	reasonTemporalMode   = "Temporal Mode"
	reasonNeedsVideo     = "Requires Time-Lapse Data"
	reasonNoStage        = "Stage classification unavailable"
)

type Deriver struct {
	jitter Jitter
}

// NewDeriver builds a deriver; a nil jitter uses a clock-seeded source.
func NewDeriver(jitter Jitter) *Deriver {
	if jitter == nil {
		jitter = NewJitter()
	}
	return &Deriver{jitter: jitter}
}

// Derive returns the metric family the mode asks for and an unavailable placeholder for
// the other one.
func (d *Deriver) Derive(grade entity.GardnerGrade, stage entity.StageResult, mode entity.AnalysisMode, isVideo bool) (entity.KPISet, entity.MilestoneSet) {
	if mode == entity.ModeTemporal {
		return entity.UnavailableKPIs(reasonTemporalMode), d.Milestones(stage, isVideo)
	}
	return d.KPIs(grade), entity.UnavailableMilestones(reasonMorphologyMode)
}

// KPIs maps a Gardner grade to cell count, cavity symmetry and fragmentation estimates.
func (d *Deriver) KPIs(grade entity.GardnerGrade) entity.KPISet {
	if !grade.Graded() {
		return entity.UnavailableKPIs("Gardner grade unavailable: " + string(grade.Status))
	}

	bucket := min(max(grade.Expansion, entity.MinExpansion), len(cellCountByExpansion)) - 1
	cells := cellCountByExpansion[bucket]

	symmetry := min(symmetryBaseByTE[grade.TE]+d.jitter.IntN(0, symmetryJitter), symmetryCap)

	frag := fragmentationByICM[grade.ICM]
	return entity.KPISet{
		Available:          true,
		CellCount:          d.jitter.IntN(cells.lo, cells.hi),
		CavitySymmetryPct:  symmetry,
		FragmentationPct:   d.jitter.IntN(frag.lo, frag.hi),
		FragmentationBelow: grade.ICM == entity.GradeA,
	}
}

// Milestones reports every reference milestone whose defining stage is at or before the
// final detected stage. Reaching a stage implies all earlier milestones occurred.
func (d *Deriver) Milestones(stage entity.StageResult, isVideo bool) entity.MilestoneSet {
	if !isVideo {
		return entity.UnavailableMilestones(reasonNeedsVideo)
	}
	if !stage.Available {
		return entity.UnavailableMilestones(reasonNoStage)
	}

	set := entity.MilestoneSet{Available: true}
	for _, ref := range milestoneReference {
		m := entity.Milestone{Code: ref.code}
		if stage.Index >= ref.stage {
			v := ref.typical + d.jitter.Float(-milestoneJitter, milestoneJitter)
			m.Reached = true
			m.Hours = roundTenth(min(max(v, ref.min), ref.max))
		}
		set.Milestones = append(set.Milestones, m)
	}

	s3 := entity.Milestone{Code: entity.MilestoneS3}
	t2, _ := set.Get(entity.MilestoneT2)
	t3, _ := set.Get(entity.MilestoneT3)
	if t2.Reached && t3.Reached {
		s3.Reached = true
		s3.Hours = roundTenth(t3.Hours - t2.Hours)
	}
	set.Milestones = append(set.Milestones, s3)
	return set
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
