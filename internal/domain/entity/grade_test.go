package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGardnerGradeJSON(t *testing.T) {
	g := GardnerGrade{Status: GradeStatusGraded, Expansion: 4, ICM: GradeA, TE: GradeB}
	assert.Equal(t, "4AB", g.Code())

	raw, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"GRADED","expansion":"4","icm":"A","te":"B"}`, string(raw))
}

func TestSentinelGradesNeverLookGraded(t *testing.T) {
	for _, g := range []GardnerGrade{NoModelGrade(), NoInputGrade(), ErrorGrade("boom"), NotAssessedGrade()} {
		assert.False(t, g.Graded())
		assert.Equal(t, string(g.Status), g.Code())

		var w map[string]string
		raw, err := json.Marshal(g)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &w))
		assert.Equal(t, string(g.Status), w["expansion"])
		assert.NotEmpty(t, w["icm"])
		assert.NotEmpty(t, w["te"])
	}
}

func TestMilestoneSetJSON(t *testing.T) {
	raw, err := json.Marshal(UnavailableMilestones("morphology analysis only"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"unavailable":true,"reason":"morphology analysis only"}`, string(raw))

	set := MilestoneSet{Available: true, Milestones: []Milestone{
		{Code: MilestoneT2, Reached: true, Hours: 26.44},
		{Code: MilestoneTEB},
	}}
	raw, err = json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t2":"26.4h","tEB":"--"}`, string(raw))
	assert.Equal(t, []string{MilestoneT2}, set.Reached())
}

func TestKPISetJSON(t *testing.T) {
	raw, err := json.Marshal(KPISet{Available: true, CellCount: 95, CavitySymmetryPct: 88, FragmentationPct: 3, FragmentationBelow: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cell_count":"95","cavity_symmetry":"88%","fragmentation":"<3%"}`, string(raw))
}

func TestStageLabels(t *testing.T) {
	assert.Equal(t, "tB (Blastocyst)", StageLabel(StageTB))
	assert.Equal(t, "Stage 16", StageLabel(16))
	c, a := StageGuidance(-1)
	assert.Contains(t, c, "Unknown")
	assert.NotEmpty(t, a)
}
