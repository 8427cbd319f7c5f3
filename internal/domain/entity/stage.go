package entity

import "fmt"

// NumStages is the number of developmental stage classes the stage classifier emits.
const NumStages = 16

// Stage indices referenced by the KPI and concordance logic.
const (
	StageT2  = 3
	StageT3  = 4
	StageT5  = 6
	StageT8  = 9
	StageTM  = 11
	StageTB  = 13
	StageTEB = 14
)

type stageInfo struct {
	code        string
	description string
	commentary  string
	action      string
}

var stages = [NumStages]stageInfo{
	{"tPB2", "Second Polar Body", "Second Polar Body detected. This indicates successful fertilization (meiosis completion).", "Monitor for pro-nuclei appearance (tPNa)."},
	{"tPNa", "Pro-nuclei appearance", "Pro-nuclei appearance (tPNa). Confirmation of two-parent genetic contribution.", "Assess PN symmetry and positioning."},
	{"tPNf", "Pro-nuclei fading", "Pro-nuclei fading (tPNf). The embryo is entering the first cleavage division.", "Prepare for time-lapse monitoring of the first mitotic division."},
	{"t2", "2-cell stage", "2-cell stage (t2). The first cleavage is complete.", "Evaluate blastomere size and fragmentation."},
	{"t3", "3-cell stage", "3-cell stage (t3). Rapid asynchronous division occurring.", "Monitor for transition to 4-cell stage within expected time windows."},
	{"t4", "4-cell stage", "4-cell stage (t4). Key landmark for early embryo quality.", "Ideal stage for assessment of symmetry and cytoplasm quality."},
	{"t5", "5-cell stage", "5-cell stage (t5). Continuation of early cleavage.", "Track progression to higher cell counts."},
	{"t6", "6-cell stage", "6-cell stage (t6). Early multicellular development.", "Monitor for synchronous cleavage."},
	{"t7", "7-cell stage", "7-cell stage (t7). Intermediate development.", "Assess for abnormal cleavage patterns."},
	{"t8", "8-cell stage", "8-cell stage (t8). High-quality landmark before compaction begins.", "Final assessment before the embryo enters the Morula phase."},
	{"t9+", "9+ cells", "9+ cells. Embryo is progressing beyond the 8-cell stage.", "Look for signs of early compaction."},
	{"tM", "Morula", "Morula (tM). Blastomeres are compacting to form a solid ball.", "Critical transition phase. Monitor for cavitating space (Blastocoel)."},
	{"tSB", "Starting Blastocyst", "Starting Blastocyst (tSB). Initial formation of the fluid-filled cavity.", "Crucial stage for assessing implantation potential."},
	{"tB", "Blastocyst", "Blastocyst (tB). Clear distinction between Inner Cell Mass (ICM) and Trophectoderm.", "Ideal stage for clinical grading (e.g., Gardner scale)."},
	{"tEB", "Expanded Blastocyst", "Expanded Blastocyst (tEB). Significant expansion of the cavity and thinning of the shell.", "High likelihood for successful hatching. Prepare for potential transfer."},
	{"tHB", "Hatched Blastocyst", "Hatched Blastocyst (tHB). The embryo has emerged from its shell.", "Maximum potential for implantation. Immediate clinical action recommended if transferring."},
}

func StageCode(index int) string {
	if index < 0 || index >= NumStages {
		return fmt.Sprintf("stage%d", index)
	}
	return stages[index].code
}

// StageLabel renders "code (description)", e.g. "tB (Blastocyst)".
func StageLabel(index int) string {
	if index < 0 || index >= NumStages {
		return fmt.Sprintf("Stage %d", index)
	}
	return fmt.Sprintf("%s (%s)", stages[index].code, stages[index].description)
}

// StageGuidance returns the clinical commentary and recommended action for a stage.
func StageGuidance(index int) (commentary, action string) {
	if index < 0 || index >= NumStages {
		return "Unknown stage detected.", "Consult with a senior embryologist."
	}
	return stages[index].commentary, stages[index].action
}

// StageResult is the stage classifier's verdict for the final timestep.
type StageResult struct {
	Available  bool    `json:"available"`
	Index      int     `json:"index"`
	Code       string  `json:"code,omitempty"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
	// Timeline holds the argmax stage for every timestep of the sequence.
	Timeline []int `json:"timeline,omitempty"`
}

func NewStageResult(index int, confidence float64, timeline []int) StageResult {
	return StageResult{
		Available:  true,
		Index:      index,
		Code:       StageCode(index),
		Label:      StageLabel(index),
		Confidence: confidence,
		Timeline:   timeline,
	}
}

// UnavailableStage is used when the mode does not run the stage classifier.
func UnavailableStage() StageResult {
	return StageResult{Index: -1}
}
