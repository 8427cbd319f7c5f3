package entity

import (
	"encoding/json"
	"strconv"
)

type GradeStatus string

const (
	GradeStatusGraded      GradeStatus = "GRADED"
	GradeStatusNoModel     GradeStatus = "NO_MODEL"
	GradeStatusNoInput     GradeStatus = "NO_INPUT"
	GradeStatusError       GradeStatus = "ERROR"
	GradeStatusNotAssessed GradeStatus = "NOT_ASSESSED"
)

type GradeLetter string

const (
	GradeA GradeLetter = "A"
	GradeB GradeLetter = "B"
	GradeC GradeLetter = "C"
)

var gradeLetters = [...]GradeLetter{GradeA, GradeB, GradeC}

// GradeLetterAt maps a head's class index to its letter.
func GradeLetterAt(idx int) (GradeLetter, bool) {
	if idx < 0 || idx >= len(gradeLetters) {
		return "", false
	}
	return gradeLetters[idx], true
}

const (
	MinExpansion = 1
	MaxExpansion = 6
)

// GardnerGrade is the morphology classifier's output. Expansion, ICM and TE are only
// meaningful when Status is GradeStatusGraded; every other status is a sentinel and
// serializes as its own code.
type GardnerGrade struct {
	Status    GradeStatus
	Expansion int
	ICM       GradeLetter
	TE        GradeLetter

	ExpansionConfidence float64
	ICMConfidence       float64
	TEConfidence        float64

	// Detail explains a sentinel status, e.g. the inference error.
	Detail string
}

func (g GardnerGrade) Graded() bool { return g.Status == GradeStatusGraded }

// Code renders the compact Gardner notation ("4AB") or the sentinel code.
func (g GardnerGrade) Code() string {
	if !g.Graded() {
		return string(g.Status)
	}
	return strconv.Itoa(g.Expansion) + string(g.ICM) + string(g.TE)
}

func sentinelGrade(status GradeStatus, detail string) GardnerGrade {
	return GardnerGrade{Status: status, Detail: detail}
}

func NoModelGrade() GardnerGrade { return sentinelGrade(GradeStatusNoModel, "morphology model not loaded") }

func NoInputGrade() GardnerGrade { return sentinelGrade(GradeStatusNoInput, "no frame available for grading") }

func ErrorGrade(detail string) GardnerGrade { return sentinelGrade(GradeStatusError, detail) }

// NotAssessedGrade is the placeholder returned in temporal mode.
func NotAssessedGrade() GardnerGrade {
	return sentinelGrade(GradeStatusNotAssessed, "temporal analysis only")
}

func (g GardnerGrade) MarshalJSON() ([]byte, error) {
	type wire struct {
		Status    GradeStatus `json:"status"`
		Expansion string      `json:"expansion"`
		ICM       string      `json:"icm"`
		TE        string      `json:"te"`
		Detail    string      `json:"detail,omitempty"`
	}
	w := wire{Status: g.Status, Detail: g.Detail}
	if g.Graded() {
		w.Expansion = strconv.Itoa(g.Expansion)
		w.ICM = string(g.ICM)
		w.TE = string(g.TE)
	} else {
		w.Expansion, w.ICM, w.TE = string(g.Status), string(g.Status), string(g.Status)
	}
	return json.Marshal(w)
}
