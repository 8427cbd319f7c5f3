package entity

import (
	"encoding/json"
	"fmt"
)

// Unavailable is the display value of a metric that was not derived.
const Unavailable = "--"

// KPISet holds secondary morphology metrics derived from the Gardner grade buckets.
type KPISet struct {
	Available         bool
	CellCount         int
	CavitySymmetryPct int
	FragmentationPct  int
	// FragmentationBelow marks an upper bound ("<4%") rather than an estimate.
	FragmentationBelow bool
	Reason             string
}

func UnavailableKPIs(reason string) KPISet { return KPISet{Reason: reason} }

func (k KPISet) MarshalJSON() ([]byte, error) {
	type wire struct {
		CellCount      string `json:"cell_count"`
		CavitySymmetry string `json:"cavity_symmetry"`
		Fragmentation  string `json:"fragmentation"`
		Reason         string `json:"reason,omitempty"`
	}
	if !k.Available {
		return json.Marshal(wire{Unavailable, Unavailable, Unavailable, k.Reason})
	}
	frag := fmt.Sprintf("%d%%", k.FragmentationPct)
	if k.FragmentationBelow {
		frag = "<" + frag
	}
	return json.Marshal(wire{
		CellCount:      fmt.Sprintf("%d", k.CellCount),
		CavitySymmetry: fmt.Sprintf("%d%%", k.CavitySymmetryPct),
		Fragmentation:  frag,
	})
}

// Milestone codes in report order. s3 is derived from t3 and t2.
const (
	MilestoneT2  = "t2"
	MilestoneT3  = "t3"
	MilestoneT5  = "t5"
	MilestoneT8  = "t8"
	MilestoneTM  = "tM"
	MilestoneTB  = "tB"
	MilestoneTEB = "tEB"
	MilestoneS3  = "s3"
)

type Milestone struct {
	Code    string
	Reached bool
	// Hours post insemination, or the s3 duration for MilestoneS3.
	Hours float64
}

func (m Milestone) Display() string {
	if !m.Reached {
		return Unavailable
	}
	return fmt.Sprintf("%.1fh", m.Hours)
}

type MilestoneSet struct {
	Available  bool
	Reason     string
	Milestones []Milestone
}

func UnavailableMilestones(reason string) MilestoneSet {
	return MilestoneSet{Reason: reason}
}

func (s MilestoneSet) Get(code string) (Milestone, bool) {
	for _, m := range s.Milestones {
		if m.Code == code {
			return m, true
		}
	}
	return Milestone{}, false
}

// Reached lists the codes of every reached milestone.
func (s MilestoneSet) Reached() []string {
	var codes []string
	for _, m := range s.Milestones {
		if m.Reached {
			codes = append(codes, m.Code)
		}
	}
	return codes
}

func (s MilestoneSet) MarshalJSON() ([]byte, error) {
	if !s.Available {
		return json.Marshal(map[string]any{"unavailable": true, "reason": s.Reason})
	}
	out := make(map[string]string, len(s.Milestones))
	for _, m := range s.Milestones {
		out[m.Code] = m.Display()
	}
	return json.Marshal(out)
}
