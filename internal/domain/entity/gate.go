package entity

type GateMethod string

const (
	GateMethodSemantic    GateMethod = "semantic"
	GateMethodStructural  GateMethod = "structural"
	GateMethodUnavailable GateMethod = "unavailable"
)

type GateDecision struct {
	Accepted   bool       `json:"accepted"`
	Reason     string     `json:"reason"`
	Confidence float64    `json:"confidence"`
	Method     GateMethod `json:"method"`
}
