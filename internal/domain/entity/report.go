package entity

type ConcordanceStatus string

const (
	ConcordanceAgree          ConcordanceStatus = "AGREE"
	ConcordancePartial        ConcordanceStatus = "PARTIALLY AGREE"
	ConcordanceDisagree       ConcordanceStatus = "DISAGREE"
	ConcordanceIncomplete     ConcordanceStatus = "INCOMPLETE"
	ConcordanceMorphologyOnly ConcordanceStatus = "MORPHOLOGY_ONLY"
)

type QualityBucket string

const (
	QualityHigh          QualityBucket = "High"
	QualityModerate      QualityBucket = "Moderate"
	QualityLow           QualityBucket = "Low"
	QualityTransitional  QualityBucket = "Transitional"
	QualityDeveloping    QualityBucket = "Developing"
	QualityPreCompaction QualityBucket = "Pre-Compaction"
	QualityUnavailable   QualityBucket = "Unavailable"
	QualityNotAssessed   QualityBucket = "N/A"
)

type Concordance struct {
	Status             ConcordanceStatus `json:"status"`
	StageAssessment    string            `json:"kin_stage"`
	StageConfidencePct int               `json:"kin_conf"`
	StageQuality       QualityBucket     `json:"kin_quality"`
	Grade              string            `json:"gard_grade"`
	GradeConfidencePct int               `json:"gard_conf"`
	GradeQuality       QualityBucket     `json:"gard_quality"`
	Day                int               `json:"day"`
	DayContext         string            `json:"day_context"`
	ViabilityScore     int               `json:"viability_score"`
	Commentary         string            `json:"commentary"`
}

type ReportStatus string

const (
	ReportComplete ReportStatus = "COMPLETE"
	ReportError    ReportStatus = "ERROR"
)

// ConcordanceReport is the terminal artifact of one analysis request.
type ConcordanceReport struct {
	ID               string       `json:"id"`
	Status           ReportStatus `json:"status"`
	Mode             AnalysisMode `json:"analysis_type"`
	Stage            string       `json:"stage"`
	StageResult      StageResult  `json:"stage_result"`
	Confidence       float64      `json:"confidence"`
	Commentary       string       `json:"commentary"`
	Action           string       `json:"action"`
	Grade            GardnerGrade `json:"gardner"`
	KPIs             KPISet       `json:"kpis"`
	Milestones       MilestoneSet `json:"milestones"`
	Anomalies        []string     `json:"anomalies"`
	Concordance      Concordance  `json:"concordance"`
	Day              int          `json:"day_of_development"`
	IsVideo          bool         `json:"is_video"`
	HeatmapAvailable bool         `json:"heatmap_available"`
	FramesAnalyzed   int          `json:"frames_analyzed"`
	Backend          string       `json:"backend"`
	Details          string       `json:"details"`
}

// SynthesisInput gathers everything the concordance synthesizer combines into a report.
type SynthesisInput struct {
	ID             string
	Mode           AnalysisMode
	Stage          StageResult
	Grade          GardnerGrade
	KPIs           KPISet
	Milestones     MilestoneSet
	Day            int
	IsVideo        bool
	FramesAnalyzed int
	Backend        string
}
