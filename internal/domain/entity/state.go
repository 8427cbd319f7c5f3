package entity

// RegistryState tracks process-wide model loading.
type RegistryState string

const (
	RegistryUninitialized RegistryState = "UNINITIALIZED"
	RegistryLoading       RegistryState = "MODELS_LOADING"
	RegistryReady         RegistryState = "READY"
)

// AnalysisState tracks one request through the pipeline. AnalysisFailed is absorbing.
type AnalysisState string

const (
	AnalysisGating      AnalysisState = "GATING"
	AnalysisSampling    AnalysisState = "SAMPLING"
	AnalysisClassifying AnalysisState = "CLASSIFYING"
	AnalysisDeriving    AnalysisState = "DERIVING"
	AnalysisDone        AnalysisState = "DONE"
	AnalysisFailed      AnalysisState = "FAILED"
)

var analysisTransitions = map[AnalysisState][]AnalysisState{
	AnalysisGating:      {AnalysisSampling, AnalysisFailed},
	AnalysisSampling:    {AnalysisClassifying, AnalysisFailed},
	AnalysisClassifying: {AnalysisDeriving, AnalysisFailed},
	AnalysisDeriving:    {AnalysisDone, AnalysisFailed},
}

// CanTransition reports whether next may follow s.
func (s AnalysisState) CanTransition(next AnalysisState) bool {
	for _, allowed := range analysisTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AnalysisState) Terminal() bool {
	return s == AnalysisDone || s == AnalysisFailed
}
