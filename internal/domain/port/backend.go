package port

// InferenceBackend supplies the models the pipeline runs against. It is chosen once at
// startup; the pipeline never branches on which variant it got.
type InferenceBackend interface {
	Name() string
	// Available returns entity.ErrServiceUnavailable (wrapped) when the backend cannot
	// produce clinical output at all.
	Available() error
	// SemanticModel returns nil when the gate model is not loaded.
	SemanticModel() SemanticModel
	StageModel() StageModel
	// MorphologyModel returns nil when the grading model is not loaded.
	MorphologyModel() MorphologyModel
}
