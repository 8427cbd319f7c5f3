package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.AllowSimulation)
	assert.Equal(t, 50, cfg.SamplerMinFrames)
	assert.Equal(t, 10, cfg.SamplerDefaultFrames)
	assert.Equal(t, 224, cfg.FrameSize)
	assert.Equal(t, "embryo.analysis", cfg.RabbitMQAnalysisQueue)
	assert.Equal(t, 1.0, cfg.TraceSampleRatio)
	assert.False(t, cfg.StructuralFallbackEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ALLOW_SIMULATION", "true")
	t.Setenv("SAMPLER_MIN_FRAMES", "20")
	t.Setenv("STAGE_MODEL_PATH", "/opt/stage.onnx")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AllowSimulation)
	assert.True(t, cfg.StructuralFallbackEnabled())
	assert.Equal(t, 20, cfg.SamplerMinFrames)
	assert.Equal(t, "/opt/stage.onnx", cfg.StageModelPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("INFERENCE_CONCURRENCY", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("FRAME_SIZE", "big")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsSampleRatioOutOfRange(t *testing.T) {
	t.Setenv("TRACE_SAMPLE_RATIO", "1.5")
	_, err := Load()
	assert.ErrorContains(t, err, "TRACE_SAMPLE_RATIO")
}
