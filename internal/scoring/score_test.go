package scoring

import (
	"testing"
	"time"

	"wisefido-smartwake/internal/models"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

func at(min int, phase models.PhaseKind) models.PhaseSample {
	return models.PhaseSample{Timestamp: base.Add(time.Duration(min) * time.Minute), Phase: phase}
}

func TestCompute_EmptyHistoryIsNeutral(t *testing.T) {
	assert.Equal(t, NeutralScore, Compute(nil))
	assert.Equal(t, NeutralScore, Compute([]models.PhaseSample{}))
}

func TestCompute_SingleSampleIsNeutral(t *testing.T) {
	assert.Equal(t, NeutralScore, Compute([]models.PhaseSample{at(0, models.PhaseAwake)}))
}

func TestCompute_AllUnknownIsNeutral(t *testing.T) {
	history := []models.PhaseSample{
		at(0, models.PhaseUnknown),
		at(30, models.PhaseUnknown),
		at(60, models.PhaseUnknown),
	}
	assert.Equal(t, NeutralScore, Compute(history))
}

func TestCompute_WeightedShare(t *testing.T) {
	// Deep 30min, Light 30min → (1.0*30 + 0.6*30) / 60 = 0.8
	history := []models.PhaseSample{
		at(0, models.PhaseDeep),
		at(30, models.PhaseLight),
		at(60, models.PhaseAwake),
	}
	assert.Equal(t, 80, Compute(history))
}

func TestCompute_AwakeOnlyIsZero(t *testing.T) {
	history := []models.PhaseSample{
		at(0, models.PhaseAwake),
		at(45, models.PhaseAwake),
	}
	assert.Equal(t, 0, Compute(history))
}

func TestCompute_UnknownExcludedFromDenominator(t *testing.T) {
	// Unknown 60min 不计，REM 30min → 100
	history := []models.PhaseSample{
		at(0, models.PhaseUnknown),
		at(60, models.PhaseREM),
		at(90, models.PhaseUnknown),
	}
	assert.Equal(t, 100, Compute(history))
}

func TestComputeUntil_AttributesTail(t *testing.T) {
	history := []models.PhaseSample{at(0, models.PhaseAwake)}
	assert.Equal(t, 0, ComputeUntil(history, base.Add(10*time.Minute)))

	// end 早于末条样本时不计尾部
	assert.Equal(t, NeutralScore, ComputeUntil(history, base.Add(-time.Minute)))
}

func TestCompute_MonotonicInQualityShare(t *testing.T) {
	// 总时长固定 100min，Deep 占比逐步增加，其余为 Awake
	prev := -1
	for deep := 0; deep <= 100; deep += 10 {
		history := []models.PhaseSample{
			at(0, models.PhaseDeep),
			at(deep, models.PhaseAwake),
			at(100, models.PhaseAwake),
		}
		if deep == 0 {
			history = history[1:]
		}
		score := Compute(history)
		assert.GreaterOrEqual(t, score, prev, "deep=%d", deep)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
		prev = score
	}
	assert.Equal(t, 100, prev)
}

func TestCalculator_CustomWeights(t *testing.T) {
	calc := NewCalculator(Weights{Awake: 0, Light: 1, Deep: 1, REM: 1})
	history := []models.PhaseSample{
		at(0, models.PhaseLight),
		at(20, models.PhaseAwake),
		at(40, models.PhaseAwake),
	}
	assert.Equal(t, 50, calc.Compute(history))
}
