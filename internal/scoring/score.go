// Package scoring 将一次监测会话的睡眠阶段历史归约为 0-100 的睡眠质量分
package scoring

import (
	"math"
	"time"

	"wisefido-smartwake/internal/models"
)

// NeutralScore 无可评估时长时的中性分（尚未产生扣分）
const NeutralScore = 100

// Weights 各阶段的质量权重，取值 [0,1]
// Unknown 不参与计算
type Weights struct {
	Awake float64
	Light float64
	Deep  float64
	REM   float64
}

// DefaultWeights 默认权重：Deep/REM 最高，Light 中等，Awake 扣分
var DefaultWeights = Weights{
	Awake: 0.0,
	Light: 0.6,
	Deep:  1.0,
	REM:   1.0,
}

// Calculator 睡眠评分计算器（无状态）
type Calculator struct {
	weights Weights
}

// NewCalculator 创建评分计算器
func NewCalculator(w Weights) *Calculator {
	return &Calculator{weights: w}
}

// Compute 使用默认权重计算评分，末条样本不计时长
func Compute(history []models.PhaseSample) int {
	return NewCalculator(DefaultWeights).Compute(history)
}

// ComputeUntil 使用默认权重计算评分，末条样本时长计到 end
func ComputeUntil(history []models.PhaseSample, end time.Time) int {
	return NewCalculator(DefaultWeights).ComputeUntil(history, end)
}

// Compute 相邻样本时间差计入前一样本的阶段
func (c *Calculator) Compute(history []models.PhaseSample) int {
	return c.score(Durations(history, time.Time{}))
}

// ComputeUntil 同 Compute，末条样本持续到 end（end 早于末条时间戳时不计）
func (c *Calculator) ComputeUntil(history []models.PhaseSample, end time.Time) int {
	return c.score(Durations(history, end))
}

// Durations 统计各阶段累计时长；end 为零值时末条样本不计时长
func Durations(history []models.PhaseSample, end time.Time) map[models.PhaseKind]time.Duration {
	totals := make(map[models.PhaseKind]time.Duration)
	for i, sample := range history {
		var next time.Time
		if i+1 < len(history) {
			next = history[i+1].Timestamp
		} else if !end.IsZero() {
			next = end
		} else {
			continue
		}
		if d := next.Sub(sample.Timestamp); d > 0 {
			totals[sample.Phase] += d
		}
	}
	return totals
}

func (c *Calculator) weight(p models.PhaseKind) (float64, bool) {
	switch p {
	case models.PhaseAwake:
		return c.weights.Awake, true
	case models.PhaseLight:
		return c.weights.Light, true
	case models.PhaseDeep:
		return c.weights.Deep, true
	case models.PhaseREM:
		return c.weights.REM, true
	}
	return 0, false
}

func (c *Calculator) score(totals map[models.PhaseKind]time.Duration) int {
	var weighted, denominator float64
	for phase, d := range totals {
		w, ok := c.weight(phase)
		if !ok {
			continue
		}
		secs := d.Seconds()
		weighted += w * secs
		denominator += secs
	}
	// 空历史、单样本、全 Unknown 都落在这里
	if denominator <= 0 {
		return NeutralScore
	}

	score := int(math.Round(100 * weighted / denominator))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
