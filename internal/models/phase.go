package models

import (
	"strings"
	"time"
)

// PhaseKind 睡眠阶段分类
type PhaseKind string

const (
	PhaseUnknown PhaseKind = "Unknown"
	PhaseAwake   PhaseKind = "Awake"
	PhaseLight   PhaseKind = "Light"
	PhaseDeep    PhaseKind = "Deep"
	PhaseREM     PhaseKind = "REM"
)

// SNOMED CT 睡眠阶段编码（与 data-transformer 保持一致）
const (
	SNOMEDAwake = "248220002"
	SNOMEDLight = "248232005"
	SNOMEDDeep  = "248233000"
	SNOMEDREM   = "248234006"
)

// IsWakeSuitable Awake 和 Light 允许提前唤醒
func (p PhaseKind) IsWakeSuitable() bool {
	return p == PhaseAwake || p == PhaseLight
}

// Valid 是否属于已知集合
func (p PhaseKind) Valid() bool {
	switch p {
	case PhaseUnknown, PhaseAwake, PhaseLight, PhaseDeep, PhaseREM:
		return true
	}
	return false
}

// ParsePhaseKind 解析阶段名称（忽略大小写），未知值返回 PhaseUnknown
func ParsePhaseKind(s string) PhaseKind {
	for _, p := range []PhaseKind{PhaseAwake, PhaseLight, PhaseDeep, PhaseREM} {
		if strings.EqualFold(s, string(p)) {
			return p
		}
	}
	return PhaseUnknown
}

// PhaseFromSleepaceStage Sleepace sleepStage: 0=清醒, 1=浅睡眠, 2=深睡眠, 3=REM睡眠
func PhaseFromSleepaceStage(stage int) PhaseKind {
	switch stage {
	case 0:
		return PhaseAwake
	case 1:
		return PhaseLight
	case 2:
		return PhaseDeep
	case 3:
		return PhaseREM
	default:
		return PhaseUnknown
	}
}

// PhaseFromSNOMED SNOMED 编码 → PhaseKind
func PhaseFromSNOMED(code string) PhaseKind {
	switch code {
	case SNOMEDAwake:
		return PhaseAwake
	case SNOMEDLight:
		return PhaseLight
	case SNOMEDDeep:
		return PhaseDeep
	case SNOMEDREM:
		return PhaseREM
	default:
		return PhaseUnknown
	}
}

// PhaseSample 一条已分类的睡眠阶段样本
type PhaseSample struct {
	Timestamp time.Time `json:"timestamp"`
	Phase     PhaseKind `json:"phase"`
}
