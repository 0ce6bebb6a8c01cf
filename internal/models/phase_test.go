package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseKind_IsWakeSuitable(t *testing.T) {
	assert.True(t, PhaseAwake.IsWakeSuitable())
	assert.True(t, PhaseLight.IsWakeSuitable())
	assert.False(t, PhaseDeep.IsWakeSuitable())
	assert.False(t, PhaseREM.IsWakeSuitable())
	assert.False(t, PhaseUnknown.IsWakeSuitable())
}

func TestPhaseFromSleepaceStage(t *testing.T) {
	assert.Equal(t, PhaseAwake, PhaseFromSleepaceStage(0))
	assert.Equal(t, PhaseLight, PhaseFromSleepaceStage(1))
	assert.Equal(t, PhaseDeep, PhaseFromSleepaceStage(2))
	assert.Equal(t, PhaseREM, PhaseFromSleepaceStage(3))
	assert.Equal(t, PhaseUnknown, PhaseFromSleepaceStage(255))
}

func TestPhaseFromSNOMED(t *testing.T) {
	assert.Equal(t, PhaseDeep, PhaseFromSNOMED("248233000"))
	assert.Equal(t, PhaseUnknown, PhaseFromSNOMED("370998004"))
}

func TestParsePhaseKind(t *testing.T) {
	assert.Equal(t, PhaseREM, ParsePhaseKind("REM"))
	assert.Equal(t, PhaseLight, ParsePhaseKind("light"))
	assert.Equal(t, PhaseUnknown, ParsePhaseKind("dozing"))
}

func TestTimeOfDay_JSON(t *testing.T) {
	var payload struct {
		Target TimeOfDay `json:"target"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"target":"07:05"}`), &payload))
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, payload.Target)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":"07:05"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"target":"25:00"}`), &payload))
}

func TestWakeWindow_Contains(t *testing.T) {
	deadline := time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC)
	w := WakeWindow{EarliestFire: deadline.Add(-30 * time.Minute), HardDeadline: deadline}

	assert.False(t, w.Contains(deadline.Add(-31*time.Minute)))
	assert.True(t, w.Contains(deadline.Add(-30*time.Minute)))
	assert.True(t, w.Contains(deadline.Add(-time.Second)))
	assert.False(t, w.Contains(deadline))
}
