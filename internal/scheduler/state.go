package scheduler

// State 调度器状态
type State string

const (
	StateIdle       State = "Idle"
	StateArmed      State = "Armed"
	StateMonitoring State = "Monitoring"
	StateFiring     State = "Firing"
	StateFired      State = "Fired"
	StateCancelled  State = "Cancelled"
)

// IsTerminal Fired 和 Cancelled 为终态，需 Reset 后才能再次 Arm
func (s State) IsTerminal() bool {
	return s == StateFired || s == StateCancelled
}
