package provision

// State is a step of a single provisioning run.
type State string

const (
	StateValidating         State = "validating"
	StateResolvingUser      State = "resolving_user"
	StateSkipped            State = "skipped"
	StateCreatingFolder     State = "creating_folder"
	StateSettingPermissions State = "setting_permissions"
	StateSucceeded          State = "succeeded"
	StateFailed             State = "failed"
)

var transitions = map[State][]State{
	StateValidating:         {StateResolvingUser, StateFailed},
	StateResolvingUser:      {StateSkipped, StateCreatingFolder, StateFailed},
	StateCreatingFolder:     {StateSettingPermissions, StateFailed},
	StateSettingPermissions: {StateSucceeded, StateFailed},
}

func (s State) Terminal() bool {
	return s == StateSkipped || s == StateSucceeded || s == StateFailed
}

func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
