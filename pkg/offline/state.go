package offline

// State is a manager's lifecycle state.
type State string

const (
	// StateNew is a manager that has not started installing.
	StateNew State = "new"

	// StateInstalling is populating its namespaces.
	StateInstalling State = "installing"

	// StateWaiting is installed and waiting to activate.
	StateWaiting State = "waiting"

	// StateActivating is cleaning up old namespaces and sweeping.
	StateActivating State = "activating"

	// StateActive controls the application.
	StateActive State = "active"

	// StateRedundant failed to install or was replaced by a newer version.
	StateRedundant State = "redundant"
)

// transitions lists the legal next states.
var transitions = map[State][]State{
	StateNew:        {StateInstalling},
	StateInstalling: {StateWaiting, StateRedundant},
	StateWaiting:    {StateActivating, StateRedundant},
	StateActivating: {StateActive, StateRedundant},
	StateActive:     {StateRedundant},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
