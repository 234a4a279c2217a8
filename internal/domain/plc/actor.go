package plc

// Actor identifies the operator behind a command.
type Actor struct {
	// Hostname is the machine the command came from.
	Hostname string
	// Username is the account that issued the command.
	Username string
}

// String renders the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return "unknown"
	}

	return a.Username + "@" + a.Hostname
}

// Clone returns a copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	clone := *a

	return &clone
}
