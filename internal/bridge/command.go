package bridge

// Command is an operator command carried into the poll loop.
type Command interface {
	command()
}

// ResetOne requests an alarm reset of a single system.
type ResetOne struct {
	// System is the system name.
	System string
}

// ResetAll requests an alarm reset of every system known when the command is sent.
// Names absent from the topology the poller holds when applying it are skipped.
type ResetAll struct {
	// Systems are the names known to the sender.
	Systems []string
}

// ReloadTopology replaces the system map with the one imported from Source.
type ReloadTopology struct {
	// Source identifies the host list, typically a file path.
	Source string
}

func (ResetOne) command()       {}
func (ResetAll) command()       {}
func (ReloadTopology) command() {}
