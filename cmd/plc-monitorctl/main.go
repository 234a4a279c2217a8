// Command plc-monitorctl sends operator commands to a running plc-monitor.
package main

import "github.com/oshokin/plc-monitor/cmd/plc-monitorctl/cmd"

func main() {
	cmd.Execute()
}
