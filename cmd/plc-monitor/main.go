// Command plc-monitor polls PLC systems and serves their state to operators.
package main

import "github.com/oshokin/plc-monitor/cmd/plc-monitor/cmd"

func main() {
	cmd.Execute()
}
