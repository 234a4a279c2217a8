// Package config defines the settings of the PLC monitor and provides
// helpers to load, validate and save them in YAML format.
//
// Config carries the topology source, poll cadence, probe and PLC protocol
// policies and the listen addresses of the consumer surfaces.
package config
