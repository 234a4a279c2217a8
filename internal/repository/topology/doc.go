// Package topology imports the monitored system map from a plain-text host list.
//
// Each line holds "hostLabel,ipAddress". Labels containing "eth" (any case)
// are ethernet interfaces, everything else is a node; the system name is the
// label prefix before the first underscore. Malformed lines are skipped.
package topology
