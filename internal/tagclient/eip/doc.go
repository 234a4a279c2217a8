// Package eip is a minimal EtherNet/IP explicit messaging client for Logix
// controllers.
//
// It registers an encapsulation session, sends CIP Read Tag and Write Tag
// requests wrapped in Unconnected Send through the backplane to the
// controller slot, and unregisters on close. Only BOOL tags are supported.
// Every operation honors its context: cancellation forces the socket deadline
// into the past so blocked reads and writes return immediately.
package eip
