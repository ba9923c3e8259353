// Package api defines the shared contracts of the coopio runtime:
// structured errors, the reactor interface, the non-blocking endpoint
// interface, and the debug surface.
//
// Implementations live in the sibling packages; api itself carries no
// state beyond sentinel error values.
package api
