// Package protocol defines the wire-level conversation shapes shared by the
// fallback provider chain and the workers that drive it: messages, roles,
// and tool-call/tool-definition structs. It has no dependency on any other
// swarmcore package.
package protocol
