package types

// Event is a structured record of a state change produced by one of the
// native engines. Attributes are flat strings so the payload can be handed
// to any transport (RPC stream, webhook queue, audit log) without a schema
// negotiation step.
type Event struct {
	Type       string
	Attributes map[string]string
}
