package domain

// Response is what the pipeline pushes back to the presentation worker.
// Exactly one of the payload fields is meaningful per response.
type Response struct {
	// MessageID ties streamed deltas to the message they grow.
	MessageID string

	// Text is a complete user-facing line: a finished reply, a notice, or
	// a remediation hint.
	Text string

	// Delta is an incremental fragment of an assistant reply in flight.
	Delta string

	// Done marks the end of a streamed reply.
	Done bool

	Err error
}
