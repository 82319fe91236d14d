package interfaces

import "mt-gateway/src/models"

// -----------------------------------------------------------------------------
// IStreamTransport delivers stream events to one client connection.
// -----------------------------------------------------------------------------

type IStreamTransport interface {
	// -----------------------------------------------------------------------------
	// EmitBar pushes a bar; it must not block. Returns false if the connection
	// is gone or its buffer is full.
	EmitBar(connectionID string, bar models.MBar) bool

	// -----------------------------------------------------------------------------
	// EmitStatus sends a status message.
	EmitStatus(connectionID string, message string)

	// -----------------------------------------------------------------------------
	// EmitError sends an error message.
	EmitError(connectionID string, message string)
}
