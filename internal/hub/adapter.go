package hub

// Adapter is the transport-agnostic capability set the registry drives.
//
// Send is best-effort and ignored once the adapter is closed. Close is
// idempotent, and the callback registered with SetOnClose fires exactly once
// whether the peer or the server closed the transport.
type Adapter interface {
	Send(payload []byte)
	Close()
	IsOpen() bool
	SetOnClose(fn func())
}

// FlowControl is implemented by adapters whose transport can temporarily
// refuse writes. The registry stops flushing while Writable reports false and
// resumes when the adapter invokes the SetOnWritable callback.
type FlowControl interface {
	Writable() bool
	SetOnWritable(fn func())
}

// OfflineDeliverer receives payloads addressed to users with no live connection.
type OfflineDeliverer interface {
	DeliverOffline(userID string, payload []byte)
}

// OfflineFunc adapts a plain function to OfflineDeliverer.
type OfflineFunc func(userID string, payload []byte)

func (f OfflineFunc) DeliverOffline(userID string, payload []byte) { f(userID, payload) }
