package metadata

// Metadata represents the headers carried alongside an envelope on the wire.
// The envelope itself stays in the payload; metadata is for transport-level
// concerns such as correlation and origin.
type Metadata map[string]string

// Reserved metadata keys.
const (
	// KeyCorrelationID ties a host reply to the webview request that caused it.
	KeyCorrelationID = "correlation_id"

	// KeyOrigin identifies the surface that produced a message.
	KeyOrigin = "origin"

	// KeyMessageType mirrors the envelope type for brokers that route or log
	// by header.
	KeyMessageType = "message_type"
)

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// CorrelationID returns the correlation id, or "" when absent.
func (m Metadata) CorrelationID() string {
	return m[KeyCorrelationID]
}

// Origin returns the origin, or "" when absent.
func (m Metadata) Origin() string {
	return m[KeyOrigin]
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
