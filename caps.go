package syncr

// ProtocolID is the stable identifying string exchanged during VER
// negotiation (§6): "SYNCR/<version>".
const ProtocolID = "SYNCR"

// SupportedVersions lists the wire versions this build understands, newest
// first. VER negotiation picks the highest value every participant offers.
var SupportedVersions = []int{3}

// Capabilities describes what one node's Serve process offers, exchanged
// during the CAP phase of the handshake (§4.8).
type Capabilities struct {
	Delete   bool `json:"delete"`
	Symlinks bool `json:"symlinks"`
}

// DefaultCapabilities returns the capability set this implementation always offers.
func DefaultCapabilities() Capabilities {
	return Capabilities{Delete: true, Symlinks: true}
}

// Intersect returns the capabilities both a and b advertise.
func (a Capabilities) Intersect(b Capabilities) Capabilities {
	return Capabilities{
		Delete:   a.Delete && b.Delete,
		Symlinks: a.Symlinks && b.Symlinks,
	}
}
