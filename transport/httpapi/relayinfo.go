// Package httpapi is the HTTP entrypoint for the relay (spec.md §6): it
// branches the root path between the websocket upgrade and the NIP-11
// information document, serves an admin/stats surface with huma, and wraps
// everything in CORS. Grounded on the teacher's pkg/app/relay (Server.
// ServeHTTP/Start/Shutdown) and pkg/app/relay/handleRelayinfo.go.
package httpapi

// Limits mirrors the numeric caps spec.md §3-§4 enforce, reported in the
// NIP-11 document's "limitation" object.
type Limits struct {
	MaxMessageLength int  `json:"max_message_length"`
	MaxSubscriptions int  `json:"max_subscriptions"`
	MaxFilters       int  `json:"max_filters"`
	MaxLimit         int  `json:"max_limit"`
	MaxContentLength int  `json:"max_content_length"`
	AuthRequired     bool `json:"auth_required"`
	PaymentRequired  bool `json:"payment_required"`
}

// RelayInfo is the NIP-11 relay information document.
type RelayInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Pubkey        string   `json:"pubkey,omitempty"`
	Contact       string   `json:"contact,omitempty"`
	SupportedNIPs []int    `json:"supported_nips"`
	Software      string   `json:"software"`
	Version       string   `json:"version"`
	Limitation    Limits   `json:"limitation"`
	Icon          string   `json:"icon,omitempty"`
}

// DefaultLimits are the caps named in spec.md §6.
var DefaultLimits = Limits{
	MaxMessageLength: 65536,
	MaxSubscriptions: 20,
	MaxFilters:       10,
	MaxLimit:         5000,
	MaxContentLength: 65536,
	AuthRequired:     false,
	PaymentRequired:  false,
}

// SupportedNIPs lists the NIPs this relay implements per spec.md's §4
// handlers (EVENT/REQ/CLOSE/AUTH/COUNT) and §4.1's deletion handling.
var SupportedNIPs = []int{1, 9, 11, 42, 45}
