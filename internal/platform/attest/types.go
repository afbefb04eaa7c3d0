package attest

// Record is one attestation published to the registry: a relay's signed
// statement that it received ResponseData from the named server while fetching
// SourceURL over TLS.
type Record struct {
	ID uint64 `json:"id"`
	// ServerName is the TLS identity the relay verified, e.g.
	// "site.api.espn.com". Trust in the data hangs on this field: the payload
	// is only as good as the host it came from.
	ServerName string `json:"server_name"`
	SourceURL  string `json:"source_url"`
	// ResponseData is the attested response body, opaque to the registry.
	ResponseData string `json:"response_data"`
	// Signature is the relay's 65-byte secp256k1 signature over the record
	// digest, hex-encoded.
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// CompactEvent is the scoreboard summary a relay embeds as ResponseData:
// single-letter keys keep the attested payload small.
type CompactEvent struct {
	HomeTeam  string `json:"ht"`
	AwayTeam  string `json:"at"`
	HomeScore int32  `json:"hs"`
	AwayScore int32  `json:"as"`
	Status    string `json:"st"`
	EventID   string `json:"eid"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
