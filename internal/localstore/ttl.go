package localstore

import "time"

// TTL constants for slots that expire.
// The portfolio cache and the token never expire, they are cleared explicitly.
const (
	TTLMarkets = time.Minute // Top-coins listing, the provider refreshes it about every 60s
)
