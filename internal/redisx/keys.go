package redisx

import "time"

const (
	// Cache balance per customer: points:balance:{customer_id} -> JSON BalanceView
	KeyBalance = "points:balance:%s"

	// Cache settings singleton (satu key saja)
	KeySettings = "points:settings"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cache availability bundle: bundle:avail:{bundle_id}
	KeyBundleAvail = "bundle:avail:%s"
)

var (
	TTLBalanceCache = 2 * time.Minute
	TTLSettings     = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
	TTLBundleAvail  = 30 * time.Second
)
