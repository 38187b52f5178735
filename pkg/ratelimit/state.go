package ratelimit

import (
	"net/url"
	"strings"
	"time"
)

// RedisKeyPrefix namespaces pacing leases in Redis.
const RedisKeyPrefix = "duoload:pacing"

// minLeaseWait bounds the retry interval when a lease has no reported TTL.
const minLeaseWait = 10 * time.Millisecond

// LeaseKey returns the Redis key shared by every duoload process talking to
// the same remote host.
//
// Example:
//
//	LeaseKey("https://api.duocards.com/graphql") == "duoload:pacing:api.duocards.com"
func LeaseKey(endpoint string) string {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		host = "default"
	}
	return RedisKeyPrefix + ":" + host
}

// LeaseState describes the outcome of one attempt to acquire the lease.
type LeaseState struct {
	// Acquired is true when this process may send its request now.
	Acquired bool

	// RetryIn is how long the current holder's lease still runs.
	RetryIn time.Duration
}

// NextWait returns how long to sleep before trying again.
func (s LeaseState) NextWait() time.Duration {
	if s.Acquired {
		return 0
	}
	if s.RetryIn < minLeaseWait {
		return minLeaseWait
	}
	return s.RetryIn
}
