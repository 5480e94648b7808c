package redis

import "strings"

const keyNamespace = "tc"

// keyspace builds every key the platform writes, always under one namespace
// so a shared Redis can be inspected with a single prefix scan.
type keyspace struct {
	namespace string
}

func (k keyspace) key(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = keyNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey is used by both the HTTP middleware and event consumers.
func (k keyspace) IdempotencyKey(scope, id string) string {
	return k.key("idempotency", scope, id)
}

func (k keyspace) RateLimitKey(scope string) string { return k.key("rate_limit", scope) }

func (k keyspace) CounterKey(name string) string { return k.key("counter", name) }

// AccessSessionKey holds the refresh token bound to one access token jti.
func (k keyspace) AccessSessionKey(accessID string) string {
	return k.key("session", "access", accessID)
}

// UserSessionsKey indexes the access ids issued to a user.
func (k keyspace) UserSessionsKey(userID string) string {
	return k.key("session", "user", userID)
}

func (k keyspace) CacheKey(scope, id string) string { return k.key("cache", scope, id) }

func (k keyspace) LockKey(name string) string { return k.key("lock", name) }
