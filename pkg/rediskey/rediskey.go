package rediskey

import "fmt"

const (
	TrackingPrefix     = "tracking"
	TrackingLockPrefix = "tracking:lock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildTrackingRunLockKey returns "tracking:lock:{scope}"
func BuildTrackingRunLockKey(scope string) string {
	return NamespaceKey(TrackingLockPrefix, scope)
}
