package cache

import "fmt"

func StatsKey(owner string) string {
	return fmt.Sprintf("errorcue:stats:%s", owner)
}

func FilterOptionsKey(owner string) string {
	return fmt.Sprintf("errorcue:filter-options:%s", owner)
}

// RateLimitKey scopes an ingestion counter to a client and a one-minute window.
func RateLimitKey(client string, window int64) string {
	return fmt.Sprintf("errorcue:ratelimit:%s:%d", client, window)
}
