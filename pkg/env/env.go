package env

import "os"

// Prefix namespaces every variable this service reads directly. Config
// structs get it through envconfig; this helper covers the few lookups that
// happen before config is loaded.
const Prefix = "NOMADAIR_"

// Get returns the value of the prefixed variable, the bare variable, or the
// fallback, in that order.
func Get(key, fallback string) string {
	if val := os.Getenv(Prefix + key); val != "" {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
