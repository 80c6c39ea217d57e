package middleware

import "net/http"

// StorageModeHeader tells clients whether the data they see is durable.
const StorageModeHeader = "X-Storage-Mode"

// StorageMode stamps every response with the store's mode.
func StorageMode(mode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(StorageModeHeader, mode)
			next.ServeHTTP(w, r)
		})
	}
}
