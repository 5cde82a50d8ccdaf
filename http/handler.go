package http

import (
	"net/http"
	"strings"
)

// HandleHealthCheck answers while the process serves requests.
func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// HandleReadyCheck answers 503 with the reason returned by check until it
// returns nil.
func HandleReadyCheck(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		HandleHealthCheck(w, r)
	}
}

// HandleVersion writes the build version.
func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(version))
	}
}

// HandleWithCORS allows h to be called from any origin with the given
// methods. Preflight requests are answered without calling h.
func HandleWithCORS(h http.Handler, methods ...string) http.Handler {
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	allowedMethods := strings.Join(methods, ", ") + ", " + http.MethodOptions

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
