package transport

import (
	"net/http"
	"strconv"
)

// NetworkHeader names the network a client believes it is talking to.
const NetworkHeader = "X-Network-Id"

// NetworkMiddleware rejects requests whose NetworkHeader disagrees with the
// served network. Requests without the header pass.
func NetworkMiddleware(networkID uint64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get(NetworkHeader); raw != "" {
				id, err := strconv.ParseUint(raw, 10, 64)
				if err != nil || id != networkID {
					WriteError(w, nil, ErrNetworkCode, "network id mismatch", map[string]uint64{"network_id": networkID})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
