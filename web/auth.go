// ABOUTME: Bearer token authentication for the sync admin API
// ABOUTME: Maps admin tokens and per-user tokens onto sync actors
package web

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/harperreed/crmsync/models"
)

// Tokens configures who may call the API. User tokens map to the caller's
// legacy staff id.
type Tokens struct {
	Admin []string
	Users map[string]string
}

// authenticate returns the actor behind the request's bearer token.
func (t Tokens) authenticate(r *http.Request) (models.Actor, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return models.Actor{}, false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return models.Actor{}, false
	}

	for i, admin := range t.Admin {
		if tokenEqual(token, admin) {
			return models.Actor{ID: "admin-" + strconv.Itoa(i), Admin: true}, true
		}
	}
	for candidate, staffID := range t.Users {
		if tokenEqual(token, candidate) {
			return models.Actor{ID: "staff-" + staffID, LegacyStaffID: staffID}, true
		}
	}
	return models.Actor{}, false
}

func tokenEqual(a, b string) bool {
	return b != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
