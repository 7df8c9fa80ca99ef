// Package auth resolves caller identity from inbound request headers and
// decides whether a skill invocation is allowed (spec.md §4.1).
package auth

import (
	"net/http"
	"strings"
)

// Mode selects how identity is derived from a request.
type Mode string

const (
	ModePublic           Mode = "public"
	ModeWorkloadIdentity Mode = "workload_identity"
	ModeServiceAccount   Mode = "service_account"
)

// Identity describes the caller of an inbound request.
type Identity struct {
	Authenticated bool
	Subject       string
}

// Decision is the outcome of an Authorize call. Forbidden distinguishes
// "no credentials" (401, AuthRequired) from "credentials rejected" (403,
// AuthForbidden) so the dispatcher can map each to the right status code.
type Decision struct {
	Allow     bool
	Forbidden bool
	Reason    string
}

// Resolver derives an Identity from request headers according to the
// configured trust Mode, and decides skill access.
type Resolver struct {
	mode      Mode
	allowList map[string]struct{} // nil means "no allow-list configured"
}

// New builds a Resolver. An empty allowList means any authenticated
// subject is accepted for skills that require authentication.
func New(mode Mode, allowList []string) *Resolver {
	r := &Resolver{mode: mode}
	if len(allowList) > 0 {
		r.allowList = make(map[string]struct{}, len(allowList))
		for _, s := range allowList {
			r.allowList[s] = struct{}{}
		}
	}
	return r
}

// Identify resolves an Identity from the request per the configured Mode.
// ModePublic never produces an authenticated identity. The other two modes
// look for a bearer credential in the Authorization header; the subject is
// whatever follows "Bearer " verbatim — validating and decoding the actual
// platform-issued token is the responsibility of the authentication proxy
// spec.md §1 places outside this core (it is out of scope here; this
// resolver trusts the header it's handed).
func (r *Resolver) Identify(req *http.Request) Identity {
	if r.mode == ModePublic {
		return Identity{}
	}

	subject := bearerSubject(req.Header.Get("Authorization"))
	if subject == "" {
		return Identity{}
	}
	return Identity{Authenticated: true, Subject: subject}
}

func bearerSubject(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// Authorize decides whether identity may invoke a skill that declares
// requiresAuth. A skill that does not require authentication is always
// allowed (spec.md §4.1). An authenticated caller is further checked
// against the allow-list, compared by exact subject string — spec.md's
// Open Question on canonicalization is resolved in favor of the simplest
// behavior, documented in DESIGN.md.
func (r *Resolver) Authorize(identity Identity, requiresAuth bool) Decision {
	if !requiresAuth {
		return Decision{Allow: true}
	}
	if !identity.Authenticated {
		return Decision{Allow: false, Reason: "authentication required"}
	}
	if r.allowList == nil {
		return Decision{Allow: true}
	}
	if _, ok := r.allowList[identity.Subject]; !ok {
		return Decision{Allow: false, Forbidden: true, Reason: "subject not in allow-list"}
	}
	return Decision{Allow: true}
}
