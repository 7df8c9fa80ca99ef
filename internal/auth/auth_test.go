package auth

import (
	"net/http"
	"testing"
)

func TestIdentifyPublicModeNeverAuthenticates(t *testing.T) {
	r := New(ModePublic, nil)
	req, _ := http.NewRequest(http.MethodPost, "/a2a/execute", nil)
	req.Header.Set("Authorization", "Bearer someone")

	identity := r.Identify(req)
	if identity.Authenticated {
		t.Errorf("public mode should never authenticate, got %+v", identity)
	}
}

func TestIdentifyServiceAccountMode(t *testing.T) {
	r := New(ModeServiceAccount, nil)

	cases := []struct {
		name   string
		header string
		want   Identity
	}{
		{"no header", "", Identity{}},
		{"malformed header", "Basic abc", Identity{}},
		{"bearer token", "Bearer svc-a", Identity{Authenticated: true, Subject: "svc-a"}},
		{"bearer with surrounding space", "Bearer  svc-b  ", Identity{Authenticated: true, Subject: "svc-b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, "/a2a/execute", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			got := r.Identify(req)
			if got != c.want {
				t.Errorf("Identify() = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestAuthorizePublicSkillAlwaysAllowed(t *testing.T) {
	r := New(ModeServiceAccount, []string{"svc-a"})
	decision := r.Authorize(Identity{}, false)
	if !decision.Allow {
		t.Errorf("a skill that does not require auth must always be allowed")
	}
}

func TestAuthorizeRequiresAuthenticationWhenMissing(t *testing.T) {
	r := New(ModeServiceAccount, nil)
	decision := r.Authorize(Identity{}, true)
	if decision.Allow {
		t.Errorf("expected Allow=false for an unauthenticated caller")
	}
	if decision.Forbidden {
		t.Errorf("missing credentials should map to AuthRequired (401), not Forbidden (403)")
	}
}

func TestAuthorizeAllowListRejectsUnknownSubject(t *testing.T) {
	r := New(ModeServiceAccount, []string{"svc-a", "svc-b"})

	decision := r.Authorize(Identity{Authenticated: true, Subject: "svc-a"}, true)
	if !decision.Allow {
		t.Errorf("svc-a is in the allow-list, expected Allow=true")
	}

	decision = r.Authorize(Identity{Authenticated: true, Subject: "svc-z"}, true)
	if decision.Allow {
		t.Errorf("svc-z is not in the allow-list, expected Allow=false")
	}
	if !decision.Forbidden {
		t.Errorf("a rejected known-bad subject should map to Forbidden (403)")
	}
}

func TestAuthorizeNoAllowListAcceptsAnyAuthenticatedSubject(t *testing.T) {
	r := New(ModeServiceAccount, nil)
	decision := r.Authorize(Identity{Authenticated: true, Subject: "anyone"}, true)
	if !decision.Allow {
		t.Errorf("an empty allow-list should accept any authenticated subject")
	}
}
