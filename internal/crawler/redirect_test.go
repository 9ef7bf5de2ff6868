package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"testing"
)

// TestRedirectGuard tests redirect target vetting.
func TestRedirectGuard(t *testing.T) {
	t.Parallel()

	root, _ := url.Parse("https://acme.fr/") //nolint:errcheck
	scope := NewScope(root, nil, nil)
	frontier := NewFrontier(scope, 3, 10)
	frontier.Seed(root)
	frontier.Admit("https://acme.fr/about", 1, "https://acme.fr/")

	g := newRedirectGuard("https://acme.fr/old", scope, frontier)

	tests := []struct {
		name   string
		target string
		want   error
	}{
		{name: "www host of the same site", target: "https://www.acme.fr/team", want: nil},
		{name: "same target twice", target: "https://www.acme.fr/team#top", want: nil},
		{name: "admitted page", target: "https://acme.fr/about", want: ErrRedirectVisited},
		{name: "the entry itself", target: "https://acme.fr/old", want: nil},
		{name: "other site", target: "https://jobs.example.org/acme", want: ErrRedirectOutOfScope},
		{name: "other scheme", target: "ftp://acme.fr/files", want: ErrRedirectOutOfScope},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.target)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := g.check(u); !errors.Is(got, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	if frontier.Claim("https://www.acme.fr/team") {
		t.Error("expected the claimed target to be visited")
	}
}

// TestRedirectRejection tests recognition of rejected redirects.
func TestRedirectRejection(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetch https://acme.fr/careers: %w", &url.Error{
		Op:  "Get",
		URL: "https://jobs.example.org/",
		Err: ErrRedirectOutOfScope,
	})
	target, reason := redirectRejection(err)
	if reason != ErrRedirectOutOfScope || target != "https://jobs.example.org/" {
		t.Errorf("unexpected rejection %q %v", target, reason)
	}

	if _, reason := redirectRejection(errors.New("connection refused")); reason != nil {
		t.Errorf("expected no rejection, got %v", reason)
	}
}
