package crawler

import (
	"context"
	"errors"
	"net/url"
)

var (
	// ErrRedirectOutOfScope is returned when a redirect leaves the site.
	ErrRedirectOutOfScope = errors.New("redirected out of scope")
	// ErrRedirectVisited is returned when a redirect leads to a page that
	// was already visited or admitted.
	ErrRedirectVisited = errors.New("redirected to an already visited page")
)

// redirectGuard vets the redirect targets of one frontier entry. Each
// target must stay on the site and is claimed in the visited set, so two
// entries never end up fetching the same page.
type redirectGuard struct {
	origin   string
	scope    *Scope
	frontier *Frontier
	claimed  map[string]struct{}
}

func newRedirectGuard(origin string, scope *Scope, frontier *Frontier) *redirectGuard {
	return &redirectGuard{
		origin:   origin,
		scope:    scope,
		frontier: frontier,
		claimed:  make(map[string]struct{}),
	}
}

// check accepts u when it is the entry itself, a target this guard
// already claimed, or an in-domain URL nobody visited yet. Retries of the
// same entry follow the same chain, hence the claimed set.
func (g *redirectGuard) check(u *url.URL) error {
	if !g.scope.InDomain(u) {
		return ErrRedirectOutOfScope
	}
	normalized := NormalizeURL(u)
	if normalized == g.origin {
		return nil
	}
	if _, ok := g.claimed[normalized]; ok {
		return nil
	}
	if !g.frontier.Claim(normalized) {
		return ErrRedirectVisited
	}
	g.claimed[normalized] = struct{}{}
	return nil
}

type redirectGuardKey struct{}

// withRedirectGuard attaches g to ctx. The crawl client consults it for
// every redirect hop.
func withRedirectGuard(ctx context.Context, g *redirectGuard) context.Context {
	return context.WithValue(ctx, redirectGuardKey{}, g)
}

func redirectGuardFrom(ctx context.Context) *redirectGuard {
	g, _ := ctx.Value(redirectGuardKey{}).(*redirectGuard)
	return g
}

// redirectRejection returns the refused target, as written in the
// Location header, and the reason when err comes from a rejected
// redirect. The reason is nil otherwise.
func redirectRejection(err error) (string, error) {
	var reason error
	switch {
	case errors.Is(err, ErrRedirectOutOfScope):
		reason = ErrRedirectOutOfScope
	case errors.Is(err, ErrRedirectVisited):
		reason = ErrRedirectVisited
	default:
		return "", nil
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.URL, reason
	}
	return "", reason
}
