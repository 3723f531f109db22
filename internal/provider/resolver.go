package provider

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.mau.fi/whatsmeow/types"

	"your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/phone"
)

// Registrar checks whether a JID has a WhatsApp account.
type Registrar interface {
	IsRegisteredUser(ctx context.Context, jid types.JID) (bool, error)
}

// Resolver maps user supplied numbers to the JID they are registered
// under, trying the Brazilian with/without 9 variants.  Hits are cached.
type Resolver struct {
	reg   Registrar
	cache *cache.Cache
}

// NewResolver returns a Resolver whose hits live for ttl.
func NewResolver(reg Registrar, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Resolver{reg: reg, cache: cache.New(ttl, ttl/2)}
}

// Resolve returns the registered JID for number.  When no candidate is
// registered, or the lookup fails, the default phone.ChatJID form is
// returned.
func (r *Resolver) Resolve(ctx context.Context, number string) types.JID {
	key := phone.DigitsOnly(number)
	if v, ok := r.cache.Get(key); ok {
		return v.(types.JID)
	}
	candidates := phone.Candidates(number)
	for _, cand := range candidates {
		ok, err := r.reg.IsRegisteredUser(ctx, cand)
		if err != nil {
			log.WithChat(cand.String()).Debug("resolve lookup failed: %v", err)
			return candidates[0]
		}
		if ok {
			r.cache.SetDefault(key, cand)
			return cand
		}
	}
	return candidates[0]
}
