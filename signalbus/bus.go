// Package signalbus carries the remote sign-out flag between every open
// surface of the product. It models the cross-tab storage broadcast as a
// message-passing channel so the backing primitive can be swapped without
// touching call sites.
package signalbus

import (
	"context"

	"go.pilab.hu/trustgate/domain"
)

// Bus publishes and observes the remote sign-out flag.
//
// Delivery is best-effort and eventually consistent: a surface that is not
// subscribed when the flag is published still finds it via Consume on its
// next render. Consume is read-and-clear; the first consumer wins.
type Bus interface {
	Publish(ctx context.Context, flag domain.RemoteSignOutFlag) error
	// Subscribe registers fn for future flags and returns a stop function.
	Subscribe(ctx context.Context, fn func(domain.RemoteSignOutFlag)) (func(), error)
	// Consume returns the stored flag and clears it, or nil when absent.
	Consume(ctx context.Context) (*domain.RemoteSignOutFlag, error)
}
