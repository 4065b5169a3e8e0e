package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedChannel is returned for channel handles no transport owns.
var ErrUnsupportedChannel = errors.New("unsupported subscriber channel")

// Router dispatches to the transport implied by the channel handle.
type Router struct {
	hub      *Hub
	callback *CallbackSender
}

// NewRouter builds a router. Either transport may be nil, in which case
// channels it would serve fail delivery.
func NewRouter(hub *Hub, callback *CallbackSender) *Router {
	return &Router{hub: hub, callback: callback}
}

// Send implements Sender.
func (r *Router) Send(ctx context.Context, channel, text string) error {
	switch {
	case strings.HasPrefix(channel, WebsocketChannelPrefix):
		if r.hub == nil {
			return fmt.Errorf("%w: no websocket hub for %s", ErrUnsupportedChannel, channel)
		}
		return r.hub.Send(ctx, channel, text)
	case strings.HasPrefix(channel, "http://"), strings.HasPrefix(channel, "https://"):
		if r.callback == nil {
			return fmt.Errorf("%w: callbacks disabled for %s", ErrUnsupportedChannel, channel)
		}
		return r.callback.Send(ctx, channel, text)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}
}

// IsSupportedChannel reports whether channel is a handle Router can deliver to.
func IsSupportedChannel(channel string) bool {
	return strings.HasPrefix(channel, WebsocketChannelPrefix) ||
		strings.HasPrefix(channel, "http://") ||
		strings.HasPrefix(channel, "https://")
}
