// Package notifications fans job status out to subscriber channels.
//
// Service reads the subscriber set from the status store and delivers one
// text message per channel through a Sender. Delivery is best-effort: a
// failing subscriber is logged and skipped. Router picks the transport from
// the channel handle: "ws:<id>" goes to the websocket Hub, http(s) URLs to
// the CallbackSender.
package notifications
