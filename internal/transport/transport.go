// Package transport abstracts the outbound side of the chat channel.
// Inbound messages arrive through the HTTP webhook in the server package.
package transport

import "context"

type Transport interface {
	Send(ctx context.Context, recipientID, text string) error
}
