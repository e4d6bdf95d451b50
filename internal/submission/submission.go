// Package submission hands composed messages to the outbound mail
// transport. Whatever sender the domain record claimed, the From header
// is overwritten with the authenticated account address immediately
// before transmission; a user cannot spoof another sender.
package submission

import (
	"context"
	"fmt"

	"github.com/zeegates/minig/internal/wire"
)

// Submitter is the outbound transport contract. Implementations block
// and propagate transport failures unchanged; retry policy lives behind
// this boundary.
type Submitter interface {
	// Submit sends the message.
	Submit(ctx context.Context, msg *wire.Message) error

	// SubmitWithDSN sends the message requesting delivery status
	// notifications back to the authenticated account.
	SubmitWithDSN(ctx context.Context, msg *wire.Message) error
}

// recipients collects every envelope recipient of a message.
func recipients(msg *wire.Message) []string {
	var out []string
	for _, a := range msg.To() {
		out = append(out, a.Address)
	}
	for _, a := range msg.Cc() {
		out = append(out, a.Address)
	}
	for _, a := range msg.Bcc() {
		out = append(out, a.Address)
	}
	return out
}

// prepare enforces the sender and materializes the message.
func prepare(msg *wire.Message, senderAddress string) ([]byte, []string, error) {
	// Always send as the authenticated user, regardless of what the
	// domain record specified.
	msg.SetFrom(senderAddress)

	raw, err := msg.Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("serializing message: %w", err)
	}

	rcpts := recipients(msg)
	if len(rcpts) == 0 {
		return nil, nil, fmt.Errorf("message %s has no recipients", msg.ID().String())
	}
	return raw, rcpts, nil
}
