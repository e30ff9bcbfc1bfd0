// Package notify provides goOTP.Notifier implementations.
package notify

import (
	"context"
	"fmt"

	goOTP "github.com/MrEthical07/goOTP"
)

// Func adapts a plain function to goOTP.Notifier.
type Func func(ctx context.Context, n goOTP.Notification) error

// Send calls f.
func (f Func) Send(ctx context.Context, n goOTP.Notification) error {
	return f(ctx, n)
}

// ByChannel routes each notification to the notifier registered for its
// channel.
type ByChannel map[goOTP.Channel]goOTP.Notifier

// Send delivers n through the notifier of n.Channel.
func (m ByChannel) Send(ctx context.Context, n goOTP.Notification) error {
	target, ok := m[n.Channel]
	if !ok || target == nil {
		return fmt.Errorf("notify: no notifier for channel %q", n.Channel)
	}
	return target.Send(ctx, n)
}
