package telegram

import (
	"context"
	"time"
)

// Deliverer sends message blocks to one chat, in order, with a small delay
// between blocks to stay under the Bot API rate limits.
type Deliverer struct {
	Client     *Client
	ChatID     int64
	BlockDelay time.Duration
}

// Deliver sends blocks sequentially. The first failure aborts; the caller
// treats a partial delivery as a failed run and commits nothing.
func (d *Deliverer) Deliver(ctx context.Context, blocks []string) error {
	for i, block := range blocks {
		if i > 0 && d.BlockDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.BlockDelay):
			}
		}
		if err := d.Client.SendMessage(ctx, d.ChatID, block); err != nil {
			return err
		}
	}
	return nil
}
