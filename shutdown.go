package wrpc

import (
	"fmt"

	"go.uber.org/zap"
)

// Shutdown stops the timeout sweeper, then the receiver loop, waiting for
// each to exit. It is safe to call repeatedly and on a client never started.
// Requests still pending afterwards fail with ErrChannelClosed since nothing
// is left to resolve them. The transport is not closed.
func (c *Client) Shutdown() error {
	c.shutdownMu.Lock()
	defer c.shutdownMu.Unlock()

	// a client shut down before Start never starts
	c.startOnce.Do(func() {})

	if c.sweeperRunning.Load() {
		c.sweeperShutdown.request.fire()
		<-c.sweeperShutdown.response.done()
	}

	if c.receiverRunning.Load() {
		if err := c.t.InjectControl(ControlReceiverShutdown); err != nil {
			select {
			case <-c.receiverDone.done():
			default:
				return fmt.Errorf("%w: %v", ErrReceiverCtl, err)
			}
		}
		<-c.receiverDone.done()
	}

	c.wg.Wait()

	orphans := c.pending.drain()
	if len(orphans) > 0 {
		l.Info("wrpc: failing pending requests on shutdown", zap.Int("count", len(orphans)))
	}
	for _, cb := range orphans {
		cb(nil, ErrChannelClosed)
	}
	return nil
}
