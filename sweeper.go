package wrpc

import (
	"time"

	"go.uber.org/zap"
)

// sweep fails requests older than the timeout threshold until asked to stop.
func (c *Client) sweep() {
	defer func() {
		c.sweeperRunning.Store(false)
		c.sweeperShutdown.response.fire()
	}()

	stop := c.sweeperShutdown.request.done()
	for {
		timer := time.NewTimer(time.Duration(c.sweepInterval.Load()))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		expired := c.pending.expire(time.Now(), time.Duration(c.timeout.Load()))
		if len(expired) == 0 {
			continue
		}
		l.Debug("wrpc: requests timed out", zap.Int("count", len(expired)))
		for _, cb := range expired {
			cb(nil, ErrTimeout)
		}
	}
}
