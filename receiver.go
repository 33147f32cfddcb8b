package wrpc

import "go.uber.org/zap"

// receive drains the transport's inbound queue until the shutdown sentinel
// arrives or the queue is closed. Without a receiver the client is closed.
func (c *Client) receive() {
	defer func() {
		c.setOpen(false)
		c.receiverRunning.Store(false)
		c.receiverDone.fire()
	}()

	for ev := range c.t.Events() {
		switch ev.Kind {
		case EventBinary:
			c.onIncomingFrame(ev.Data)
		case EventText:
			l.Debug("wrpc: ignored text message", zap.Int("#text", len(ev.Text)))
		case EventControl:
			switch ev.Control {
			case ControlOpen:
				c.setOpen(true)
			case ControlClosed:
				c.setOpen(false)
			case ControlReceiverShutdown:
				return
			}
			c.forward(ev.Control)
		}
	}
}
