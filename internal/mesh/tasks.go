package mesh

import (
	"time"

	"github.com/BioHazard786/warpmesh/internal/clock"
)

// schedule runs fn on the loop after delay if alive still holds then.
// Otherwise cancelled, if set, runs instead.
func (c *Coordinator) schedule(delay time.Duration, name, peer string, alive func() bool, fn func(), cancelled func()) {
	var t clock.Timer
	t = c.clock.AfterFunc(delay, func() {
		c.post(func() {
			delete(c.timers, t)
			if !alive() {
				c.logger.Debug("task skipped", "task", name, "peer", peer)
				if cancelled != nil {
					cancelled()
				}
				return
			}
			fn()
		})
	})
	c.timers[t] = struct{}{}
}

// scheduleConnect queues the first offer to a newly seen participant. The
// larger id yields so simultaneous joins rarely collide.
func (c *Coordinator) scheduleConnect(id string) {
	delay := c.opts.ConnectDelay
	if c.opts.LocalID > id {
		delay *= 2
	}
	c.schedule(delay, "connect", id,
		func() bool { return c.registry.Has(id) && c.links[id] == nil },
		func() { c.connect(id) },
		nil,
	)
}

// connect opens a link to id as initiator and sends the offer.
func (c *Coordinator) connect(id string) {
	link, err := c.newLink(id, RoleInitiator)
	if err != nil {
		c.logger.Error("create link", "peer", id, "error", err)
		return
	}
	c.offer(link)
}
