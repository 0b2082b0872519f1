package stream

import "time"

// tickLoop drives emission opportunities at the configured cadence.
func (e *Engine[T]) tickLoop() {
	defer e.loops.Done()

	ticker := time.NewTicker(e.cfg.Cadence())
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
			if !e.post(event{kind: eventTick}) {
				return
			}
		}
	}
}

// heartbeatLoop requests a ping every HeartbeatInterval. A zero interval
// disables heartbeats entirely.
func (e *Engine[T]) heartbeatLoop() {
	defer e.loops.Done()

	if e.cfg.HeartbeatInterval <= 0 {
		return
	}
	for e.sleep(e.cfg.HeartbeatInterval) {
		if !e.post(event{kind: eventHeartbeat}) {
			return
		}
	}
}

func (e *Engine[T]) watchdogLoop() {
	defer e.loops.Done()

	for e.sleep(e.watchdogEvery) {
		if !e.post(event{kind: eventWatchdog}) {
			return
		}
	}
}

// sleep waits for d or until Stop, reporting false on Stop.
func (e *Engine[T]) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-e.quit:
		return false
	case <-t.C:
		return true
	}
}

// post hands ev to the engine goroutine unless the engine is stopping.
func (e *Engine[T]) post(ev event) bool {
	select {
	case <-e.quit:
		return false
	default:
	}

	select {
	case e.mailbox <- ev:
		return true
	case <-e.quit:
		return false
	}
}
