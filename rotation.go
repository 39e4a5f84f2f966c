// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// rotator forces a rotation on every live file writer at a fixed time of day.
// Size-based rotation is handled by the writers themselves; this covers the
// scheduled half of the rotation policy.
type rotator struct {
	at      timeOfDay
	targets []*lumberjack.Logger
	stop    chan struct{}
	done    chan struct{}
}

func newRotator(at timeOfDay, targets []*lumberjack.Logger) *rotator {
	r := &rotator{
		at:      at,
		targets: targets,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *rotator) run() {
	defer close(r.done)

	timer := time.NewTimer(time.Until(r.at.next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			for _, target := range r.targets {
				_ = target.Rotate()
			}
			timer.Reset(time.Until(r.at.next(time.Now())))
		case <-r.stop:
			return
		}
	}
}

// Close stops the scheduler and waits for the goroutine to exit.
func (r *rotator) Close() {
	close(r.stop)
	<-r.done
}
