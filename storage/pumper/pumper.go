// Package pumper runs a periodic job on exactly one instance at a time,
// elected through a lock.
package pumper

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cacheoracle/cacheoracle/storage/lock"
)

type Pumper interface {
	Loop(fn func() bool)
	Shutdown()
}

type Default struct {
	lock     lock.Lock
	interval time.Duration
	logger   *logrus.Entry
	shutdown chan struct{}
}

func NewDefault(l lock.Lock, interval time.Duration, logger *logrus.Logger) *Default {
	return &Default{
		lock:     l,
		interval: interval,
		logger:   logger.WithField("pumper", l.Name()),
		shutdown: make(chan struct{}),
	}
}

// Loop calls fn on every tick while this instance holds the lock. fn returns
// true to be called again right away, e.g. when a batch limit was hit.
func (p *Default) Loop(fn func() bool) {
	isLeader := false

	if err := p.lock.Acquire(); err == nil {
		isLeader = true
		p.logger.Info("Acquired the pumper lock, I'm leader now")
	} else {
		p.logger.WithError(err).Info("Lost the pumper lock")
	}

	defer func() {
		if isLeader {
			if _, err := p.lock.Release(); err != nil {
				p.logger.WithError(err).Error("Failed to release the pumper lock")
			}
		}
	}()

	pumpTicker := time.NewTicker(p.interval)
	defer pumpTicker.Stop()
	electTicker := time.NewTicker(p.lock.Expiry() / 3)
	defer electTicker.Stop()
	for {
		select {
		case <-pumpTicker.C:
			continueLoop := true
			for isLeader && continueLoop {
				select {
				case <-p.shutdown:
					return
				default:
				}
				continueLoop = fn()
			}
		case <-electTicker.C:
			if isLeader {
				extendLeaseOK, err := p.lock.ExtendLease()
				if !extendLeaseOK || err != nil {
					isLeader = false
					p.logger.WithError(err).Error("Failed to extend lease")
				}
			} else {
				if err := p.lock.Acquire(); err == nil {
					isLeader = true
					p.logger.Info("Acquired the pumper lock, I'm leader now")
					continue
				}
			}
		case <-p.shutdown:
			if isLeader {
				p.logger.Info("The pumper was shutdown, will release the pumper lock")
			}
			return
		}
	}
}

func (p *Default) Shutdown() {
	close(p.shutdown)
}
