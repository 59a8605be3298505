package store

import (
	"context"
	"sync"
	"time"

	"github.com/voxbridge/callengine/internal/logging"
)

// Sweeper periodically reconciles contacts whose processing lock has
// expired, reverting them to pending (spec §4.1, §9 "graceful restart").
type Sweeper struct {
	store    Store
	interval time.Duration
	graceTTL time.Duration
	log      logging.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(s Store, interval, graceTTL time.Duration, log logging.Logger) *Sweeper {
	return &Sweeper{
		store:    s,
		interval: interval,
		graceTTL: graceTTL,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (p *Sweeper) Start() {
	go p.loop()
}

func (p *Sweeper) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Sweeper) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stop:
			return
		}
	}
}

func (p *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := p.store.ReleaseExpiredLocks(ctx, p.graceTTL)
	if err != nil {
		p.log.Errorw("sweeper: release expired locks failed", "error", err)
		return
	}
	if n > 0 {
		p.log.Infow("sweeper: released expired contact locks", "count", n)
	}
}
