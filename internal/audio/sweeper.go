package audio

import (
	"time"

	"go.uber.org/zap"
)

// Sweeper revokes expired playback handles in the background
type Sweeper struct {
	registry *Registry
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper that runs every interval
func NewSweeper(registry *Registry, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep
func (s *Sweeper) Start() {
	go s.sweepLoop()
	s.logger.Info("Handle sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the sweep and waits for the loop to exit
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.done
	s.logger.Info("Handle sweeper stopped")
}

func (s *Sweeper) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Sweep revokes every handle expired at now
func (s *Sweeper) Sweep(now time.Time) int {
	n := s.registry.RevokeExpired(now)
	if n > 0 {
		s.logger.Debug("Expired playback handles revoked", zap.Int("count", n), zap.Int("live", s.registry.Len()))
	}
	return n
}
