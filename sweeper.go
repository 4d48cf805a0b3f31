package captivault

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"
)

// sweeper periodically purges capture sessions past their absolute deadline.
// One goroutine per engine; stopped by Engine.Close.
type sweeper struct {
	engine   *Engine
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newSweeper(engine *Engine, interval time.Duration) *sweeper {
	s := &sweeper{
		engine:   engine,
		interval: interval,
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.engine.SweepNow(context.Background()); err != nil {
				log.Print("captivault: capture sweep failed")
			}
		case <-s.done:
			return
		}
	}
}

func (s *sweeper) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// SweepNow describes the sweepnow operation and its observable behavior.
//
// SweepNow may return an error when input validation, dependency calls, or security checks fail.
// SweepNow does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SweepNow(ctx context.Context) (*SweepReport, error) {
	if e == nil || e.captureStore == nil {
		return nil, ErrEngineNotReady
	}

	swept, err := e.captureStore.Sweep(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	// Expired capture sessions take their authenticated session down with
	// them. Operator attribution comes from the capture metadata, which the
	// sweep reads before purging; the session blob may already be gone.
	removed := make([]string, 0, len(swept))
	for _, sw := range swept {
		removed = append(removed, sw.SessionID)
		if sw.OperatorID != "" {
			e.releaseAdmission(ctx, sw.OperatorID, sw.SessionID)
		}
		if delErr := e.sessionStore.Delete(ctx, sw.SessionID, sw.OperatorID); delErr != nil {
			log.Print("captivault: session delete failed during sweep")
		}
		if e.deliveryLog != nil {
			if purgeErr := e.deliveryLog.Purge(ctx, sw.SessionID); purgeErr != nil {
				log.Print("captivault: delivery log purge failed during sweep")
			}
		}
	}

	if len(removed) > 0 {
		e.metricAdd(MetricSweepRemoved, uint64(len(removed)))
		e.metricInc(MetricSessionExpired)
	}
	e.emitAudit(ctx, auditEventSweepCompleted, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"removed": strconv.Itoa(len(removed)),
		}
	})

	return &SweepReport{Removed: removed}, nil
}
