package job

import (
	"context"
	"log"
	"log/slog"
	"sync"

	"github.com/robfig/cron"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconcileJob puts pending jobs that never reached Redis back on the queue.
type ReconcileJob struct {
	reconciler Reconciler
}

func NewReconcileJob(reconciler Reconciler) *ReconcileJob {
	return &ReconcileJob{reconciler: reconciler}
}

func (r *ReconcileJob) Reconcile() {
	n, err := r.reconciler.Reconcile(context.Background())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if n > 0 {
		log.Printf("Reconciler enqueued %d pending jobs", n)
	}
}

// Crons is a cron whose Stop also waits for runs already in progress.
type Crons struct {
	*cron.Cron
	mu      sync.Mutex
	stopped bool
	running sync.WaitGroup
}

func (c *Crons) track(fn func()) func() {
	return func() {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		c.running.Add(1)
		c.mu.Unlock()
		defer c.running.Done()
		fn()
	}
}

// Stop halts the schedule and blocks until in-flight runs return.
func (c *Crons) Stop() {
	c.Cron.Stop()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.running.Wait()
}

// Schedule registers both jobs on a new cron. The caller starts and stops it.
func Schedule(reconcileSpec, sweepSpec string, reconcile *ReconcileJob, sweep *TokenRefreshJob) (*Crons, error) {
	c := &Crons{Cron: cron.New()}
	if err := c.AddFunc(reconcileSpec, c.track(reconcile.Reconcile)); err != nil {
		return nil, err
	}
	if err := c.AddFunc(sweepSpec, c.track(sweep.RefreshTokens)); err != nil {
		return nil, err
	}
	return c, nil
}
