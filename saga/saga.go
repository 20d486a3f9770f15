/*
Package saga executes ordered action/compensation pairs.

PURPOSE:
  The underlying store offers only independent per-entity writes, not
  cross-entity atomicity. Multi-step operations (posting a stock movement
  touches several item balances, a driver balance and the movement itself)
  therefore register each write together with a compensating write that
  restores the pre-image, and the saga provides the all-or-nothing
  observable behavior.

CONTRACT:
  - Add registers a step; Execute runs actions strictly in registration
    order, awaiting each before starting the next. Ordering is
    deterministic because later steps may depend on earlier ones having
    committed.
  - On the first action that fails, compensations for all already
    successful steps run in strict reverse (LIFO) order, exactly once each.
  - Compensations are best-effort: a failing compensation is logged and the
    remaining compensations still run. If that happens the system is left
    inconsistent and the log line is the signal for manual reconciliation;
    there is no automatic retry.
  - The original triggering error is always returned to the caller. The
    saga never swallows the root cause.

SEE ALSO:
  - fleet/posting.go: The main consumer
*/
package saga

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Action is a single forward or compensating write.
type Action func(ctx context.Context) error

type step struct {
	name       string
	action     Action
	compensate Action
}

// Saga is an ordered list of steps with best-effort rollback. Not safe for
// concurrent use; build one per operation.
type Saga struct {
	log   *logrus.Logger
	steps []step
}

func New(log *logrus.Logger) *Saga {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Saga{log: log}
}

// Add registers a step. The compensation may be nil for steps that need no
// rollback (pure validations).
func (s *Saga) Add(name string, action, compensate Action) {
	s.steps = append(s.steps, step{name: name, action: action, compensate: compensate})
}

// Len returns the number of registered steps.
func (s *Saga) Len() int { return len(s.steps) }

// Execute runs all steps sequentially. On the first failure it compensates
// the already-successful steps in reverse order and returns the original
// error.
func (s *Saga) Execute(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.action(ctx); err != nil {
			s.compensate(ctx, i-1)
			return err
		}
	}
	return nil
}

// compensate rolls back steps [0..upto] in reverse order. Each compensation
// is attempted independently.
func (s *Saga) compensate(ctx context.Context, upto int) {
	for j := upto; j >= 0; j-- {
		st := s.steps[j]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(ctx); err != nil {
			s.log.WithFields(logrus.Fields{
				"step":  st.name,
				"index": j,
				"error": err,
			}).Error("saga compensation failed; manual reconciliation required")
		}
	}
}
