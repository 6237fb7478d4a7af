package batch

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/common/errs"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/pkg/retry"
)

// Pusher submits one batch as a single atomic transaction.
type Pusher interface {
	PushTransaction(ctx context.Context, actions []chain.Action) (string, error)
}

// Submitter pushes batches with bounded fixed-delay retry. It does not
// deduplicate: a retry after a timeout can duplicate the on-chain effect
// if the first attempt actually committed. The RPC offers no idempotency
// key to close that window.
type Submitter struct {
	chain  Pusher
	policy retry.Policy
}

func NewSubmitter(chain Pusher, policy retry.Policy) *Submitter {
	return &Submitter{
		chain:  chain,
		policy: policy,
	}
}

// Submit pushes the batch, retrying on any error. After the retry budget
// is exhausted it fails with errs.Submission, carrying the last rejection
// message.
func (s *Submitter) Submit(ctx context.Context, actions []chain.Action) (string, error) {
	txID, err := retry.DoValue(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.chain.PushTransaction(ctx, actions)
	})
	if err != nil {
		return "", errors.Wrapf(errs.Submission, "batch of %d actions failed: %v", len(actions), err)
	}
	return txID, nil
}
