package workflows

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

// Money movement steps, also the keys of platformData.failedAttempts.
const (
	stepPayIn        = "payin"
	stepPreauthorize = "preauthorize"
	stepCapture      = "capture"
	stepShipping     = "shipping"
	stepOwner        = "owner"
)

var movementSpace = uuid.MustParse("3b0f6a2e-8d4c-4f61-9e07-52c1d8a4b7f3")

// withMovementKey scopes ctx to the idempotency key of one money movement.
// The key depends only on the step, the transaction, the recorded progress
// and the last failed attempt of the step, so a retry after a lost update
// replays the processor object instead of moving funds again.
func withMovementKey(ctx context.Context, step string, tx *resources.Transaction, progress ...int64) context.Context {
	var b strings.Builder
	b.WriteString(step)
	b.WriteByte('/')
	b.WriteString(tx.ID)
	for _, p := range progress {
		b.WriteByte('/')
		b.WriteString(strconv.FormatInt(p, 10))
	}
	b.WriteByte('/')
	b.WriteString(tx.PlatformData.FailedAttempts[step].String())
	return mangopay.WithIdempotencyKey(ctx, uuid.NewSHA1(movementSpace, []byte(b.String())).String())
}

// unrecorded reports a processor object that exists but could not be saved on
// the transaction. Retrying the call is safe: the processor replays it.
func unrecorded(err error, step string, tx *resources.Transaction, id mangopay.ID) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "processor call succeeded but progress was not recorded").WithDetails(map[string]any{
		"step":          step,
		"transactionId": tx.ID,
		"processorId":   id,
	})
}
