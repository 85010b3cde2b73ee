package workflows

import (
	"context"

	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/types"
	"go.uber.org/multierr"
)

// ItemError is the failure of one element of a batch.
type ItemError struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Details any            `json:"details,omitempty"`
}

func itemError(err error) *ItemError {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return &ItemError{Code: typed.Code(), Message: typed.Message(), Details: typed.Details()}
	}
	return &ItemError{Code: pkgerrors.CodeInternal, Message: err.Error()}
}

type RefundArgs struct {
	PayInIDs []string `json:"payinIds" validate:"required,min=1,dive,required"`
}

type RefundResult struct {
	PayInID string           `json:"payinId"`
	Refund  *mangopay.Refund `json:"refund,omitempty"`
	Error   *ItemError       `json:"error,omitempty"`
}

func (e *Engine) refundPayIns(ctx context.Context, s Session, args rpc.Args) (any, error) {
	if err := requirePrivileged(s); err != nil {
		return nil, err
	}
	var in RefundArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}
	cfg, err := e.customConfig(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RefundResult, 0, len(in.PayInIDs))
	var failures error
	for _, raw := range in.PayInIDs {
		refund, err := e.refundOne(ctx, s, raw, cfg)
		results = append(results, RefundResult{PayInID: raw, Refund: refund, Error: itemError(err)})
		failures = multierr.Append(failures, err)
	}
	if failures != nil {
		e.warn(ctx, "some pay-in refunds failed", failures)
	}
	return results, nil
}

func (e *Engine) refundOne(ctx context.Context, s Session, raw string, cfg resources.CustomConfig) (*mangopay.Refund, error) {
	id, err := mangopay.ParseID(raw)
	if err != nil {
		return nil, rpc.BadArgs("payinIds must hold processor ids")
	}
	payIn, err := s.Processor.Client.GetPayIn(ctx, id)
	if err != nil {
		return nil, s.Processor.Wrap("PayIns.get", err)
	}
	author := payIn.AuthorID
	if cfg.RefundsFromEscrow() {
		if s.Processor.EscrowUserID.IsZero() {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "escrow operator user not configured")
		}
		author = s.Processor.EscrowUserID
	}
	refund, err := s.Processor.Client.CreatePayInRefund(ctx, id, mangopay.Refund{AuthorID: author})
	if err != nil {
		return nil, s.Processor.Wrap("PayIns.createRefund", err)
	}
	return refund, nil
}

type TransferArgs struct {
	TransactionIDs []string `json:"transactionIds" validate:"required,min=1,dive,required"`
}

type TransferResult struct {
	TransactionID string                 `json:"transactionId"`
	Transaction   *resources.Transaction `json:"transaction,omitempty"`
	Transfer      *mangopay.Transfer     `json:"transfer,omitempty"`
	Error         *ItemError             `json:"error,omitempty"`
}

func (e *Engine) transferToOwner(ctx context.Context, s Session, args rpc.Args) (any, error) {
	if err := requirePrivileged(s); err != nil {
		return nil, err
	}
	var in TransferArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}
	cfg, err := e.customConfig(ctx)
	if err != nil {
		return nil, err
	}
	wallets, err := processor.ResolveWallets(ctx, s.Processor, cfg)
	if err != nil {
		return nil, err
	}
	escrow, err := wallets.Require("escrow")
	if err != nil {
		return nil, err
	}

	results := make([]TransferResult, 0, len(in.TransactionIDs))
	var failures error
	for _, id := range in.TransactionIDs {
		result := TransferResult{TransactionID: id}
		err := e.counters.With(ctx, s.Identity.PlatformID, "transaction", id, func(ctx context.Context) error {
			return e.settle(ctx, s, id, escrow, wallets.UserID, cfg, &result)
		})
		result.Error = itemError(err)
		failures = multierr.Append(failures, err)
		results = append(results, result)
	}
	if failures != nil {
		e.warn(ctx, "some owner transfers failed", failures)
	}
	return results, nil
}

// settle moves the outstanding owner amount out of escrow. It runs under the
// transaction's counter lock.
func (e *Engine) settle(ctx context.Context, s Session, id string, escrow *mangopay.Wallet, escrowUser mangopay.ID, cfg resources.CustomConfig, result *TransferResult) error {
	tx, err := e.resources.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	result.Transaction = tx
	if tx.PlatformData.CompletedTransfer {
		return nil
	}
	if !tx.Status.In(enums.TransactionStatusEscrowHeld, enums.TransactionStatusPendingPayment) {
		return pkgerrors.New(pkgerrors.CodeConflict, "wrong transaction status").WithDetails(map[string]any{"status": tx.Status})
	}

	remaining := tx.OwnerAmount - tx.PlatformData.TransferredToOwner
	if remaining <= 0 {
		updated, err := e.resources.UpdateTransaction(ctx, tx.ID, types.Patch{}.
			Set("platformData.completedTransfer", true).
			Set("status", enums.TransactionStatusSettled))
		if err != nil {
			return err
		}
		result.Transaction = updated
		return nil
	}

	owner, err := e.resources.GetUser(ctx, tx.OwnerID)
	if err != nil {
		return err
	}
	account := owner.Linked().Owner
	if account.ID.IsZero() || account.WalletID.IsZero() {
		return pkgerrors.New(pkgerrors.CodeConflict, "seller owner account not linked")
	}

	currency := transactionCurrency(tx, cfg)
	keyed := withMovementKey(ctx, stepOwner, tx, tx.PlatformData.TransferredToOwner, remaining)
	transfer, err := s.Processor.Client.CreateTransfer(keyed, mangopay.Transfer{
		AuthorID:         escrowUser,
		CreditedUserID:   account.ID,
		DebitedFunds:     money(currency, remaining),
		Fees:             money(currency, 0),
		DebitedWalletID:  escrow.ID,
		CreditedWalletID: account.WalletID,
		Tag:              tx.ID,
	})
	if err != nil {
		return s.Processor.Wrap("Transfers.create", err)
	}
	result.Transfer = transfer
	if transfer.Status == mangopay.StatusFailed {
		updated, err := e.resources.UpdateTransaction(ctx, tx.ID, types.Patch{}.Set("platformData.failedAttempts."+stepOwner, transfer.ID))
		if err != nil {
			return unrecorded(err, stepOwner, tx, transfer.ID)
		}
		result.Transaction = updated
		return nil
	}

	credited := transfer.Credited()
	cumulative := tx.PlatformData.TransferredToOwner + credited
	patch := types.Patch{}.Set("platformData.transferredToOwner", cumulative)
	if transfer.Status == mangopay.StatusSucceeded && cumulative == tx.OwnerAmount {
		patch.Set("platformData.completedTransfer", true).Set("status", enums.TransactionStatusSettled)
	}
	updated, err := e.resources.UpdateTransaction(ctx, tx.ID, patch)
	if err != nil {
		return unrecorded(err, stepOwner, tx, transfer.ID)
	}
	result.Transaction = updated

	if transfer.Status != mangopay.StatusSucceeded || credited == 0 {
		return nil
	}
	return e.counters.With(ctx, s.Identity.PlatformID, "user", owner.ID, func(ctx context.Context) error {
		current, err := e.resources.GetUser(ctx, owner.ID)
		if err != nil {
			return err
		}
		pending := current.PlatformData.Private.Balance.Pending - credited
		_, err = e.resources.UpdateUser(ctx, owner.ID, types.Patch{}.Set("platformData._private.balance.pending", pending))
		return err
	})
}
