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
)

// ChargeArgs are the arguments of Custom.payIn and Custom.preauthorize.
type ChargeArgs struct {
	TransactionID string      `json:"transactionId" validate:"required"`
	Carrier       string      `json:"carrier"`
	Payment       PaymentArgs `json:"payment"`
}

// charge is a validated buyer charge ready to be sent to the processor.
type charge struct {
	tx     *resources.Transaction
	cfg    resources.CustomConfig
	payer  resources.ProcessorAccount
	card   mangopay.ID
	total  int64
	fare   int64
	args   ChargeArgs
	shared mangopay.Money
}

// prepareCharge runs every check of a buyer charge and persists the shipping
// fare. Nothing is sent to the processor.
func (e *Engine) prepareCharge(ctx context.Context, s Session, args rpc.Args, allowed ...enums.TransactionStatus) (*charge, error) {
	var in ChargeArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}

	tx, err := e.resources.GetTransaction(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if !s.Identity.HasUser() || tx.TakerID != s.Identity.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed")
	}
	if !tx.Status.In(allowed...) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "wrong transaction status").WithDetails(map[string]any{"status": tx.Status})
	}
	if tx.Metadata.IP == "" || !tx.Metadata.BrowserData.Complete() || tx.Metadata.PaymentMethod == "" {
		return nil, missingArgs("transaction ip, browserData and paymentMethod are required")
	}
	card, err := parseCard(tx.Metadata.PaymentMethod)
	if err != nil {
		return nil, err
	}
	payer, err := payerAccount(s)
	if err != nil {
		return nil, err
	}

	cfg, err := e.customConfig(ctx)
	if err != nil {
		return nil, err
	}
	fare, persist, err := e.shippingFare(ctx, tx, in.Carrier, cfg)
	if err != nil {
		return nil, err
	}
	if persist {
		tx, err = e.resources.UpdateTransaction(ctx, tx.ID, types.Patch{}.Set("platformData.shippingFare", fare))
		if err != nil {
			return nil, err
		}
	}

	total := tx.TakerAmount + fare + cfg.AdditionalPricing.TakerFeesFixed
	currency := transactionCurrency(tx, cfg)
	return &charge{
		tx:     tx,
		cfg:    cfg,
		payer:  payer,
		card:   card,
		total:  total,
		fare:   fare,
		args:   in,
		shared: money(currency, total),
	}, nil
}

// creditedWallet is the escrow wallet, or the seller's owner wallet when the
// platform credits sellers directly.
func (e *Engine) creditedWallet(ctx context.Context, s Session, c *charge) (mangopay.ID, error) {
	if c.cfg.CreditsOwner() {
		owner, err := e.resources.GetUser(ctx, c.tx.OwnerID)
		if err != nil {
			return 0, err
		}
		walletID := owner.Linked().Owner.WalletID
		if walletID.IsZero() {
			return 0, pkgerrors.New(pkgerrors.CodeConflict, "seller wallet not linked")
		}
		return walletID, nil
	}
	wallets, err := processor.ResolveWallets(ctx, s.Processor, c.cfg)
	if err != nil {
		return 0, err
	}
	escrow, err := wallets.Require("escrow")
	if err != nil {
		return 0, err
	}
	return escrow.ID, nil
}

func (e *Engine) payIn(ctx context.Context, s Session, args rpc.Args) (any, error) {
	c, err := e.prepareCharge(ctx, s, args, enums.TransactionStatusDraft, enums.TransactionStatusFailedPayIn)
	if err != nil {
		return nil, err
	}
	walletID, err := e.creditedWallet(ctx, s, c)
	if err != nil {
		return nil, err
	}

	keyed := withMovementKey(ctx, stepPayIn, c.tx, c.total)
	payIn, err := s.Processor.Client.CreateCardDirectPayIn(keyed, mangopay.CardDirectPayIn{
		AuthorID:            c.payer.ID,
		CreditedWalletID:    walletID,
		DebitedFunds:        c.shared,
		Fees:                money(c.shared.Currency, c.tx.PlatformAmount),
		CardID:              c.card,
		SecureModeReturnURL: c.args.Payment.SecureModeReturnURL,
		IPAddress:           c.tx.Metadata.IP,
		BrowserInfo:         browserInfo(s.Identity.Headers, c.tx.Metadata.BrowserData),
		Shipping:            shippingBlock(c.tx),
		Culture:             c.cfg.Culture(),
		Tag:                 c.tx.ID,
	})
	if err != nil {
		return nil, s.Processor.Wrap("PayIns.create", err)
	}

	patch := types.Patch{}
	if payIn.Status == mangopay.StatusFailed {
		patch.Set("status", enums.TransactionStatusFailedPayIn).
			Set("platformData.failedAttempts."+stepPayIn, payIn.ID)
	} else {
		patch.Set("status", enums.TransactionStatusPendingPayment).
			Set("platformData.payInId", payIn.ID).
			Set("platformData.chargedAmount", c.total)
	}
	if _, err := e.resources.UpdateTransaction(ctx, c.tx.ID, patch); err != nil {
		return nil, unrecorded(err, stepPayIn, c.tx, payIn.ID)
	}
	return payIn, nil
}

func (e *Engine) preauthorize(ctx context.Context, s Session, args rpc.Args) (any, error) {
	c, err := e.prepareCharge(ctx, s, args, enums.TransactionStatusDraft, enums.TransactionStatusFailedPreauth)
	if err != nil {
		return nil, err
	}

	keyed := withMovementKey(ctx, stepPreauthorize, c.tx, c.total)
	preauth, err := s.Processor.Client.CreateCardPreAuthorization(keyed, mangopay.PreAuthorization{
		AuthorID:            c.payer.ID,
		DebitedFunds:        c.shared,
		CardID:              c.card,
		SecureModeReturnURL: c.args.Payment.SecureModeReturnURL,
		IPAddress:           c.tx.Metadata.IP,
		BrowserInfo:         browserInfo(s.Identity.Headers, c.tx.Metadata.BrowserData),
		Shipping:            shippingBlock(c.tx),
		Culture:             c.cfg.Culture(),
		Tag:                 c.tx.ID,
	})
	if err != nil {
		return nil, s.Processor.Wrap("CardPreAuthorizations.create", err)
	}

	patch := types.Patch{}
	if preauth.Status == mangopay.StatusFailed {
		patch.Set("status", enums.TransactionStatusFailedPreauth).
			Set("platformData.failedAttempts."+stepPreauthorize, preauth.ID)
	} else {
		patch.Set("status", enums.TransactionStatusPendingPayment).
			Set("platformData.preauthorizationId", preauth.ID).
			Set("platformData.chargedAmount", c.total)
	}
	if _, err := e.resources.UpdateTransaction(ctx, c.tx.ID, patch); err != nil {
		return nil, unrecorded(err, stepPreauthorize, c.tx, preauth.ID)
	}
	return preauth, nil
}

// CaptureArgs selects the transaction whose preauthorization is captured.
type CaptureArgs struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

// CaptureResult reports the capture and the shipping advance.
type CaptureResult struct {
	Transaction *resources.Transaction `json:"transaction"`
	PayIn       *mangopay.PayIn        `json:"payIn,omitempty"`
	Transfer    *mangopay.Transfer     `json:"transfer,omitempty"`
}

func (e *Engine) capturePreauthorization(ctx context.Context, s Session, args rpc.Args) (any, error) {
	if err := requirePrivileged(s); err != nil {
		return nil, err
	}
	var in CaptureArgs
	if err := args.Decode(0, &in); err != nil {
		return nil, err
	}

	tx, err := e.resources.GetTransaction(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if !tx.Status.In(enums.TransactionStatusPendingPayment, enums.TransactionStatusEscrowHeld) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "wrong transaction status").WithDetails(map[string]any{"status": tx.Status})
	}
	if tx.PlatformData.PreauthorizationID.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction has no preauthorization")
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
	shipping, err := wallets.Require("shipping")
	if err != nil {
		return nil, err
	}

	result := &CaptureResult{}
	if tx.PlatformData.CapturedPayInID.IsZero() {
		payIn, err := e.capture(ctx, s, tx, escrow.ID, cfg)
		if err != nil {
			return nil, err
		}
		result.PayIn = payIn
	}

	err = e.counters.With(ctx, s.Identity.PlatformID, "transaction", tx.ID, func(ctx context.Context) error {
		current, err := e.resources.GetTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		line, err := e.shippingLine(ctx, current)
		if err != nil {
			return err
		}
		remaining := line - current.PlatformData.TransferredToShipping
		if remaining <= 0 {
			result.Transaction = current
			return nil
		}

		keyed := withMovementKey(ctx, stepShipping, current, current.PlatformData.TransferredToShipping, remaining)
		transfer, err := s.Processor.Client.CreateTransfer(keyed, mangopay.Transfer{
			AuthorID:         wallets.UserID,
			CreditedUserID:   wallets.UserID,
			DebitedFunds:     money(transactionCurrency(current, cfg), remaining),
			Fees:             money(transactionCurrency(current, cfg), 0),
			DebitedWalletID:  escrow.ID,
			CreditedWalletID: shipping.ID,
			Tag:              current.ID,
		})
		if err != nil {
			return s.Processor.Wrap("Transfers.create", err)
		}
		result.Transfer = transfer
		patch := types.Patch{}
		switch transfer.Status {
		case mangopay.StatusSucceeded:
			patch.Set("platformData.transferredToShipping", current.PlatformData.TransferredToShipping+transfer.Credited())
		case mangopay.StatusFailed:
			patch.Set("platformData.failedAttempts."+stepShipping, transfer.ID)
		default:
			result.Transaction = current
			return nil
		}
		updated, err := e.resources.UpdateTransaction(ctx, current.ID, patch)
		if err != nil {
			return unrecorded(err, stepShipping, current, transfer.ID)
		}
		result.Transaction = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// capture turns the preauthorization into a pay-in credited to escrow.
func (e *Engine) capture(ctx context.Context, s Session, tx *resources.Transaction, escrowWallet mangopay.ID, cfg resources.CustomConfig) (*mangopay.PayIn, error) {
	preauth, err := s.Processor.Client.GetPreAuthorization(ctx, tx.PlatformData.PreauthorizationID)
	if err != nil {
		return nil, s.Processor.Wrap("CardPreAuthorizations.get", err)
	}
	amount := tx.PlatformData.ChargedAmount
	if amount <= 0 {
		amount = preauth.DebitedFunds.Amount
	}
	currency := transactionCurrency(tx, cfg)

	keyed := withMovementKey(ctx, stepCapture, tx, int64(preauth.ID))
	payIn, err := s.Processor.Client.CreatePreauthorizedPayIn(keyed, mangopay.PreauthorizedPayIn{
		AuthorID:           preauth.AuthorID,
		CreditedWalletID:   escrowWallet,
		DebitedFunds:       money(currency, amount),
		Fees:               money(currency, tx.PlatformAmount),
		PreauthorizationID: preauth.ID,
		Tag:                tx.ID,
	})
	if err != nil {
		return nil, s.Processor.Wrap("PayIns.create", err)
	}
	if payIn.Status == mangopay.StatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "preauthorized pay-in failed").WithDetails(map[string]any{
			"payInId":    payIn.ID,
			"resultCode": payIn.ResultCode,
		})
	}

	_, err = e.resources.UpdateTransaction(ctx, tx.ID, types.Patch{}.
		Set("status", enums.TransactionStatusEscrowHeld).
		Set("platformData.capturedPayInId", payIn.ID))
	if err != nil {
		return nil, unrecorded(err, stepCapture, tx, payIn.ID)
	}
	return payIn, nil
}

// shippingLine is the order's shipping line, or the recorded fare when the
// platform has no order for the transaction.
func (e *Engine) shippingLine(ctx context.Context, tx *resources.Transaction) (int64, error) {
	order, err := e.resources.FindTransactionOrder(ctx, tx.ID)
	if err != nil {
		return 0, err
	}
	if amount, ok := order.ShippingLine(); ok {
		return amount, nil
	}
	if tx.PlatformData.ShippingFare != nil {
		return *tx.PlatformData.ShippingFare, nil
	}
	return 0, nil
}
