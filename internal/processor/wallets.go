package processor

import (
	"context"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

// OperatorWallets are the escrow operator's role wallets. A role is nil when
// no wallet description carries its label.
type OperatorWallets struct {
	UserID   mangopay.ID
	Escrow   *mangopay.Wallet
	Shipping *mangopay.Wallet
	Adv      *mangopay.Wallet
}

// ResolveWallets lists the escrow operator's wallets and matches them by
// description label. Results are never cached.
func ResolveWallets(ctx context.Context, h *Handle, custom resources.CustomConfig) (*OperatorWallets, error) {
	if h == nil || h.EscrowUserID.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "escrow operator user not configured")
	}
	wallets, err := h.Client.GetUserWallets(ctx, h.EscrowUserID)
	if err != nil {
		return nil, h.Wrap("Users.getWallets", err)
	}

	escrowLabel, shippingLabel, advLabel := custom.WalletLabels()
	out := &OperatorWallets{UserID: h.EscrowUserID}
	for i := range wallets {
		description := strings.ToLower(wallets[i].Description)
		switch {
		case out.Escrow == nil && strings.Contains(description, escrowLabel):
			out.Escrow = &wallets[i]
		case out.Shipping == nil && strings.Contains(description, shippingLabel):
			out.Shipping = &wallets[i]
		case out.Adv == nil && strings.Contains(description, advLabel):
			out.Adv = &wallets[i]
		}
	}
	return out, nil
}

// Require fails with a dependency error when a role wallet is missing.
func (w *OperatorWallets) Require(role string) (*mangopay.Wallet, error) {
	var wallet *mangopay.Wallet
	switch role {
	case "escrow":
		wallet = w.Escrow
	case "shipping":
		wallet = w.Shipping
	case "adv":
		wallet = w.Adv
	}
	if wallet == nil || wallet.ID.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, role+" wallet not found on escrow operator")
	}
	return wallet, nil
}
