package enums

// TransactionStatus is the marketplace transaction state the payment
// workflows move through. The failed states may be retried in place.
type TransactionStatus string

const (
	TransactionStatusDraft          TransactionStatus = "draft"
	TransactionStatusPendingPayment TransactionStatus = "pending-payment"
	TransactionStatusEscrowHeld     TransactionStatus = "escrow-held"
	TransactionStatusSettled        TransactionStatus = "settled"
	TransactionStatusFailedPreauth  TransactionStatus = "failed-preauth"
	TransactionStatusFailedPayIn    TransactionStatus = "failed-payin"
)

var transactionStatuses = []TransactionStatus{
	TransactionStatusDraft,
	TransactionStatusPendingPayment,
	TransactionStatusEscrowHeld,
	TransactionStatusSettled,
	TransactionStatusFailedPreauth,
	TransactionStatusFailedPayIn,
}

func (s TransactionStatus) String() string { return string(s) }

func (s TransactionStatus) IsValid() bool { return member(transactionStatuses, s) }

// In reports whether s is one of statuses.
func (s TransactionStatus) In(statuses ...TransactionStatus) bool { return member(statuses, s) }

func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	return parse(transactionStatuses, raw, "transaction status")
}
