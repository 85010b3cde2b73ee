package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// SponsorshipFact is one activated or stopped sponsorship placement.
type SponsorshipFact struct {
	FactID      string    `bigquery:"fact_id"`
	Type        string    `bigquery:"type"`
	PlatformID  string    `bigquery:"platform_id"`
	PlatformEnv string    `bigquery:"platform_env"`
	AssetID     string    `bigquery:"asset_id"`
	UserID      string    `bigquery:"user_id"`
	Placement   string    `bigquery:"placement"`
	PayInID     string    `bigquery:"payin_id"`
	UnitAmount  int64     `bigquery:"unit_amount"`
	Currency    string    `bigquery:"currency"`
	ActiveFrom  time.Time `bigquery:"active_from"`
	ActiveTo    time.Time `bigquery:"active_to"`
	OccurredAt  time.Time `bigquery:"occurred_at"`
}

// Save implements bigquery.ValueSaver so the fact id doubles as the insert id.
func (f *SponsorshipFact) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"fact_id":      f.FactID,
		"type":         f.Type,
		"platform_id":  f.PlatformID,
		"platform_env": f.PlatformEnv,
		"placement":    f.Placement,
		"payin_id":     f.PayInID,
		"unit_amount":  f.UnitAmount,
		"currency":     f.Currency,
		"active_from":  f.ActiveFrom,
		"active_to":    f.ActiveTo,
		"occurred_at":  f.OccurredAt,
	}
	if f.AssetID != "" {
		row["asset_id"] = f.AssetID
	}
	if f.UserID != "" {
		row["user_id"] = f.UserID
	}
	return row, f.FactID, nil
}

// RetryPolicy controls how many times inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// SponsorshipWriter inserts sponsorship facts with bounded retries.
type SponsorshipWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
	sleep  func(context.Context, time.Duration) error
}

// NewSponsorshipWriter builds a writer for the configured facts table.
func NewSponsorshipWriter(client tableInserter, table string, retry RetryPolicy) (*SponsorshipWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errNoTable
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = defaultMaximumBackoff
		if retry.MaximumBackoff < retry.InitialBackoff {
			retry.MaximumBackoff = retry.InitialBackoff
		}
	}
	return &SponsorshipWriter{client: client, table: table, retry: retry, sleep: sleepCtx}, nil
}

// WriteFacts inserts all facts in one streaming request.
func (w *SponsorshipWriter) WriteFacts(ctx context.Context, facts []SponsorshipFact) error {
	if len(facts) == 0 {
		return nil
	}
	rows := make([]any, len(facts))
	for i := range facts {
		rows[i] = &facts[i]
	}

	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !isRetryable(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}
		if err := w.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > w.retry.MaximumBackoff {
			backoff = w.retry.MaximumBackoff
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			for _, inner := range rowErr.Errors {
				if !isRetryable(inner) {
					return false
				}
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
				return true
			}
		}
	}
	return false
}
