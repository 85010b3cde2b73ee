package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
)

// Diagnostics is the log-only view of an error: the typed code, the unwrap
// chain and whatever the database or an upstream API reported.
type Diagnostics struct {
	Message    string
	Code       Code
	HTTPStatus int
	Chain      []string

	Postgres *PostgresDetail
	Upstream *UpstreamDetail
}

type PostgresDetail struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
}

// UpstreamDetail describes a non-2xx answer from Mangopay or the marketplace.
type UpstreamDetail struct {
	Service string
	Status  int
	Type    string
}

func Dump(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.HTTPStatus = typed.HTTPStatus()
	}
	for cur := err; cur != nil; cur = stdErrors.Unwrap(cur) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}
	d.Postgres = postgresDetail(err)
	d.Upstream = upstreamDetail(err)
	return d
}

// Fields flattens the diagnostics for structured logging.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		fields["pg_constraint"] = pg.Constraint
		fields["pg_detail"] = pg.Detail
	}
	if up := d.Upstream; up != nil {
		fields["upstream"] = up.Service
		fields["upstream_status"] = up.Status
		if up.Type != "" {
			fields["upstream_type"] = up.Type
		}
	}
	return fields
}

func postgresDetail(err error) *PostgresDetail {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &PostgresDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &PostgresDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
		}
	}
	return nil
}

func upstreamDetail(err error) *UpstreamDetail {
	var mpErr *mangopay.APIError
	if stdErrors.As(err, &mpErr) {
		return &UpstreamDetail{Service: "mangopay", Status: mpErr.StatusCode, Type: mpErr.Type}
	}
	if mkErr, ok := marketplace.AsAPIError(err); ok {
		return &UpstreamDetail{Service: "marketplace", Status: mkErr.StatusCode}
	}
	return nil
}
