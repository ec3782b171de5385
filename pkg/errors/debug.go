package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnosis is the log-only view of an error chain. It never reaches clients.
type Diagnosis struct {
	Message string
	Code    Code
	Chain   []string
	SQL     *SQLDiagnosis
}

// SQLDiagnosis carries the Postgres server fields behind a failed statement.
type SQLDiagnosis struct {
	State      string
	Table      string
	Constraint string
	Detail     string
}

func Diagnose(err error) Diagnosis {
	if err == nil {
		return Diagnosis{}
	}
	d := Diagnosis{Message: err.Error(), Code: CodeOf(err)}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.SQL = &SQLDiagnosis{State: pgxErr.Code, Table: pgxErr.TableName, Constraint: pgxErr.ConstraintName, Detail: pgxErr.Detail}
	case errors.As(err, &pqErr):
		d.SQL = &SQLDiagnosis{State: string(pqErr.Code), Table: pqErr.Table, Constraint: pqErr.Constraint, Detail: pqErr.Detail}
	}
	return d
}

// Fields flattens the diagnosis into logger fields, omitting empty ones.
func (d Diagnosis) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  string(d.Code),
		"error_chain": d.Chain,
	}
	if d.SQL == nil {
		return fields
	}
	fields["sql_state"] = d.SQL.State
	for key, value := range map[string]string{
		"sql_table":      d.SQL.Table,
		"sql_constraint": d.SQL.Constraint,
		"sql_detail":     d.SQL.Detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
