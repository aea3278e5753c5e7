package errors

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DriverError is what the database driver said, whichever driver it was.
type DriverError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Table      string `json:"table,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorDump is the log-only breakdown of an error. It never reaches clients.
type ErrorDump struct {
	TopMessage string       `json:"top_message"`
	Code       Code         `json:"code,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Chain      []string     `json:"chain,omitempty"`
	DB         *DriverError `json:"db,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), DB: driverError(err)}
	if te := As(err); te != nil {
		d.Code, d.Reason = te.Code(), te.Reason()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// LogFields flattens the dump for a structured log entry.
func (d ErrorDump) LogFields() map[string]any {
	fields := map[string]any{
		"error":        d.TopMessage,
		"error_code":   d.Code,
		"error_reason": d.Reason,
		"error_chain":  d.Chain,
	}
	if d.DB != nil {
		fields["db"] = d.DB
	}
	return fields
}

func driverError(err error) *DriverError {
	if pg, ok := asTarget[*pgconn.PgError](err); ok {
		return &DriverError{Driver: "pgx", Code: pg.Code, Message: pg.Message, Table: pg.TableName, Constraint: pg.ConstraintName, Detail: pg.Detail}
	}
	if pg, ok := asTarget[*pq.Error](err); ok {
		return &DriverError{Driver: "pq", Code: string(pg.Code), Message: pg.Message, Table: pg.Table, Constraint: pg.Constraint, Detail: pg.Detail}
	}
	if lite, ok := asTarget[sqlite3.Error](err); ok {
		return &DriverError{Driver: "sqlite", Code: strconv.Itoa(int(lite.ExtendedCode)), Message: lite.Error()}
	}
	return nil
}

func asTarget[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
