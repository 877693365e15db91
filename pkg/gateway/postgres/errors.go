package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/lib/pq"
)

const (
	codeInsufficientPrivilege pq.ErrorCode = "42501"
	codeInvalidObjectDef      pq.ErrorCode = "42P17"
	codeUndefinedTable        pq.ErrorCode = "42P01"
)

// classify wraps err with the gateway sentinel matching its cause.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, gateway.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case strings.Contains(pqErr.Message, "infinite recursion") || pqErr.Code == codeInvalidObjectDef:
			return fmt.Errorf("%s: %w: %s", op, gateway.ErrPolicyRecursion, pqErr.Message)
		case pqErr.Code == codeInsufficientPrivilege:
			return fmt.Errorf("%s: %w: %s", op, gateway.ErrPermissionDenied, pqErr.Message)
		case pqErr.Code == codeUndefinedTable:
			return fmt.Errorf("%s: %w: %s", op, gateway.ErrNotFound, pqErr.Message)
		}
		return fmt.Errorf("%s: %w: %s (%s)", op, gateway.ErrRemote, pqErr.Message, pqErr.Code.Name())
	}
	return fmt.Errorf("%s: %w: %v", op, gateway.ErrRemote, err)
}
