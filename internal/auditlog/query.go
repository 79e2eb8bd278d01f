package auditlog

import (
	"fmt"
	"strings"
	"time"

	"veritrail/pkg/domain"
)

// Filters narrows an audit log listing. Zero values mean "no filter".
type Filters struct {
	TableName  string
	UserID     *domain.UserID
	ActionType string
	From       *time.Time
	To         *time.Time
}

// Page controls listing pagination.
type Page struct {
	Size   int
	Offset int
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (p Page) normalize() Page {
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

const entryColumns = `sequence_number, tenant_id, table_name, record_id, operation,
	action_type, old_data, new_data, user_id, justification,
	ip_address, session_id, created_at, retention_expires_at`

// buildListQuery assembles the tenant-scoped listing statement. The
// explicit tenant predicate is the secondary isolation control; the
// server-side row-security policy is the primary.
func buildListQuery(tenantID domain.TenantID, f Filters, p Page) (string, []any) {
	p = p.normalize()

	var b strings.Builder
	b.WriteString("SELECT " + entryColumns + "\nFROM audit_log\nWHERE tenant_id = $1")
	args := []any{tenantID.String()}

	appendCond := func(cond string, arg any) {
		args = append(args, arg)
		b.WriteString(fmt.Sprintf("\n  AND "+cond, len(args)))
	}

	if f.TableName != "" {
		appendCond("table_name = $%d", f.TableName)
	}
	if f.UserID != nil {
		appendCond("user_id = $%d", f.UserID.String())
	}
	if f.ActionType != "" {
		appendCond("action_type = $%d", f.ActionType)
	}
	if f.From != nil {
		appendCond("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		appendCond("created_at <= $%d", *f.To)
	}

	args = append(args, p.Size)
	b.WriteString(fmt.Sprintf("\nORDER BY sequence_number DESC\nLIMIT $%d", len(args)))
	args = append(args, p.Offset)
	b.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))

	return b.String(), args
}
