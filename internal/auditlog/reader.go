package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"veritrail/internal/auditlog/metrics"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
)

// gapChunkSize bounds how many candidate sequence numbers a single scan or
// ownership probe handles at once.
const gapChunkSize = 10000

// Reader is the paginated, filterable query surface over the audit log for
// a single tenant. Every result row is asserted to belong to the queried
// tenant before being returned.
type Reader struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderMetrics attaches audit metrics.
func WithReaderMetrics(m *metrics.Metrics) ReaderOption {
	return func(r *Reader) { r.metrics = m }
}

// NewReader constructs an audit reader. The pool is used only by the gap
// detector's ownership probe, which must run outside a tenant scope.
func NewReader(pool *pgxpool.Pool, logger *slog.Logger, opts ...ReaderOption) (*Reader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	r := &Reader{pool: pool, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ListEntries returns one tenant's entries ordered by sequence number
// descending.
func (r *Reader) ListEntries(ctx context.Context, scope tenantscope.Scope, f Filters, p Page) ([]Entry, error) {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return nil, err
	}

	query, args := buildListQuery(scope.TenantID(), f, p)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows, scope)
}

// DistinctTableNames returns the tenant's distinct audited table names for
// building filter UIs.
func (r *Reader) DistinctTableNames(ctx context.Context, scope tenantscope.Scope) ([]string, error) {
	return r.distinct(ctx, scope,
		`SELECT DISTINCT table_name FROM audit_log WHERE tenant_id = $1 ORDER BY table_name`)
}

// DistinctActionTypes returns the tenant's distinct action types for
// building filter UIs.
func (r *Reader) DistinctActionTypes(ctx context.Context, scope tenantscope.Scope) ([]string, error) {
	return r.distinct(ctx, scope,
		`SELECT DISTINCT action_type FROM audit_log WHERE tenant_id = $1 AND action_type IS NOT NULL ORDER BY action_type`)
}

func (r *Reader) distinct(ctx context.Context, scope tenantscope.Scope, query string) ([]string, error) {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, scope.TenantID().String())
	if err != nil {
		return nil, fmt.Errorf("query audit facets: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan audit facet: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit facets: %w", err)
	}
	return values, nil
}

// GapReport is the result of one gap detection run: every sequence number
// in the tenant's observed range that exists nowhere in the whole log.
// Sequence numbers held by other tenants are not gaps and are excluded.
// The report is a read-only compliance diagnostic; it never blocks writes.
type GapReport struct {
	TenantID    domain.TenantID `json:"tenant_id"`
	MinSequence uint64          `json:"min_sequence"`
	MaxSequence uint64          `json:"max_sequence"`
	Missing     []uint64        `json:"missing"`
	CheckedAt   time.Time       `json:"checked_at"`
}

// HasGaps reports whether any sequence number was removed out-of-band.
func (g *GapReport) HasGaps() bool { return len(g.Missing) > 0 }

// DetectGaps proves no row in the tenant's sequence range was deleted or
// skipped. It scans the tenant's min..max range inside the scope for
// numbers with no row for that tenant, then probes those candidates against
// the whole log via the schema's existence function: a candidate that
// exists globally belongs to another tenant and is legitimate; a candidate
// absent from the entire log is a true gap.
func (r *Reader) DetectGaps(ctx context.Context, scope tenantscope.Scope) (*GapReport, error) {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return nil, err
	}

	report := &GapReport{TenantID: scope.TenantID(), CheckedAt: time.Now().UTC()}

	var minSeq, maxSeq *uint64
	err = tx.QueryRow(ctx,
		`SELECT MIN(sequence_number), MAX(sequence_number) FROM audit_log WHERE tenant_id = $1`,
		scope.TenantID().String(),
	).Scan(&minSeq, &maxSeq)
	if err != nil {
		return nil, fmt.Errorf("query sequence range: %w", err)
	}
	if minSeq == nil || maxSeq == nil {
		r.metrics.ObserveGapCheck(0)
		return report, nil
	}
	report.MinSequence, report.MaxSequence = *minSeq, *maxSeq

	candidates, err := r.missingForTenant(ctx, tx, scope.TenantID(), *minSeq, *maxSeq)
	if err != nil {
		return nil, err
	}

	missing, err := r.probeOwnership(ctx, candidates)
	if err != nil {
		return nil, err
	}
	report.Missing = missing

	r.metrics.ObserveGapCheck(len(missing))
	if report.HasGaps() {
		r.logger.WarnContext(ctx, "audit sequence gap detected",
			"tenant_id", report.TenantID.String(),
			"missing_count", len(report.Missing),
			"log_type", "compliance",
		)
	}
	return report, nil
}

// missingForTenant walks the tenant's range in chunks and collects every
// sequence number with no row for this tenant. Runs inside the scope, so
// the join only ever sees the tenant's own rows.
func (r *Reader) missingForTenant(ctx context.Context, tx pgx.Tx, tenantID domain.TenantID, minSeq, maxSeq uint64) ([]uint64, error) {
	var candidates []uint64
	for lo := minSeq; lo <= maxSeq; lo += gapChunkSize {
		hi := lo + gapChunkSize - 1
		if hi > maxSeq {
			hi = maxSeq
		}

		rows, err := tx.Query(ctx, `
			SELECT gs.seq
			FROM generate_series($2::bigint, $3::bigint) AS gs(seq)
			LEFT JOIN audit_log a ON a.sequence_number = gs.seq AND a.tenant_id = $1
			WHERE a.sequence_number IS NULL
			ORDER BY gs.seq`,
			tenantID.String(), int64(lo), int64(hi),
		)
		if err != nil {
			return nil, fmt.Errorf("scan sequence range: %w", err)
		}
		for rows.Next() {
			var seq int64
			if err := rows.Scan(&seq); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan candidate sequence: %w", err)
			}
			candidates = append(candidates, uint64(seq))
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate candidate sequences: %w", err)
		}
	}
	return candidates, nil
}

// probeOwnership checks candidates against the whole log, outside the
// tenant scope, using the SECURITY DEFINER function declared in the schema.
// The function reveals only whether a sequence number exists, never whose
// it is. Chunks are probed concurrently on the pool.
func (r *Reader) probeOwnership(ctx context.Context, candidates []uint64) ([]uint64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	chunks := chunkUint64(candidates, gapChunkSize)
	results := make([][]uint64, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			probe := make([]int64, len(chunk))
			for j, seq := range chunk {
				probe[j] = int64(seq)
			}

			rows, err := r.pool.Query(gctx,
				`SELECT seq FROM audit_sequence_exists($1::bigint[]) AS t(seq)`, probe)
			if err != nil {
				return fmt.Errorf("probe sequence ownership: %w", err)
			}
			defer rows.Close()

			exists := make(map[uint64]struct{}, len(chunk))
			for rows.Next() {
				var seq int64
				if err := rows.Scan(&seq); err != nil {
					return fmt.Errorf("scan probe result: %w", err)
				}
				exists[uint64(seq)] = struct{}{}
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("iterate probe results: %w", err)
			}

			var missing []uint64
			for _, seq := range chunk {
				if _, ok := exists[seq]; !ok {
					missing = append(missing, seq)
				}
			}
			results[i] = missing
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missing []uint64
	for _, part := range results {
		missing = append(missing, part...)
	}
	return missing, nil
}

func chunkUint64(values []uint64, size int) [][]uint64 {
	var chunks [][]uint64
	for len(values) > size {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}

// scanEntries scans listing rows, asserting every row's tenant against the
// scope before it may be returned.
func scanEntries(rows pgx.Rows, scope tenantscope.Scope) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry         Entry
			tenantID      uuid.UUID
			actionType    *string
			userID        *uuid.UUID
			justification *string
			ipAddress     *string
			sessionID     *string
		)
		err := rows.Scan(
			&entry.SequenceNumber,
			&tenantID,
			&entry.TableName,
			&entry.RecordID,
			&entry.Operation,
			&actionType,
			&entry.OldData,
			&entry.NewData,
			&userID,
			&justification,
			&ipAddress,
			&sessionID,
			&entry.CreatedAt,
			&entry.RetentionExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.TenantID = domain.TenantID(tenantID)
		if err := scope.AssertOwned("audit_log", entry.TenantID); err != nil {
			return nil, err
		}

		if actionType != nil {
			entry.ActionType = *actionType
		}
		if userID != nil {
			uid := domain.UserID(*userID)
			entry.UserID = &uid
		}
		if justification != nil {
			entry.Justification = *justification
		}
		if ipAddress != nil {
			entry.IPAddress = *ipAddress
		}
		if sessionID != nil {
			entry.SessionID = *sessionID
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
