package tenantscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritrail/internal/actor"
	"veritrail/internal/tenantscope/metrics"
	dErrors "veritrail/pkg/domain-errors"
	txcontext "veritrail/pkg/platform/tx"
	"veritrail/pkg/requestcontext"
)

// tenantSetting is the transaction-local server setting the schema's
// row-security policies consult. It is set with set_config(..., true) so it
// cannot survive the transaction and leak across pooled connections.
const tenantSetting = "app.tenant_id"

// defaultScopeTimeout bounds a scope when the caller set no deadline.
const defaultScopeTimeout = 5 * time.Second

// SecurityReporter receives isolation violations for out-of-band security
// auditing. The report happens after the violating transaction has rolled
// back, never inside it.
type SecurityReporter interface {
	IsolationViolation(ctx context.Context, a actor.Context, table string)
}

// Manager opens tenant scopes over a pgx pool.
type Manager struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	metrics  *metrics.Metrics
	security SecurityReporter
	tracer   trace.Tracer
	timeout  time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics attaches scope metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithSecurityReporter attaches the out-of-band violation sink.
func WithSecurityReporter(r SecurityReporter) Option {
	return func(mgr *Manager) { mgr.security = r }
}

// WithTimeout overrides the default scope timeout.
func WithTimeout(d time.Duration) Option {
	return func(mgr *Manager) { mgr.timeout = d }
}

// NewManager constructs a scope manager.
func NewManager(pool *pgxpool.Pool, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	mgr := &Manager{
		pool:    pool,
		logger:  logger,
		tracer:  otel.Tracer("veritrail/tenantscope"),
		timeout: defaultScopeTimeout,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr, nil
}

// WithTenantScope executes fn inside one database transaction bound to the
// actor's tenant. Before fn runs, the tenant marker is applied as a
// transaction-local setting and read back; if it cannot be applied and
// verified, the scope refuses to proceed. Any error from fn rolls back the
// entire transaction, so partial audit writes or partial state changes are
// never possible. An isolation violation additionally triggers a
// best-effort security report outside the failed transaction.
func (m *Manager) WithTenantScope(ctx context.Context, a actor.Context, fn func(ctx context.Context, s Scope) error) error {
	if err := a.Validate(); err != nil {
		return err
	}

	start := time.Now()
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	ctx, span := m.tracer.Start(ctx, "tenantscope.WithTenantScope",
		trace.WithAttributes(attribute.String("tenant.id", a.TenantID.String())))
	defer span.End()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		m.metrics.ObserveOutcome("refused", time.Since(start))
		return dErrors.Wrap(err, dErrors.CodeTimeout, "could not open tenant scope")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := m.bindTenant(ctx, tx, a); err != nil {
		m.metrics.ObserveOutcome("refused", time.Since(start))
		return err
	}

	scope := &pgxScope{actr: a, tx: tx}
	workCtx := requestcontext.WithActor(txcontext.WithTx(ctx, tx), a)

	if err := fn(workCtx, scope); err != nil {
		m.metrics.ObserveOutcome("rolled_back", time.Since(start))
		if errors.Is(err, ErrIsolationViolation) {
			m.reportViolation(ctx, a, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		m.metrics.ObserveOutcome("rolled_back", time.Since(start))
		return dErrors.Wrap(err, dErrors.CodeInternal, "tenant scope commit failed")
	}
	m.metrics.ObserveOutcome("committed", time.Since(start))
	return nil
}

// bindTenant applies and verifies the transaction-local tenant marker.
// This is the single most safety-critical step in the subsystem: if the
// marker cannot be proven to be in place, no tenant-scoped statement runs.
func (m *Manager) bindTenant(ctx context.Context, tx pgx.Tx, a actor.Context) error {
	want := a.TenantID.String()

	var applied string
	if err := tx.QueryRow(ctx, `SELECT set_config($1, $2, true)`, tenantSetting, want).Scan(&applied); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not bind tenant to transaction")
	}

	var got string
	if err := tx.QueryRow(ctx, `SELECT current_setting($1, true)`, tenantSetting).Scan(&got); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify tenant binding")
	}
	if got != want {
		// A pooled connection surfaced a stale or foreign marker. Refuse.
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant binding verification failed")
	}
	return nil
}

// reportViolation logs and publishes the security incident. It runs after
// the violating transaction rolled back and never includes the foreign
// tenant's identity, only the scope's own tenant and the offending table.
func (m *Manager) reportViolation(ctx context.Context, a actor.Context, err error) {
	m.metrics.IncrementIsolationViolations()

	var ive *IsolationViolationError
	table := ""
	if errors.As(err, &ive) {
		table = ive.Table
	}

	m.logger.ErrorContext(ctx, "tenant isolation violation",
		"tenant_id", a.TenantID.String(),
		"user_id", a.UserID.String(),
		"table", table,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "security",
	)

	if m.security != nil {
		m.security.IsolationViolation(ctx, a, table)
	}
}
