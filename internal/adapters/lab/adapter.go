package lab

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/rs/zerolog"

	"github.com/colitas-felices/clinic/internal/clinical/domain"
	"github.com/colitas-felices/clinic/internal/shared/config"
	"github.com/colitas-felices/clinic/internal/shared/events"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Store is the slice of the clinical repository the adapter needs.
type Store interface {
	HasResultWithExternalRef(ctx context.Context, ref string) (bool, error)
	FindOrder(ctx context.Context, id types.ID) (*domain.ServiceOrder, error)
	PetForOrder(ctx context.Context, orderID types.ID) (types.ID, error)
	CreateResult(ctx context.Context, res *domain.ServiceResult, o *domain.ServiceOrder, petID types.ID) error
}

// Adapter imports finished test results from the external laboratory's
// SQL Server into the clinical workflow. Results are matched to service
// orders by the order ID the lab echoes back, and deduplicated by the
// lab's own result reference.
type Adapter struct {
	db   *sql.DB
	cfg  config.LabConfig
	repo Store
	bus  events.EventBus
	log  zerolog.Logger

	running  bool
	mu       sync.RWMutex
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

func New(cfg config.LabConfig, repo Store, bus events.EventBus, log zerolog.Logger) *Adapter {
	return &Adapter{
		cfg:  cfg,
		repo: repo,
		bus:  bus,
		log:  log.With().Str("component", "lab-adapter").Logger(),
	}
}

// Start opens the connection to the laboratory database and begins
// polling for finished tests.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("lab adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.cfg.Host, a.cfg.Port, a.cfg.Database, a.cfg.User, a.cfg.Password)
	if a.cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("opening lab database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pinging lab database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.cfg.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	a.log.Info().
		Str("host", a.cfg.Host).
		Dur("interval", a.cfg.PollInterval).
		Msg("lab adapter started")
	return nil
}

// Stop halts polling and closes the connection.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if a.db != nil {
		a.db.Close()
	}
	a.running = false
	a.log.Info().Msg("lab adapter stopped")
	return nil
}

// Health checks laboratory database connectivity.
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("lab adapter not running")
	}
	return a.db.PingContext(ctx)
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			since := a.lastPoll
			a.lastPoll = time.Now()
			a.mu.Unlock()

			if err := a.pollResults(ctx, since); err != nil {
				a.log.Error().Err(err).Msg("polling lab results")
			}
		}
	}
}

// pollResults imports finished tests reported since the previous poll.
func (a *Adapter) pollResults(ctx context.Context, since time.Time) error {
	query := fmt.Sprintf(`
		SELECT ResultID, OrderRef, TestName, ResultText, ReportedAt
		FROM %s
		WHERE ReportedAt > @since
		ORDER BY ReportedAt ASC`, a.cfg.ResultsTable)

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return fmt.Errorf("querying finished tests: %w", err)
	}
	defer rows.Close()

	imported := 0
	for rows.Next() {
		var resultID, orderRef, testName string
		var resultText sql.NullString
		var reportedAt time.Time
		if err := rows.Scan(&resultID, &orderRef, &testName, &resultText, &reportedAt); err != nil {
			a.log.Warn().Err(err).Msg("scanning finished test row")
			continue
		}

		if err := a.importResult(ctx, resultID, orderRef, testName, resultText.String, reportedAt); err != nil {
			a.log.Warn().Err(err).
				Str("result_id", resultID).
				Str("order_ref", orderRef).
				Msg("importing lab result")
			continue
		}
		imported++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading finished tests: %w", err)
	}

	if imported > 0 {
		a.log.Info().Int("imported", imported).Msg("lab results imported")
	}
	return nil
}

func (a *Adapter) importResult(ctx context.Context, resultID, orderRef, testName, resultText string, reportedAt time.Time) error {
	seen, err := a.repo.HasResultWithExternalRef(ctx, resultID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	orderID, err := types.ParseID(orderRef)
	if err != nil {
		return fmt.Errorf("lab order reference is not a valid order ID: %w", err)
	}
	order, err := a.repo.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.Complete(); err != nil {
		// Already closed; drop the result rather than reopening the
		// order.
		return nil
	}

	description := testName
	if resultText != "" {
		description = testName + ": " + resultText
	}
	result := domain.NewLabResult(order.ID, description, resultID, reportedAt)

	petID, err := a.repo.PetForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if err := a.repo.CreateResult(ctx, result, order, petID); err != nil {
		return err
	}

	if a.bus != nil {
		_ = a.bus.Publish(ctx, events.NewEvent("resultado.importado", "lab", result))
	}
	return nil
}
