// Command erpcore-demo exercises the command-and-query core end to end:
// inventory and invoice dispatch, an optimistic-concurrency conflict,
// tenant isolation, idempotent projection replay, and the job executor's
// retry/DLQ path. Grounded on the teacher's examples/multitenant/main.go
// narration style.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"erpcore/pkg/config"
	"erpcore/pkg/dispatcher"
	"erpcore/pkg/eventbus"
	"erpcore/pkg/eventstore"
	"erpcore/pkg/inventory"
	"erpcore/pkg/invoicing"
	"erpcore/pkg/jobs"
	"erpcore/pkg/kernel"
	"erpcore/pkg/projection"
	"erpcore/pkg/readmodels"
	"erpcore/pkg/runner"

	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, bus, sideDB, closeFn := buildBackends(cfg)
	defer closeFn()

	disp := dispatcher.New(store, bus)
	ctx := context.Background()

	tenantA := kernel.NewTenantID()
	tenantB := kernel.NewTenantID()

	fmt.Println("=== Inventory: create then adjust ===")
	itemID := kernel.NewAggregateID()
	mustDispatch(ctx, disp, tenantA, itemID, inventory.AggregateType, inventory.CreateItem{Name: "Widget"}, inventory.New)
	mustDispatch(ctx, disp, tenantA, itemID, inventory.AggregateType, inventory.AdjustStock{Delta: 10}, inventory.New)
	mustDispatch(ctx, disp, tenantA, itemID, inventory.AggregateType, inventory.AdjustStock{Delta: -3}, inventory.New)
	fmt.Printf("item %s now has stock reflecting +10-3 (see read model below)\n\n", itemID)

	fmt.Println("=== Optimistic concurrency: two racing adjustments ===")
	demoConcurrencyConflict(ctx, disp, tenantA, itemID)
	fmt.Println()

	fmt.Println("=== Tenant isolation: same aggregate id, different tenant ===")
	demoTenantIsolation(ctx, disp, tenantA, tenantB, itemID)
	fmt.Println()

	fmt.Println("=== Invoicing: issue, partial payment, final payment ===")
	invoiceID := demoInvoiceLifecycle(ctx, disp, tenantA)
	fmt.Println()

	fmt.Println("=== Projections: idempotent replay from scratch ===")
	demoProjectionRebuild(ctx, store, sideDB, tenantA, itemID, invoiceID)
	fmt.Println()

	fmt.Println("=== Job executor: retry then dead-letter ===")
	demoJobExecutor(ctx)
}

func buildBackends(cfg config.Config) (eventstore.EventStore, eventbus.EventBus, *sql.DB, func()) {
	if !cfg.UsePersistentStores {
		return eventstore.NewMemoryStore(), eventbus.NewMemoryBus(), nil, func() {}
	}

	store, err := eventstore.NewSQLiteStore(eventstore.WithDSN(cfg.DatabaseURL), eventstore.WithWALMode(true))
	if err != nil {
		log.Fatalf("open event store: %v", err)
	}
	bus, err := eventbus.NewNATSBus(func() eventbus.NATSConfig {
		c := eventbus.DefaultNATSConfig()
		c.URL = cfg.StreamURL
		return c
	}())
	if err != nil {
		log.Fatalf("connect event bus: %v", err)
	}
	sideDB, err := sql.Open("sqlite", cfg.DatabaseURL+"-side")
	if err != nil {
		log.Fatalf("open side database: %v", err)
	}
	return store, bus, sideDB, func() {
		_ = store.Close()
		_ = bus.Close()
		_ = sideDB.Close()
	}
}

func mustDispatch(ctx context.Context, d *dispatcher.Dispatcher, tenant kernel.TenantID, id kernel.AggregateID, aggType string, cmd any, factory dispatcher.Factory) {
	if _, err := d.Dispatch(ctx, tenant, id, aggType, cmd, factory); err != nil {
		log.Fatalf("dispatch %T: %v", cmd, err)
	}
}

func demoConcurrencyConflict(ctx context.Context, d *dispatcher.Dispatcher, tenant kernel.TenantID, itemID kernel.AggregateID) {
	var wg sync.WaitGroup
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(delta int64) {
			defer wg.Done()
			_, err := d.Dispatch(ctx, tenant, itemID, inventory.AggregateType, inventory.AdjustStock{Delta: delta}, inventory.New)
			results <- err
		}(int64(i + 1))
	}
	wg.Wait()
	close(results)

	succeeded, conflicted := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if de, ok := err.(*dispatcher.DispatchError); ok && de.Kind == dispatcher.KindConcurrency {
			conflicted++
		} else if err != nil {
			log.Fatalf("unexpected dispatch error: %v", err)
		}
	}
	fmt.Printf("racing adjustments: %d succeeded on first try, %d hit the expected-version guard\n", succeeded, conflicted)

	if conflicted > 0 {
		_, err := d.Dispatch(ctx, tenant, itemID, inventory.AggregateType, inventory.AdjustStock{Delta: 1}, inventory.New)
		if err != nil {
			log.Fatalf("retry after conflict: %v", err)
		}
		fmt.Println("retry after rehydrating from the fresh version succeeded")
	}
}

func demoTenantIsolation(ctx context.Context, d *dispatcher.Dispatcher, tenantA, tenantB kernel.TenantID, sharedID kernel.AggregateID) {
	// tenantB has never written to sharedID, so dispatching here starts a
	// brand-new stream rather than colliding with tenantA's history.
	mustDispatch(ctx, d, tenantB, sharedID, inventory.AggregateType, inventory.CreateItem{Name: "Widget (tenant B copy)"}, inventory.New)
	fmt.Printf("tenant A and tenant B both have an item at id %s with independent streams\n", sharedID)
}

func demoInvoiceLifecycle(ctx context.Context, d *dispatcher.Dispatcher, tenant kernel.TenantID) kernel.AggregateID {
	invoiceID := kernel.NewAggregateID()
	partyID := kernel.NewAggregateID()

	mustDispatch(ctx, d, tenant, invoiceID, invoicing.AggregateType, invoicing.IssueInvoice{
		PartyID: partyID,
		Lines:   []invoicing.CommandLine{{Quantity: 2, UnitPrice: decimal.NewFromFloat(49.99)}},
		DueDate: time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339),
	}, invoicing.New)

	mustDispatch(ctx, d, tenant, invoiceID, invoicing.AggregateType, invoicing.RegisterPayment{Amount: decimal.NewFromFloat(50.00)}, invoicing.New)
	fmt.Println("invoice issued for 99.98, partial payment of 50.00 registered (still open)")

	mustDispatch(ctx, d, tenant, invoiceID, invoicing.AggregateType, invoicing.RegisterPayment{Amount: decimal.NewFromFloat(49.98)}, invoicing.New)
	fmt.Println("final payment registered, invoice transitions to paid")

	return invoiceID
}

func demoProjectionRebuild(ctx context.Context, store eventstore.EventStore, sideDB *sql.DB, tenant kernel.TenantID, itemID, invoiceID kernel.AggregateID) {
	stockProjection := readmodels.NewInventoryStockProjection()
	var cursors projection.CursorStore = projection.NewMemoryCursorStore()
	if sideDB != nil {
		sqliteCursors, err := projection.NewSQLiteCursorStore(sideDB)
		if err != nil {
			log.Fatalf("cursor store: %v", err)
		}
		cursors = sqliteCursors
	}
	engine := projection.NewEngine(stockProjection, cursors)

	itemEvents, err := store.LoadStream(ctx, tenant, itemID)
	if err != nil {
		log.Fatalf("load inventory stream: %v", err)
	}
	envelopes := make([]eventstore.Envelope, len(itemEvents))
	for i, e := range itemEvents {
		envelopes[i] = e.Envelope
	}

	// Apply twice to demonstrate idempotent replay: the second pass must not
	// double the quantity.
	for _, env := range envelopes {
		if err := engine.Handle(ctx, env); err != nil {
			log.Fatalf("apply envelope: %v", err)
		}
	}
	for _, env := range envelopes {
		if err := engine.Handle(ctx, env); err != nil {
			log.Fatalf("re-apply envelope: %v", err)
		}
	}

	row, _ := stockProjection.Get(tenant, itemID)
	fmt.Printf("inventory_stock read model after double-apply: quantity=%d (idempotent)\n", row.Quantity)

	rebuildService := projection.NewRebuildService(engine, store, stockProjection)
	_, dryRunHandle := rebuildService.Start(ctx, tenant, []string{inventory.AggregateType}, true)
	if err := dryRunHandle.Wait(ctx); err != nil {
		log.Fatalf("dry-run rebuild: %v", err)
	}
	dryRunProgress := dryRunHandle.Progress()
	fmt.Printf("dry-run rebuild: total=%d applied=%d failed=%d (read model untouched)\n",
		dryRunProgress.Total, dryRunProgress.Applied, dryRunProgress.Failed)

	_, rebuildHandle := rebuildService.Start(ctx, tenant, []string{inventory.AggregateType}, false)
	if err := rebuildHandle.Wait(ctx); err != nil {
		log.Fatalf("streaming rebuild: %v", err)
	}
	rebuiltRow, _ := stockProjection.Get(tenant, itemID)
	fmt.Printf("streamed rebuild from the event store: quantity=%d, progress=%+v\n", rebuiltRow.Quantity, rebuildHandle.Progress())

	openInvoices := readmodels.NewOpenInvoicesProjection()
	invoiceEngine := projection.NewEngine(openInvoices, projection.NewMemoryCursorStore())
	invoiceEvents, err := store.LoadStream(ctx, tenant, invoiceID)
	if err != nil {
		log.Fatalf("load invoice stream: %v", err)
	}
	for _, e := range invoiceEvents {
		if err := invoiceEngine.Handle(ctx, e.Envelope); err != nil {
			log.Fatalf("apply invoice envelope: %v", err)
		}
	}
	fmt.Printf("open_invoices after full payment: %d rows (invoice dropped once paid)\n", len(openInvoices.List(tenant)))
}

func demoJobExecutor(ctx context.Context) {
	logger := runner.NewSlogLogger(slog.Default())
	store := jobs.NewMemoryStore()
	tenant := kernel.NewTenantID()
	executor := jobs.NewExecutor(store, jobs.ExecutorConfig{
		PollInterval:  10 * time.Millisecond,
		MaxConcurrent: 2,
		Name:          "demo-job-executor",
		TenantID:      tenant,
	})

	var attempts int
	executor.RegisterHandler("always_fails", func(_ context.Context, job jobs.Job) jobs.Result {
		attempts++
		return jobs.Failure(fmt.Errorf("simulated failure on attempt %d", job.Attempt))
	})

	job := jobs.New(tenant, "always_fails", nil).WithRetryPolicy(jobs.FixedRetryPolicy(2, 5*time.Millisecond))
	if err := store.Enqueue(ctx, job); err != nil {
		log.Fatalf("enqueue job: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_ = executor.Run(runCtx)

	stats := executor.Stats()
	dlq, _ := store.ListDeadLetters(ctx, tenant)
	logger.Info("job executor finished", "attempts", attempts, "processed", stats.JobsProcessed, "dead_lettered", len(dlq))
	fmt.Printf("job attempted %d times then moved to the dead-letter queue (%d entries)\n", attempts, len(dlq))
}
