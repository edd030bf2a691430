package lab

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/colitas-felices/clinic/internal/clinical/domain"
	"github.com/colitas-felices/clinic/internal/shared/config"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

type fakeStore struct {
	orders  map[types.ID]*domain.ServiceOrder
	petID   types.ID
	results []*domain.ServiceResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[types.ID]*domain.ServiceOrder),
		petID:  types.NewID(),
	}
}

func (f *fakeStore) HasResultWithExternalRef(_ context.Context, ref string) (bool, error) {
	for _, res := range f.results {
		if res.ExternalRef != nil && *res.ExternalRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FindOrder(_ context.Context, id types.ID) (*domain.ServiceOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, errors.NotFound("servicio solicitado", id.String())
	}
	copy := *o
	return &copy, nil
}

func (f *fakeStore) PetForOrder(_ context.Context, _ types.ID) (types.ID, error) {
	return f.petID, nil
}

func (f *fakeStore) CreateResult(_ context.Context, res *domain.ServiceResult, o *domain.ServiceOrder, _ types.ID) error {
	f.results = append(f.results, res)
	f.orders[o.ID] = o
	return nil
}

func testAdapter(store Store) *Adapter {
	return New(config.LabConfig{
		ResultsTable: "dbo.FinishedTests",
		PollInterval: time.Minute,
	}, store, nil, zerolog.Nop())
}

func TestImportResult(t *testing.T) {
	store := newFakeStore()
	order, err := domain.NewServiceOrder(types.NewID(), types.NewID(), domain.PriorityNormal, "hemograma")
	if err != nil {
		t.Fatalf("seeding order: %v", err)
	}
	store.orders[order.ID] = order

	a := testAdapter(store)
	err = a.importResult(context.Background(), "LAB-001", order.ID.String(), "Hemograma", "leucocitos 9.2", time.Now())
	if err != nil {
		t.Fatalf("importResult: %v", err)
	}

	if len(store.results) != 1 {
		t.Fatalf("stored results = %d, want 1", len(store.results))
	}
	res := store.results[0]
	if res.Origin != domain.ResultOriginLab {
		t.Errorf("origin = %q, want %q", res.Origin, domain.ResultOriginLab)
	}
	if res.Description != "Hemograma: leucocitos 9.2" {
		t.Errorf("description = %q", res.Description)
	}
	if store.orders[order.ID].Status != domain.OrderCompleted {
		t.Errorf("order status = %q, want %q", store.orders[order.ID].Status, domain.OrderCompleted)
	}
}

func TestImportResultDeduplicates(t *testing.T) {
	store := newFakeStore()
	order, _ := domain.NewServiceOrder(types.NewID(), types.NewID(), domain.PriorityNormal, "")
	store.orders[order.ID] = order

	a := testAdapter(store)
	for i := 0; i < 2; i++ {
		// The second run sees the stored external ref; the completed
		// order would otherwise reject the import.
		if err := a.importResult(context.Background(), "LAB-002", order.ID.String(), "Urianalisis", "", time.Now()); err != nil {
			t.Fatalf("importResult run %d: %v", i, err)
		}
	}

	if len(store.results) != 1 {
		t.Errorf("stored results = %d, want 1", len(store.results))
	}
}

func TestImportResultSkipsClosedOrder(t *testing.T) {
	store := newFakeStore()
	order, _ := domain.NewServiceOrder(types.NewID(), types.NewID(), domain.PriorityNormal, "")
	if err := order.Cancel(); err != nil {
		t.Fatalf("cancelling order: %v", err)
	}
	store.orders[order.ID] = order

	a := testAdapter(store)
	if err := a.importResult(context.Background(), "LAB-003", order.ID.String(), "Radiografia", "", time.Now()); err != nil {
		t.Fatalf("importResult: %v", err)
	}
	if len(store.results) != 0 {
		t.Errorf("stored results = %d, want 0", len(store.results))
	}
}

func TestImportResultRejectsBadOrderRef(t *testing.T) {
	a := testAdapter(newFakeStore())
	if err := a.importResult(context.Background(), "LAB-004", "not-a-uuid", "Hemograma", "", time.Now()); err == nil {
		t.Error("bad order reference should fail")
	}
}
