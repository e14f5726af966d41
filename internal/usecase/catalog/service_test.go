package catalog

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	"github.com/kailas-cloud/placedex/internal/repository/place"
)

type mockStore struct {
	getPOIFn           func(ctx context.Context, id string) (poi.POI, error)
	upsertPOIFn        func(ctx context.Context, p poi.POI) (place.Outcome, error)
	stalePOIsFn        func(ctx context.Context, limit int) ([]poi.POI, error)
	countStaleFn       func(ctx context.Context) (int64, error)
	incrementViewFn    func(ctx context.Context, id string) error
	upsertPredictionFn func(ctx context.Context, p prediction.Prediction) (place.Outcome, error)
}

func (m *mockStore) GetPOI(ctx context.Context, id string) (poi.POI, error) {
	if m.getPOIFn != nil {
		return m.getPOIFn(ctx, id)
	}
	return poi.POI{}, domain.ErrNotFound
}

func (m *mockStore) UpsertPOI(ctx context.Context, p poi.POI) (place.Outcome, error) {
	if m.upsertPOIFn != nil {
		return m.upsertPOIFn(ctx, p)
	}
	return place.OutcomeInserted, nil
}

func (m *mockStore) GetStalePOIs(ctx context.Context, limit int) ([]poi.POI, error) {
	if m.stalePOIsFn != nil {
		return m.stalePOIsFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockStore) CountStalePOIs(ctx context.Context) (int64, error) {
	if m.countStaleFn != nil {
		return m.countStaleFn(ctx)
	}
	return 0, nil
}

func (m *mockStore) IncrementPOIView(ctx context.Context, id string) error {
	if m.incrementViewFn != nil {
		return m.incrementViewFn(ctx, id)
	}
	return nil
}

func (m *mockStore) UpsertPrediction(ctx context.Context, p prediction.Prediction) (place.Outcome, error) {
	if m.upsertPredictionFn != nil {
		return m.upsertPredictionFn(ctx, p)
	}
	return place.OutcomeInserted, nil
}

type mockIndexer struct {
	upsertPOIsFn        func(ctx context.Context, pois []poi.POI) error
	upsertPredictionsFn func(ctx context.Context, preds []prediction.Prediction) error
}

func (m *mockIndexer) UpsertPOIs(ctx context.Context, pois []poi.POI) error {
	if m.upsertPOIsFn != nil {
		return m.upsertPOIsFn(ctx, pois)
	}
	return nil
}

func (m *mockIndexer) UpsertPredictions(ctx context.Context, preds []prediction.Prediction) error {
	if m.upsertPredictionsFn != nil {
		return m.upsertPredictionsFn(ctx, preds)
	}
	return nil
}

func newTestService() (*Service, *mockStore, *mockIndexer) {
	ms := &mockStore{}
	mi := &mockIndexer{}
	return New(ms, mi, zap.NewNop()), ms, mi
}

func testPOI(id string) poi.POI {
	return poi.POI{
		ID:        id,
		DedupeKey: "key-" + id,
		Name:      "Dragon Bridge",
		Location:  geo.Point{Lat: 16.0614, Lng: 108.2277},
	}
}

func testPrediction(placeID string) prediction.Prediction {
	return prediction.Prediction{
		PlaceID:  placeID,
		MainText: "Dragon Bridge",
		Status:   prediction.StatusPending,
	}
}

func TestUpsertPOIs_StoreBeforeIndex(t *testing.T) {
	svc, ms, mi := newTestService()

	var order []string
	ms.upsertPOIFn = func(_ context.Context, _ poi.POI) (place.Outcome, error) {
		order = append(order, "store")
		return place.OutcomeInserted, nil
	}
	mi.upsertPOIsFn = func(_ context.Context, pois []poi.POI) error {
		order = append(order, "index")
		if len(pois) != 2 {
			t.Errorf("indexed %d records, want 2", len(pois))
		}
		return nil
	}

	counts, err := svc.UpsertPOIs(context.Background(), []poi.POI{testPOI("a"), testPOI("b")})
	if err != nil {
		t.Fatalf("UpsertPOIs: %v", err)
	}
	if counts.Inserted != 2 {
		t.Errorf("counts = %+v", counts)
	}
	if len(order) != 3 || order[2] != "index" {
		t.Errorf("write order = %v, want store,store,index", order)
	}
}

func TestUpsertPOIs_SkippedRecordsNotReindexed(t *testing.T) {
	svc, ms, mi := newTestService()

	ms.upsertPOIFn = func(_ context.Context, _ poi.POI) (place.Outcome, error) {
		return place.OutcomeSkipped, nil
	}
	indexed := false
	mi.upsertPOIsFn = func(_ context.Context, _ []poi.POI) error {
		indexed = true
		return nil
	}

	counts, err := svc.UpsertPOIs(context.Background(), []poi.POI{testPOI("a")})
	if err != nil {
		t.Fatal(err)
	}
	if counts.Skipped != 1 {
		t.Errorf("counts = %+v", counts)
	}
	if indexed {
		t.Error("fresh skips must not touch the index")
	}
}

func TestUpsertPOIs_IndexFailureDoesNotFailWrite(t *testing.T) {
	svc, _, mi := newTestService()

	mi.upsertPOIsFn = func(_ context.Context, _ []poi.POI) error {
		return errors.New("redis down")
	}

	counts, err := svc.UpsertPOIs(context.Background(), []poi.POI{testPOI("a")})
	if err != nil {
		t.Fatalf("index failure must not surface: %v", err)
	}
	if counts.Inserted != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestUpsertPOIs_ValidationErrorContinuesBatch(t *testing.T) {
	svc, ms, _ := newTestService()

	ms.upsertPOIFn = func(_ context.Context, p poi.POI) (place.Outcome, error) {
		if p.ID == "bad" {
			return "", domain.ErrValidation
		}
		return place.OutcomeInserted, nil
	}

	counts, err := svc.UpsertPOIs(context.Background(),
		[]poi.POI{testPOI("a"), testPOI("bad"), testPOI("b")})
	if err != nil {
		t.Fatalf("validation failure must not abort batch: %v", err)
	}
	if counts.Inserted != 2 || counts.Errors != 1 {
		t.Errorf("counts = %+v, want 2 inserted 1 error", counts)
	}
}

func TestUpsertPOIs_StoreFailureContinuesBatch(t *testing.T) {
	svc, ms, _ := newTestService()

	var attempted []string
	ms.upsertPOIFn = func(_ context.Context, p poi.POI) (place.Outcome, error) {
		attempted = append(attempted, p.ID)
		if p.ID == "a" {
			return "", errors.New("database is locked")
		}
		return place.OutcomeInserted, nil
	}

	counts, err := svc.UpsertPOIs(context.Background(),
		[]poi.POI{testPOI("a"), testPOI("b"), testPOI("c")})
	if err != nil {
		t.Fatalf("store failure must not abort batch: %v", err)
	}
	if len(attempted) != 3 {
		t.Fatalf("attempted %v, want all three records tried", attempted)
	}
	if counts.Inserted != 2 || counts.Errors != 1 {
		t.Errorf("counts = %+v, want 2 inserted 1 error", counts)
	}
}

func TestUpsertPredictions_StoreFailureContinuesBatch(t *testing.T) {
	svc, ms, _ := newTestService()

	var attempted []string
	ms.upsertPredictionFn = func(_ context.Context, p prediction.Prediction) (place.Outcome, error) {
		attempted = append(attempted, p.PlaceID)
		if p.PlaceID == "pl-1" {
			return "", errors.New("database is locked")
		}
		return place.OutcomeInserted, nil
	}

	counts, err := svc.UpsertPredictions(context.Background(),
		[]prediction.Prediction{testPrediction("pl-1"), testPrediction("pl-2")})
	if err != nil {
		t.Fatalf("store failure must not abort batch: %v", err)
	}
	if len(attempted) != 2 {
		t.Fatalf("attempted %v, want both records tried", attempted)
	}
	if counts.Inserted != 1 || counts.Errors != 1 {
		t.Errorf("counts = %+v, want 1 inserted 1 error", counts)
	}
}

func TestGetPOI_ViewCountBestEffort(t *testing.T) {
	svc, ms, _ := newTestService()

	ms.getPOIFn = func(_ context.Context, id string) (poi.POI, error) {
		return testPOI(id), nil
	}
	ms.incrementViewFn = func(_ context.Context, _ string) error {
		return errors.New("locked")
	}

	got, err := svc.GetPOI(context.Background(), "a")
	if err != nil {
		t.Fatalf("view-count failure must not fail the read: %v", err)
	}
	if got.ID != "a" {
		t.Errorf("got %+v", got)
	}
}

func TestUpsertPredictions_WriteThrough(t *testing.T) {
	svc, ms, mi := newTestService()

	ms.upsertPredictionFn = func(_ context.Context, p prediction.Prediction) (place.Outcome, error) {
		if p.PlaceID == "seen" {
			return place.OutcomeSkipped, nil
		}
		return place.OutcomeInserted, nil
	}
	var indexed []prediction.Prediction
	mi.upsertPredictionsFn = func(_ context.Context, preds []prediction.Prediction) error {
		indexed = preds
		return nil
	}

	preds := []prediction.Prediction{
		{PlaceID: "new", MainText: "Dragon Bridge", Status: prediction.StatusPending},
		{PlaceID: "seen", MainText: "Marble Mountains", Status: prediction.StatusPending},
	}
	counts, err := svc.UpsertPredictions(context.Background(), preds)
	if err != nil {
		t.Fatalf("UpsertPredictions: %v", err)
	}
	if counts.Inserted != 1 || counts.Skipped != 1 {
		t.Errorf("counts = %+v", counts)
	}
	if len(indexed) != 1 || indexed[0].PlaceID != "new" {
		t.Errorf("indexed = %v, want only the new prediction", indexed)
	}
}
