package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/product-estimator/estimator/internal/estimate"
	"github.com/product-estimator/estimator/internal/gateway"
	"github.com/product-estimator/estimator/internal/mirror"
)

type fakeRemote struct {
	mu            sync.Mutex
	products      map[string]estimate.Product
	dataErr       error
	fallback      bool
	suggestions   []estimate.SuggestedProduct
	variations    map[string]gateway.VariationsResponse
	dataRequests  []gateway.ProductDataRequest
	suggestionIDs [][]string
	invalidated   []gateway.Family
	invalidAll    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		products:   map[string]estimate.Product{},
		variations: map[string]gateway.VariationsResponse{},
	}
}

func (f *fakeRemote) GetProductDataForStorage(ctx context.Context, req gateway.ProductDataRequest) (gateway.ProductDataResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataRequests = append(f.dataRequests, req)
	if f.dataErr != nil {
		return gateway.ProductDataResponse{}, f.dataErr
	}
	if f.fallback {
		return gateway.ProductDataResponse{IsFallback: true}, nil
	}
	p, ok := f.products[req.ProductID]
	if !ok {
		return gateway.ProductDataResponse{}, nil
	}
	return gateway.ProductDataResponse{ProductData: &p, RoomSuggestedProducts: f.suggestions}, nil
}

func (f *fakeRemote) FetchSuggestionsForModifiedRoom(ctx context.Context, estimateID, roomID string, productIDs []string) (gateway.SuggestionsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestionIDs = append(f.suggestionIDs, append([]string(nil), productIDs...))
	return gateway.SuggestionsResponse{UpdatedSuggestions: f.suggestions}, nil
}

func (f *fakeRemote) GetProductVariations(ctx context.Context, productID string) (gateway.VariationsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variations[productID], nil
}

func (f *fakeRemote) InvalidateFamily(family gateway.Family) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, family)
}

func (f *fakeRemote) InvalidateAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidAll++
}

func (f *fakeRemote) dataCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dataRequests)
}

type recordingDetacher struct {
	mu    sync.Mutex
	tasks []mirror.Task
}

func (d *recordingDetacher) Detach(task mirror.Task) mirror.Detached {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return mirror.Detached{TaskID: task.Action, Queued: true}
}

func (d *recordingDetacher) actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.tasks))
	for _, task := range d.tasks {
		out = append(out, task.Action)
	}
	return out
}

type fixture struct {
	store    *estimate.Store
	remote   *fakeRemote
	detacher *recordingDetacher
	coord    *Coordinator
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	store := estimate.NewStore(estimate.StoreOptions{})
	if store.AddEstimate(estimate.Estimate{ID: "E1", Name: "Home"}) != "E1" {
		t.Fatalf("seed estimate failed")
	}
	if store.AddRoom("E1", estimate.Room{ID: "R1", Name: "Kitchen", Width: 3, Length: 4}) != "R1" {
		t.Fatalf("seed room failed")
	}
	remote := newFakeRemote()
	remote.products["P1"] = estimate.Product{Name: "Floor tile", MinPriceTotal: 100, MaxPriceTotal: 150}
	remote.products["P2"] = estimate.Product{Name: "Oak floor", MinPriceTotal: 200, MaxPriceTotal: 260, IsPrimaryCategory: true}
	remote.products["P3"] = estimate.Product{Name: "Walnut floor", MinPriceTotal: 300, MaxPriceTotal: 330, IsPrimaryCategory: true}
	remote.products["P4"] = estimate.Product{Name: "Grout", MinPriceTotal: 10, MaxPriceTotal: 12}
	detacher := &recordingDetacher{}
	return fixture{
		store:    store,
		remote:   remote,
		detacher: detacher,
		coord:    New(store, remote, detacher, opts),
	}
}

func (f fixture) roomJSON(t *testing.T) string {
	t.Helper()
	room, ok := f.store.GetRoom("E1", "R1")
	if !ok {
		t.Fatalf("room R1 missing")
	}
	data, err := json.Marshal(room)
	if err != nil {
		t.Fatalf("marshal room: %v", err)
	}
	return string(data)
}

func addProduct(t *testing.T, f fixture, productID string) ProductResult {
	t.Helper()
	res, err := f.coord.AddProductToRoom(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: productID})
	if err != nil {
		t.Fatalf("add %s failed: %v", productID, err)
	}
	return res
}

func TestAddProductToEmptyRoom(t *testing.T) {
	f := newFixture(t, Options{})
	res := addProduct(t, f, "P1")

	room, _ := f.store.GetRoom("E1", "R1")
	if ids := room.ProductIDs(); len(ids) != 1 || ids[0] != "P1" {
		t.Fatalf("expected room products [P1], got %v", ids)
	}
	if room.PrimaryCategoryProductID != nil || res.PrimaryCategoryProductID != nil {
		t.Fatalf("expected no primary category product")
	}
	if res.RoomTotals != room.Totals || res.RoomTotals.MinTotal != 100 || res.EstimateTotals.MaxTotal != 150 {
		t.Fatalf("expected totals read back from store, got %+v / %+v", res.RoomTotals, res.EstimateTotals)
	}
	req := f.remote.dataRequests[0]
	if len(req.RoomProducts) != 1 || req.RoomProducts[0] != "P1" || req.RoomWidth != 3 || req.RoomLength != 4 {
		t.Fatalf("expected prospective product set and dimensions, got %+v", req)
	}
	if got := f.detacher.actions(); len(got) != 1 || got[0] != gateway.ActionAddProductToRoom {
		t.Fatalf("expected one mirror task, got %v", got)
	}
}

func TestAddDuplicateProductIsRejectedWithoutNetwork(t *testing.T) {
	f := newFixture(t, Options{})
	addProduct(t, f, "P1")
	before := f.roomJSON(t)
	calls := f.remote.dataCalls()

	_, err := f.coord.AddProductToRoom(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"})
	var dup *DuplicateError
	if !errors.As(err, &dup) || !errors.Is(err, ErrDuplicate) || dup.ProductID != "P1" {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if f.remote.dataCalls() != calls {
		t.Fatalf("expected no product data fetch for duplicate")
	}
	if f.roomJSON(t) != before {
		t.Fatalf("expected room unchanged after duplicate add")
	}
	if dup.Data()["duplicate"] != true {
		t.Fatalf("expected machine payload to flag duplicate")
	}
}

func TestAddSecondPrimaryProductConflicts(t *testing.T) {
	f := newFixture(t, Options{})
	addProduct(t, f, "P2")
	before := f.roomJSON(t)

	_, err := f.coord.AddProductToRoom(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P3"})
	var conflict *PrimaryConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected primary conflict, got %v", err)
	}
	if conflict.ExistingProductID != "P2" || conflict.NewProductID != "P3" {
		t.Fatalf("unexpected conflict identities %+v", conflict)
	}
	if f.roomJSON(t) != before {
		t.Fatalf("expected room unchanged after conflict")
	}
	if got := f.detacher.actions(); len(got) != 1 {
		t.Fatalf("expected no mirror task for conflict, got %v", got)
	}
}

func TestReplaceProductKeepsLineage(t *testing.T) {
	f := newFixture(t, Options{})
	addProduct(t, f, "P2")

	res, err := f.coord.ReplaceProductInRoom(context.Background(), ReplaceProductRequest{
		EstimateID: "E1", RoomID: "R1", OldProductID: "P2", NewProductID: "P3",
	})
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	room, _ := f.store.GetRoom("E1", "R1")
	if ids := room.ProductIDs(); len(ids) != 1 || ids[0] != "P3" {
		t.Fatalf("expected products [P3], got %v", ids)
	}
	p3, _ := room.Products.Get("P3")
	if len(p3.ReplacementChain) != 1 || p3.ReplacementChain[0] != "P2" {
		t.Fatalf("expected replacement chain [P2], got %v", p3.ReplacementChain)
	}
	if res.RoomTotals.MinTotal != 300 || res.RoomTotals.MaxTotal != 330 {
		t.Fatalf("expected totals recomputed from P3, got %+v", res.RoomTotals)
	}
	if res.PrimaryCategoryProductID == nil || *res.PrimaryCategoryProductID != "P3" {
		t.Fatalf("expected P3 as primary category product")
	}
	req := f.remote.dataRequests[len(f.remote.dataRequests)-1]
	if len(req.RoomProducts) != 1 || req.RoomProducts[0] != "P3" {
		t.Fatalf("expected prospective set [P3], got %v", req.RoomProducts)
	}
	last := f.detacher.tasks[len(f.detacher.tasks)-1]
	if last.Action != gateway.ActionReplaceProductInRoom || last.OldProductID != "P2" || last.ProductID != "P3" {
		t.Fatalf("unexpected mirror task %+v", last)
	}
}

func TestReplaceAdditionalProductUnderParent(t *testing.T) {
	f := newFixture(t, Options{})
	parent := estimate.Product{ID: "P1", Name: "Floor tile", MinPriceTotal: 100, MaxPriceTotal: 150}
	parent.AdditionalProducts.Set("A1", &estimate.Product{ID: "A1", MinPriceTotal: 5, MaxPriceTotal: 5})
	f.store.AddProductToRoom("E1", "R1", parent)

	_, err := f.coord.ReplaceProductInRoom(context.Background(), ReplaceProductRequest{
		EstimateID: "E1", RoomID: "R1", OldProductID: "A1", NewProductID: "P4", ParentProductID: "P1",
	})
	if err != nil {
		t.Fatalf("nested replace failed: %v", err)
	}
	room, _ := f.store.GetRoom("E1", "R1")
	p1, _ := room.Products.Get("P1")
	if !p1.AdditionalProducts.Has("P4") || p1.AdditionalProducts.Has("A1") {
		t.Fatalf("expected A1 swapped for P4, got %v", p1.AdditionalProducts.Keys())
	}
	if room.Totals.MinTotal != 110 {
		t.Fatalf("expected totals to include the new additional product, got %+v", room.Totals)
	}
}

func TestReplaceMissingProductIsNotFound(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.coord.ReplaceProductInRoom(context.Background(), ReplaceProductRequest{
		EstimateID: "E1", RoomID: "R1", OldProductID: "nope", NewProductID: "P1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.remote.dataCalls() != 0 {
		t.Fatalf("expected no fetch for missing product")
	}
}

func TestRemoveLastProductEmptiesRoom(t *testing.T) {
	f := newFixture(t, Options{})
	addProduct(t, f, "P2")
	res, err := f.coord.RemoveProductFromRoom(context.Background(), "E1", "R1", "P2")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	room, _ := f.store.GetRoom("E1", "R1")
	if room.Products.Len() != 0 || room.PrimaryCategoryProductID != nil {
		t.Fatalf("expected empty room, got %v", room.ProductIDs())
	}
	if res.RoomTotals != (estimate.Totals{}) {
		t.Fatalf("expected zero totals, got %+v", res.RoomTotals)
	}
	if _, err := f.coord.RemoveProductFromRoom(context.Background(), "E1", "R1", "P2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestCriticalFetchFailureLeavesRoomUntouched(t *testing.T) {
	cases := []struct {
		name  string
		setup func(r *fakeRemote)
		id    string
	}{
		{name: "transport error", setup: func(r *fakeRemote) { r.dataErr = errors.New("timeout") }, id: "P1"},
		{name: "fallback", setup: func(r *fakeRemote) { r.fallback = true }, id: "P1"},
		{name: "empty payload", setup: func(r *fakeRemote) {}, id: "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			addProduct(t, f, "P4")
			before := f.roomJSON(t)
			tc.setup(f.remote)

			_, err := f.coord.AddProductToRoom(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: tc.id})
			var critical *CriticalDataError
			if !errors.As(err, &critical) || !errors.Is(err, ErrCriticalData) {
				t.Fatalf("expected critical data error, got %v", err)
			}
			if f.roomJSON(t) != before {
				t.Fatalf("expected room byte-for-byte unchanged")
			}
			if got := f.detacher.actions(); len(got) != 1 {
				t.Fatalf("expected no mirror task after abort, got %v", got)
			}
		})
	}
}

func TestMirrorFailureDoesNotRevertLocalWrite(t *testing.T) {
	store := estimate.NewStore(estimate.StoreOptions{})
	store.AddEstimate(estimate.Estimate{ID: "E1", Name: "Home"})
	store.AddRoom("E1", estimate.Room{ID: "R1", Name: "Kitchen", Width: 2, Length: 2})
	remote := newFakeRemote()
	remote.products["P1"] = estimate.Product{MinPriceTotal: 40, MaxPriceTotal: 50}

	dispatcher := mirror.NewDispatcher(mirror.ExecutorFunc(func(ctx context.Context, task mirror.Task) error {
		return errors.New("session expired")
	}), mirror.DispatcherOptions{})
	defer dispatcher.Close()
	coord := New(store, remote, dispatcher, Options{})

	res, err := coord.AddProductToRoom(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"})
	if err != nil {
		t.Fatalf("expected success despite mirror failure, got %v", err)
	}
	select {
	case <-res.Mirror.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("mirror task did not finish")
	}
	room, _ := store.GetRoom("E1", "R1")
	if !room.Products.Has("P1") || room.Totals.MaxTotal != 50 {
		t.Fatalf("expected local write to stand, got %v %+v", room.ProductIDs(), room.Totals)
	}
}

func TestRemoveEstimateStandsWhenMirrorFails(t *testing.T) {
	store := estimate.NewStore(estimate.StoreOptions{})
	store.AddEstimate(estimate.Estimate{ID: "E1", Name: "Home"})
	remote := newFakeRemote()
	dispatcher := mirror.NewDispatcher(mirror.ExecutorFunc(func(ctx context.Context, task mirror.Task) error {
		return errors.New("server down")
	}), mirror.DispatcherOptions{})
	defer dispatcher.Close()
	coord := New(store, remote, dispatcher, Options{})

	res, err := coord.RemoveEstimate(context.Background(), "E1")
	if err != nil {
		t.Fatalf("remove estimate failed: %v", err)
	}
	<-res.Mirror.Done()
	if _, ok := store.GetEstimate("E1"); ok {
		t.Fatalf("expected estimate E1 removed regardless of mirror outcome")
	}
	if remote.invalidAll != 1 {
		t.Fatalf("expected global cache invalidation, got %d", remote.invalidAll)
	}
}

func TestMutationInvalidatesCachedSuggestions(t *testing.T) {
	store := estimate.NewStore(estimate.StoreOptions{})
	store.AddEstimate(estimate.Estimate{ID: "E1", Name: "Home"})
	store.AddRoom("E1", estimate.Room{ID: "R1", Name: "Kitchen", Width: 2, Length: 2})

	var mu sync.Mutex
	suggestionCalls, dataCalls := 0, 0
	roomSuggestion := `{"id":7,"name":"Underlay"}`
	transport := gateway.TransportFunc(func(ctx context.Context, action string, payload gateway.Payload) (gateway.Envelope, error) {
		switch action {
		case gateway.ActionFetchSuggestionsForRoom:
			mu.Lock()
			suggestionCalls++
			mu.Unlock()
			return gateway.Envelope{Success: true, Data: json.RawMessage(`{"updated_suggestions":[{"id":9,"name":"Sealer"}]}`)}, nil
		case gateway.ActionGetProductDataForStorage:
			mu.Lock()
			defer mu.Unlock()
			dataCalls++
			return gateway.Envelope{Success: true, Data: json.RawMessage(`{"product_data":{"id":"P1","min_price_total":5,"max_price_total":6},"room_suggested_products":[` + roomSuggestion + `]}`)}, nil
		default:
			return gateway.Envelope{Success: true, Data: json.RawMessage(`{}`)}, nil
		}
	})
	gw := gateway.New(transport, gateway.Options{})
	coord := New(store, gw, nil, Options{SuggestionsEnabled: true})
	ctx := context.Background()

	if _, err := gw.FetchSuggestionsForModifiedRoom(ctx, "E1", "R1", nil); err != nil {
		t.Fatalf("prime cache failed: %v", err)
	}
	key := gateway.CacheKey("E1", "R1", "")
	if !gw.Cached(gateway.FamilySuggestions, key) {
		t.Fatalf("expected suggestions cached")
	}
	if _, err := coord.AddProductToRoom(ctx, AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if gw.Cached(gateway.FamilySuggestions, key) {
		t.Fatalf("expected suggestions cache invalidated by the mutation")
	}
	if _, err := gw.FetchSuggestionsForModifiedRoom(ctx, "E1", "R1", nil); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	mu.Lock()
	if suggestionCalls != 2 {
		mu.Unlock()
		t.Fatalf("expected a fresh fetch after the mutation, got %d calls", suggestionCalls)
	}
	mu.Unlock()

	if _, err := coord.RemoveProductFromRoom(ctx, "E1", "R1", "P1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	mu.Lock()
	roomSuggestion = `{"id":8,"name":"Trim kit"}`
	mu.Unlock()
	if _, err := coord.AddProductToRoom(ctx, AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"}); err != nil {
		t.Fatalf("re-add failed: %v", err)
	}
	mu.Lock()
	calls := dataCalls
	mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected product data refetched after remove, got %d calls", calls)
	}
	suggestions := store.GetSuggestionsForRoom("E1", "R1")
	if len(suggestions) != 1 || suggestions[0].Name != "Trim kit" {
		t.Fatalf("expected fresh room suggestions, got %+v", suggestions)
	}
}

func TestSuggestionsFollowFeatureFlag(t *testing.T) {
	off := newFixture(t, Options{})
	off.store.SetSuggestionsForRoom("E1", "R1", []estimate.SuggestedProduct{{ID: "old"}})
	off.remote.suggestions = []estimate.SuggestedProduct{{ID: "S1"}}
	addProduct(t, off, "P1")
	if got := off.store.GetSuggestionsForRoom("E1", "R1"); len(got) != 0 {
		t.Fatalf("expected suggestions cleared when feature is off, got %v", got)
	}
	if off.remote.dataRequests[0].IncludeSuggestions {
		t.Fatalf("expected suggestions not requested when feature is off")
	}

	on := newFixture(t, Options{SuggestionsEnabled: true})
	on.remote.suggestions = []estimate.SuggestedProduct{{ID: "S1"}}
	res := addProduct(t, on, "P1")
	if len(res.Suggestions) != 1 || res.Suggestions[0].ID != "S1" {
		t.Fatalf("expected stored suggestions [S1], got %v", res.Suggestions)
	}
	addProduct(t, on, "P4")
	on.remote.suggestions = []estimate.SuggestedProduct{{ID: "S2"}}
	if _, err := on.coord.RemoveProductFromRoom(context.Background(), "E1", "R1", "P1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	ids := on.remote.suggestionIDs[len(on.remote.suggestionIDs)-1]
	if len(ids) != 1 || ids[0] != "P4" {
		t.Fatalf("expected suggestions computed against remaining [P4], got %v", ids)
	}
	if got := on.store.GetSuggestionsForRoom("E1", "R1"); len(got) != 1 || got[0].ID != "S2" {
		t.Fatalf("expected refreshed suggestions [S2], got %v", got)
	}
}

type scriptedPicker struct {
	choice string
	err    error
	asked  []string
}

func (p *scriptedPicker) PickVariation(ctx context.Context, productID string, variations []gateway.Variation) (string, error) {
	p.asked = append(p.asked, productID)
	return p.choice, p.err
}

func TestVariationGating(t *testing.T) {
	variable := gateway.VariationsResponse{IsVariable: true, Variations: []gateway.Variation{{ID: "V1"}, {ID: "V2"}}}

	t.Run("no picker", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.remote.variations["P1"] = variable
		_, err := f.coord.RequestAddProduct(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"})
		var required *VariationRequiredError
		if !errors.As(err, &required) || len(required.Variations) != 2 {
			t.Fatalf("expected variation required, got %v", err)
		}
		if f.remote.dataCalls() != 0 {
			t.Fatalf("expected protocol not to start")
		}
	})

	t.Run("picker chooses", func(t *testing.T) {
		picker := &scriptedPicker{choice: "V2"}
		f := newFixture(t, Options{Picker: picker})
		f.remote.variations["P1"] = variable
		f.remote.products["V2"] = estimate.Product{Name: "Tile - grey", MinPriceTotal: 1, MaxPriceTotal: 2}
		res, err := f.coord.RequestAddProduct(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"})
		if err != nil {
			t.Fatalf("gated add failed: %v", err)
		}
		if res.ProductID != "V2" || len(picker.asked) != 1 {
			t.Fatalf("expected variation V2 stored, got %s", res.ProductID)
		}
	})

	t.Run("picker cancels", func(t *testing.T) {
		f := newFixture(t, Options{Picker: &scriptedPicker{}})
		f.remote.variations["P1"] = variable
		before := f.roomJSON(t)
		_, err := f.coord.RequestAddProduct(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"})
		if !errors.Is(err, ErrVariationCancelled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
		if f.roomJSON(t) != before {
			t.Fatalf("expected nothing written on cancel")
		}
	})

	t.Run("unknown preselected variation", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.remote.variations["P1"] = variable
		_, err := f.coord.RequestAddProduct(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1", VariationID: "V9"})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("simple product", func(t *testing.T) {
		f := newFixture(t, Options{})
		res, err := f.coord.RequestAddProduct(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"})
		if err != nil || res.ProductID != "P1" {
			t.Fatalf("expected simple product added, got %v", err)
		}
	})
}

func TestValidationRunsBeforeNetwork(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.coord.AddEstimate(ctx, AddEstimateRequest{Name: "   "})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "estimate_name" {
		t.Fatalf("expected estimate_name validation error, got %v", err)
	}

	_, err = f.coord.AddRoom(ctx, AddRoomRequest{EstimateID: "E1", Name: "Bath", Width: 0, Length: 2})
	if !errors.As(err, &verr) || verr.Fields[0].Field != "room_width" {
		t.Fatalf("expected room_width validation error, got %v", err)
	}

	err = f.coord.UpdateCustomerDetails(ctx, estimate.CustomerDetails{Name: "Ada", Email: "not-an-email", Postcode: "2000"})
	if !errors.As(err, &verr) || verr.Fields[0].Field != "customer_email" {
		t.Fatalf("expected customer_email validation error, got %v", err)
	}

	_, err = f.coord.AddProductToRoom(ctx, AddProductRequest{EstimateID: "E1", RoomID: "R 1", ProductID: ""})
	if !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected two malformed identifiers, got %v", err)
	}
	if f.remote.dataCalls() != 0 {
		t.Fatalf("expected no network calls on validation failure")
	}
}

func TestAddEstimateAndRoomLifecycle(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	est, err := f.coord.AddEstimate(ctx, AddEstimateRequest{Name: " Bathroom reno "})
	if err != nil {
		t.Fatalf("add estimate failed: %v", err)
	}
	if !strings.HasPrefix(est.EstimateID, "estimate_") {
		t.Fatalf("expected generated estimate ID, got %s", est.EstimateID)
	}
	e, _ := f.store.GetEstimate(est.EstimateID)
	if e.Name != "Bathroom reno" {
		t.Fatalf("expected trimmed name, got %q", e.Name)
	}

	room, err := f.coord.AddRoom(ctx, AddRoomRequest{EstimateID: est.EstimateID, Name: "Ensuite", Width: 2, Length: 2.5})
	if err != nil {
		t.Fatalf("add room failed: %v", err)
	}
	if _, ok := f.store.GetRoom(est.EstimateID, room.RoomID); !ok {
		t.Fatalf("expected room stored")
	}
	if _, err := f.coord.RemoveRoom(ctx, est.EstimateID, room.RoomID); err != nil {
		t.Fatalf("remove room failed: %v", err)
	}
	if _, err := f.coord.RemoveRoom(ctx, est.EstimateID, room.RoomID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for removed room, got %v", err)
	}
	want := []string{
		gateway.ActionAddNewEstimate,
		gateway.ActionAddNewRoom,
		gateway.ActionRemoveRoom,
	}
	if got := f.detacher.actions(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected mirror tasks %v, got %v", want, got)
	}
}

func TestAddRoomKeepsShellWhenPendingProductConflicts(t *testing.T) {
	f := newFixture(t, Options{})
	f.remote.dataErr = errors.New("pricing service down")
	res, err := f.coord.AddRoom(context.Background(), AddRoomRequest{
		EstimateID: "E1", Name: "Laundry", Width: 2, Length: 2, PendingProductID: "P1",
	})
	if !errors.Is(err, ErrCriticalData) {
		t.Fatalf("expected pending product failure, got %v", err)
	}
	if res.RoomID == "" {
		t.Fatalf("expected room ID even though the product failed")
	}
	room, ok := f.store.GetRoom("E1", res.RoomID)
	if !ok || room.Products.Len() != 0 {
		t.Fatalf("expected empty room shell to remain")
	}
}

func TestCustomerDetailsUpdateNotifies(t *testing.T) {
	var got []estimate.CustomerDetails
	store := estimate.NewStore(estimate.StoreOptions{CustomerDetailsChanged: func(d estimate.CustomerDetails) {
		got = append(got, d)
	}})
	coord := New(store, newFakeRemote(), nil, Options{})
	err := coord.UpdateCustomerDetails(context.Background(), estimate.CustomerDetails{
		Name: " Ada ", Email: "ada@example.com", Phone: "+61 2 9999 0000", Postcode: "2000",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Ada" {
		t.Fatalf("expected one notification with trimmed name, got %+v", got)
	}
}

func TestGuardRefusesConcurrentSubmission(t *testing.T) {
	guard := NewGuard()
	f := newFixture(t, Options{Guard: guard})
	release, ok := guard.Acquire("add_product:E1:R1:P1")
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	_, err := f.coord.AddProductToRoom(context.Background(), AddProductRequest{EstimateID: "E1", RoomID: "R1", ProductID: "P1"})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	release()
	release()
	if guard.Busy("add_product:E1:R1:P1") {
		t.Fatalf("expected guard released")
	}
	addProduct(t, f, "P1")
	if guard.Busy("add_product:E1:R1:P1") {
		t.Fatalf("expected guard released after the operation")
	}
}
