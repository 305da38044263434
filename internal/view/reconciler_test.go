package view

import (
	"strings"
	"testing"

	"github.com/product-estimator/estimator/internal/estimate"
)

func newTestReconciler(t *testing.T) (*Reconciler, *estimate.Store, *[]RegionUpdate) {
	t.Helper()
	store := estimate.NewStore(estimate.StoreOptions{})
	store.AddEstimate(estimate.Estimate{ID: "E1", Name: "Home"})
	store.AddRoom("E1", estimate.Room{ID: "R1", Name: "Kitchen", Width: 3, Length: 4})
	renderer, err := NewTemplateRenderer()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	var updates []RegionUpdate
	r := NewReconciler(store, renderer, ReconcilerOptions{OnUpdate: func(batch []RegionUpdate) {
		updates = append(updates, batch...)
	}})
	return r, store, &updates
}

func fragment(t *testing.T, r *Reconciler, id RegionID) string {
	t.Helper()
	f, ok := r.Document().Fragment(id)
	if !ok {
		t.Fatalf("expected region %s mounted", id)
	}
	return string(f)
}

func TestRemovingLastProductRendersEmptyState(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.AddProductToRoom("E1", "R1", estimate.Product{ID: "P1", Name: "Oak floor", MinPriceTotal: 100, MaxPriceTotal: 120, IsPrimaryCategory: true})
	r.Document().Expand("E1", "")
	r.Document().Expand("E1", "R1")
	if err := r.RenderAll(); err != nil {
		t.Fatalf("render all: %v", err)
	}
	if got := fragment(t, r, ProductListRegion("E1", "R1")); !strings.Contains(got, `data-product-id="P1"`) {
		t.Fatalf("expected P1 in product list, got %s", got)
	}

	store.RemoveProductFromRoom("E1", "R1", "P1")
	room, _ := store.GetRoom("E1", "R1")
	e, _ := store.GetEstimate("E1")
	if err := r.ProductChanged("E1", "R1", room.Totals, e.Totals, nil); err != nil {
		t.Fatalf("product changed: %v", err)
	}
	got := fragment(t, r, ProductListRegion("E1", "R1"))
	if !strings.Contains(got, "product-list-empty") || strings.Contains(got, "P1") {
		t.Fatalf("expected empty-state template, got %s", got)
	}
	if primary := fragment(t, r, PrimaryProductRegion("E1", "R1")); !strings.Contains(primary, "primary-product empty") {
		t.Fatalf("expected cleared primary header, got %s", primary)
	}
	if totals := fragment(t, r, RoomTotalsRegion("E1", "R1")); !strings.Contains(totals, "$0.00") {
		t.Fatalf("expected zero totals, got %s", totals)
	}
}

func TestPatchDroppedWhenRegionNotMounted(t *testing.T) {
	r, _, updates := newTestReconciler(t)
	if err := r.RenderAll(); err != nil {
		t.Fatalf("render all: %v", err)
	}
	*updates = nil
	if r.PatchPrimaryProduct("E1", "R1", &estimate.Product{ID: "P2", Name: "Tile"}) {
		t.Fatalf("expected primary patch dropped while the estimate is collapsed")
	}
	if r.Document().Mounted(RoomTotalsRegion("E1", "R1")) {
		t.Fatalf("expected room totals unmounted while collapsed")
	}
	patched := r.PatchTotals("E1", "R1", estimate.Totals{MinTotal: 10, MaxTotal: 20}, estimate.Totals{MinTotal: 1500, MaxTotal: 2500.5})
	if !patched {
		t.Fatalf("expected estimate totals patched")
	}
	if got := fragment(t, r, EstimateTotalsRegion("E1")); !strings.Contains(got, "$1,500.00 - $2,500.50") {
		t.Fatalf("unexpected estimate totals %s", got)
	}
	if len(*updates) != 1 || (*updates)[0].Region != EstimateTotalsRegion("E1") {
		t.Fatalf("expected a single estimate totals update, got %+v", *updates)
	}
}

func TestExpandCollapseMountsRoomBody(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.SetSuggestionsForRoom("E1", "R1", []estimate.SuggestedProduct{{ID: "S1", Name: "Sealer", MinPrice: 5, MaxPrice: 5}})
	if err := r.RenderAll(); err != nil {
		t.Fatalf("render all: %v", err)
	}
	if err := r.Expand("E1", ""); err != nil {
		t.Fatalf("expand estimate: %v", err)
	}
	if !r.Document().Mounted(RoomRegion("E1", "R1")) || r.Document().Mounted(ProductListRegion("E1", "R1")) {
		t.Fatalf("expected room header mounted and body hidden")
	}
	if err := r.Expand("E1", "R1"); err != nil {
		t.Fatalf("expand room: %v", err)
	}
	if got := fragment(t, r, ProductListRegion("E1", "R1")); !strings.Contains(got, "product-list-empty") {
		t.Fatalf("expected empty-state for empty room, got %s", got)
	}
	if got := fragment(t, r, SuggestionsRegion("E1", "R1")); !strings.Contains(got, "Sealer") {
		t.Fatalf("expected suggestion panel, got %s", got)
	}

	if err := r.Collapse("E1", ""); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	for _, id := range []RegionID{RoomRegion("E1", "R1"), ProductListRegion("E1", "R1"), SuggestionsRegion("E1", "R1")} {
		if r.Document().Mounted(id) {
			t.Fatalf("expected %s unmounted after collapse", id)
		}
	}
	if got := fragment(t, r, EstimateRegion("E1")); strings.Contains(got, `class="rooms"`) {
		t.Fatalf("expected rooms container hidden, got %s", got)
	}
}

func TestRenderEstimateUnmountsRemovedEstimate(t *testing.T) {
	r, store, updates := newTestReconciler(t)
	r.Document().Expand("E1", "")
	if err := r.RenderAll(); err != nil {
		t.Fatalf("render all: %v", err)
	}
	store.RemoveEstimate("E1")
	*updates = nil
	if err := r.RenderEstimate("E1"); err != nil {
		t.Fatalf("render estimate: %v", err)
	}
	if r.Document().Mounted(EstimateRegion("E1")) || r.Document().Mounted(RoomRegion("E1", "R1")) {
		t.Fatalf("expected estimate subtree unmounted")
	}
	if got := fragment(t, r, EstimatesRegion); !strings.Contains(got, "no-estimates") {
		t.Fatalf("expected empty estimates list, got %s", got)
	}
	removed := 0
	for _, u := range *updates {
		if u.Removed {
			removed++
		}
	}
	if removed == 0 {
		t.Fatalf("expected removal updates, got %+v", *updates)
	}
}

func TestRemovalForgetsAccordionState(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.AddRoom("E1", estimate.Room{ID: "R2", Name: "Bath", Width: 2, Length: 2})
	if err := r.RenderAll(); err != nil {
		t.Fatalf("render all: %v", err)
	}
	for _, roomID := range []string{"", "R1", "R2"} {
		if err := r.Expand("E1", roomID); err != nil {
			t.Fatalf("expand %q: %v", roomID, err)
		}
	}

	store.RemoveRoom("E1", "R1")
	if err := r.RenderEstimate("E1"); err != nil {
		t.Fatalf("render estimate: %v", err)
	}
	doc := r.Document()
	if doc.Expanded("E1", "R1") {
		t.Fatalf("expected removed room accordion forgotten")
	}
	if !doc.Expanded("E1", "") || !doc.Expanded("E1", "R2") {
		t.Fatalf("expected remaining accordions kept")
	}

	store.RemoveEstimate("E1")
	if err := r.RenderEstimate("E1"); err != nil {
		t.Fatalf("render estimate: %v", err)
	}
	doc.mu.RLock()
	left := len(doc.expanded)
	doc.mu.RUnlock()
	if left != 0 {
		t.Fatalf("expected no accordion state after estimate removal, got %d entries", left)
	}
}

func TestComposeNestsRegions(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.AddProductToRoom("E1", "R1", estimate.Product{ID: "P1", Name: "Oak <floor>", MinPriceTotal: 1, MaxPriceTotal: 2})
	r.Document().Expand("E1", "")
	r.Document().Expand("E1", "R1")
	if err := r.RenderAll(); err != nil {
		t.Fatalf("render all: %v", err)
	}
	page := string(r.Document().Compose(EstimatesRegion))
	for _, want := range []string{`data-estimate-id="E1"`, `data-room-id="R1"`, `data-product-id="P1"`, "Oak &lt;floor&gt;"} {
		if !strings.Contains(page, want) {
			t.Fatalf("expected composed page to contain %s:\n%s", want, page)
		}
	}
}
