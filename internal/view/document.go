package view

import (
	"sort"
	"strings"
	"sync"
)

// RegionID names a mounted part of the document. IDs nest with "/" so a
// subtree can be unmounted by prefix.
type RegionID string

const EstimatesRegion RegionID = "estimates"

func EstimateRegion(estimateID string) RegionID {
	return RegionID("estimate/" + estimateID)
}

func EstimateTotalsRegion(estimateID string) RegionID {
	return RegionID("estimate/" + estimateID + "/totals")
}

func RoomRegion(estimateID, roomID string) RegionID {
	return RegionID("room/" + estimateID + "/" + roomID)
}

func RoomTotalsRegion(estimateID, roomID string) RegionID {
	return RoomRegion(estimateID, roomID) + "/totals"
}

func PrimaryProductRegion(estimateID, roomID string) RegionID {
	return RoomRegion(estimateID, roomID) + "/primary"
}

func ProductListRegion(estimateID, roomID string) RegionID {
	return RoomRegion(estimateID, roomID) + "/products"
}

func SuggestionsRegion(estimateID, roomID string) RegionID {
	return RoomRegion(estimateID, roomID) + "/suggestions"
}

// Document holds the currently mounted regions and the accordion state.
// Rooms are mounted only while their estimate is expanded; a room's product
// list and suggestions only while the room is expanded.
type Document struct {
	mu       sync.RWMutex
	regions  map[RegionID]Fragment
	expanded map[string]bool
}

func NewDocument() *Document {
	return &Document{
		regions:  map[RegionID]Fragment{},
		expanded: map[string]bool{},
	}
}

func accordionKey(estimateID, roomID string) string {
	if roomID == "" {
		return estimateID
	}
	return estimateID + "/" + roomID
}

// Expand records an open accordion. An empty roomID targets the estimate.
func (d *Document) Expand(estimateID, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expanded[accordionKey(estimateID, roomID)] = true
}

// Collapse records a closed accordion and unmounts what it hid. It returns
// the unmounted region IDs.
func (d *Document) Collapse(estimateID, roomID string) []RegionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.expanded, accordionKey(estimateID, roomID))
	if roomID == "" {
		return d.unmountLocked(RegionID("room/" + estimateID))
	}
	removed := d.unmountLocked(ProductListRegion(estimateID, roomID))
	return append(removed, d.unmountLocked(SuggestionsRegion(estimateID, roomID))...)
}

// forget drops the accordion state of a removed estimate and its rooms.
func (d *Document) forget(estimateID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.expanded, estimateID)
	prefix := estimateID + "/"
	for key := range d.expanded {
		if strings.HasPrefix(key, prefix) {
			delete(d.expanded, key)
		}
	}
}

// retainRooms drops room accordion state under estimateID for rooms that
// no longer exist.
func (d *Document) retainRooms(estimateID string, roomIDs []string) {
	keep := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		keep[accordionKey(estimateID, id)] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	prefix := estimateID + "/"
	for key := range d.expanded {
		if strings.HasPrefix(key, prefix) && !keep[key] {
			delete(d.expanded, key)
		}
	}
}

// retainEstimates drops accordion state of estimates not in estimateIDs.
func (d *Document) retainEstimates(estimateIDs []string) {
	keep := make(map[string]bool, len(estimateIDs))
	for _, id := range estimateIDs {
		keep[id] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.expanded {
		estimateID, _, _ := strings.Cut(key, "/")
		if !keep[estimateID] {
			delete(d.expanded, key)
		}
	}
}

func (d *Document) Expanded(estimateID, roomID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.expanded[accordionKey(estimateID, roomID)]
}

func (d *Document) Mounted(id RegionID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.regions[id]
	return ok
}

func (d *Document) Fragment(id RegionID) (Fragment, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.regions[id]
	return f, ok
}

// Regions returns a copy of every mounted region.
func (d *Document) Regions() map[RegionID]Fragment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[RegionID]Fragment, len(d.regions))
	for id, f := range d.regions {
		out[id] = f
	}
	return out
}

// Compose expands region placeholders below id into one fragment.
func (d *Document) Compose(id RegionID) Fragment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.composeLocked(id, 0)
}

func (d *Document) composeLocked(id RegionID, depth int) Fragment {
	f, ok := d.regions[id]
	if !ok || depth > 8 {
		return ""
	}
	out := string(f)
	for child := range d.regions {
		ph := placeholderFor(child)
		if child == id || !strings.Contains(out, ph) {
			continue
		}
		open := strings.TrimSuffix(ph, "</div>")
		out = strings.Replace(out, ph, open+string(d.composeLocked(child, depth+1))+"</div>", 1)
	}
	return Fragment(out)
}

func (d *Document) mount(id RegionID, f Fragment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regions[id] = f
}

// patch replaces a region only when it is already mounted.
func (d *Document) patch(id RegionID, f Fragment) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.regions[id]; !ok {
		return false
	}
	d.regions[id] = f
	return true
}

func (d *Document) unmount(prefix RegionID) []RegionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unmountLocked(prefix)
}

func (d *Document) unmountLocked(prefix RegionID) []RegionID {
	var removed []RegionID
	for id := range d.regions {
		if id == prefix || strings.HasPrefix(string(id), string(prefix)+"/") {
			delete(d.regions, id)
			removed = append(removed, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}

func (d *Document) reset() []RegionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := make([]RegionID, 0, len(d.regions))
	for id := range d.regions {
		removed = append(removed, id)
	}
	d.regions = map[RegionID]Fragment{}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}
