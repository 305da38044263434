package estimate

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

const (
	DefaultDataKey     = "product_estimator_estimate_data"
	DefaultCustomerKey = "product_estimator_customer_details"
)

type Logger interface {
	Printf(format string, args ...any)
}

type StoreOptions struct {
	// Primary is the durable store. Defaults to an in-memory backend.
	Primary Backend
	// Fallback receives writes the primary rejects.
	Fallback    Backend
	DataKey     string
	CustomerKey string
	Logger      Logger
	// CustomerDetailsChanged runs after customer details are persisted,
	// outside the store lock.
	CustomerDetailsChanged func(CustomerDetails)
}

type storageTier int

const (
	tierPrimary storageTier = iota
	tierFallback
	tierVolatile
)

// Store is the only writer of the persisted record. Every helper performs
// load, a pure mutation and save under one lock, so local writes never
// interleave.
type Store struct {
	mu                sync.Mutex
	primary           Backend
	fallback          Backend
	dataKey           string
	customerKey       string
	logger            Logger
	onCustomerDetails func(CustomerDetails)
	tiers             map[string]storageTier
	volatile          map[string]string
}

func NewStore(opts StoreOptions) *Store {
	primary := opts.Primary
	if primary == nil {
		primary = NewInMemoryBackend()
	}
	dataKey := opts.DataKey
	if dataKey == "" {
		dataKey = DefaultDataKey
	}
	customerKey := opts.CustomerKey
	if customerKey == "" {
		customerKey = DefaultCustomerKey
	}
	return &Store{
		primary:           primary,
		fallback:          opts.Fallback,
		dataKey:           dataKey,
		customerKey:       customerKey,
		logger:            opts.Logger,
		onCustomerDetails: opts.CustomerDetailsChanged,
		tiers:             map[string]storageTier{},
		volatile:          map[string]string{},
	}
}

// Close releases backends that hold connections.
func (s *Store) Close() {
	for _, b := range []Backend{s.primary, s.fallback} {
		if closer, ok := b.(backendCloser); ok && closer != nil {
			_ = closer.Close()
		}
	}
}

// Load never fails: unreadable, corrupt or schema-invalid data yields an
// empty root. Legacy array-shaped collections are migrated and written back.
func (s *Store) Load() Root {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) Save(root Root) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveRootLocked(root)
}

// Clear removes both records from every storage tier.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{s.dataKey, s.customerKey} {
		for _, b := range []Backend{s.primary, s.fallback} {
			if b == nil {
				continue
			}
			if err := b.Remove(key); err != nil {
				s.logf("storage remove %s failed: %v", key, err)
			}
		}
		delete(s.volatile, key)
		delete(s.tiers, key)
	}
}

// GenerateID returns a random UUID, as "<prefix>_<uuid>" when prefixed.
func (s *Store) GenerateID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Update runs fn against a freshly loaded root and saves the result only
// when fn reports success.
func (s *Store) Update(fn func(root *Root) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	root := s.loadLocked()
	if !fn(&root) {
		return false
	}
	s.saveRootLocked(root)
	return true
}

func (s *Store) GetEstimate(estimateID string) (*Estimate, bool) {
	root := s.Load()
	return root.Estimate(estimateID)
}

func (s *Store) ListEstimates() []*Estimate {
	root := s.Load()
	return root.Estimates.Values()
}

// AddEstimate stores e, generating an ID when none is set. It returns the
// estimate ID, or "" when an estimate with that ID already exists.
func (s *Store) AddEstimate(e Estimate) string {
	if e.ID == "" {
		e.ID = s.GenerateID("estimate")
	}
	if !s.Update(func(root *Root) bool { return root.AddEstimate(&e) }) {
		return ""
	}
	return e.ID
}

func (s *Store) RemoveEstimate(estimateID string) bool {
	return s.Update(func(root *Root) bool { return root.RemoveEstimate(estimateID) })
}

func (s *Store) GetRoom(estimateID, roomID string) (*Room, bool) {
	root := s.Load()
	return root.Room(estimateID, roomID)
}

// AddRoom returns the room ID, or "" when the estimate does not exist.
func (s *Store) AddRoom(estimateID string, r Room) string {
	if r.ID == "" {
		r.ID = s.GenerateID("room")
	}
	if !s.Update(func(root *Root) bool { return root.AddRoom(estimateID, &r) }) {
		return ""
	}
	return r.ID
}

func (s *Store) RemoveRoom(estimateID, roomID string) bool {
	return s.Update(func(root *Root) bool { return root.RemoveRoom(estimateID, roomID) })
}

// AddProductToRoom returns false without writing when the product ID is
// already present in the room.
func (s *Store) AddProductToRoom(estimateID, roomID string, p Product) bool {
	return s.Update(func(root *Root) bool { return root.AddProductToRoom(estimateID, roomID, &p) })
}

func (s *Store) RemoveProductFromRoom(estimateID, roomID, productID string) bool {
	return s.Update(func(root *Root) bool { return root.RemoveProductFromRoom(estimateID, roomID, productID) })
}

func (s *Store) ReplaceProductInRoom(estimateID, roomID, oldProductID string, p Product, parentProductID string) bool {
	return s.Update(func(root *Root) bool {
		return root.ReplaceProductInRoom(estimateID, roomID, oldProductID, &p, parentProductID)
	})
}

func (s *Store) GetSuggestionsForRoom(estimateID, roomID string) []SuggestedProduct {
	r, ok := s.GetRoom(estimateID, roomID)
	if !ok {
		return nil
	}
	return r.ProductSuggestions
}

func (s *Store) SetSuggestionsForRoom(estimateID, roomID string, suggestions []SuggestedProduct) bool {
	return s.Update(func(root *Root) bool { return root.SetSuggestionsForRoom(estimateID, roomID, suggestions) })
}

// RoomProductIDs lists the top-level product IDs of a room.
func (s *Store) RoomProductIDs(estimateID, roomID string) []string {
	r, ok := s.GetRoom(estimateID, roomID)
	if !ok {
		return nil
	}
	return r.ProductIDs()
}

func (s *Store) GetCustomerDetails() (CustomerDetails, bool) {
	root := s.Load()
	if root.CustomerDetails == nil {
		return CustomerDetails{}, false
	}
	return *root.CustomerDetails, true
}

func (s *Store) UpdateCustomerDetails(details CustomerDetails) bool {
	ok := s.Update(func(root *Root) bool {
		d := details
		root.CustomerDetails = &d
		return true
	})
	if ok && s.onCustomerDetails != nil {
		s.onCustomerDetails(details)
	}
	return ok
}

func (s *Store) ClearCustomerDetails() {
	changed := s.Update(func(root *Root) bool {
		if root.CustomerDetails == nil {
			return false
		}
		root.CustomerDetails = nil
		return true
	})
	if changed && s.onCustomerDetails != nil {
		s.onCustomerDetails(CustomerDetails{})
	}
}

func (s *Store) loadLocked() Root {
	root := Root{Estimates: *NewOrderedMap[*Estimate]()}
	if raw, ok := s.readLocked(s.dataKey); ok {
		if decoded, decodeOK := s.decodeRoot(raw); decodeOK {
			root = decoded
		}
	}
	migrated := root.legacy()
	root.normalize()
	if raw, ok := s.readLocked(s.customerKey); ok {
		var details CustomerDetails
		if err := json.Unmarshal([]byte(raw), &details); err != nil {
			s.logf("customer details record unreadable, ignoring: %v", err)
		} else {
			root.CustomerDetails = &details
		}
	}
	if migrated {
		s.logf("migrated legacy estimate record to keyed form")
		s.saveRootLocked(root)
	}
	return root
}

func (s *Store) decodeRoot(raw string) (Root, bool) {
	if err := ValidateRecord([]byte(raw)); err != nil {
		s.logf("estimate record failed validation, starting empty: %v", err)
		return Root{}, false
	}
	var root Root
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		s.logf("estimate record unreadable, starting empty: %v", err)
		return Root{}, false
	}
	return root, true
}

func (s *Store) saveRootLocked(root Root) {
	data, err := json.Marshal(root)
	if err != nil {
		s.logf("encode estimate record failed: %v", err)
		return
	}
	s.writeLocked(s.dataKey, string(data))
	if root.CustomerDetails == nil {
		for _, b := range []Backend{s.primary, s.fallback} {
			if b != nil {
				_ = b.Remove(s.customerKey)
			}
		}
		delete(s.volatile, s.customerKey)
		delete(s.tiers, s.customerKey)
		return
	}
	details, err := json.Marshal(root.CustomerDetails)
	if err != nil {
		s.logf("encode customer details failed: %v", err)
		return
	}
	s.writeLocked(s.customerKey, string(details))
}

// readLocked consults the tier that took the last write of key first.
// Keys are tracked separately because the data record can outgrow a quota
// the customer record still fits in.
func (s *Store) readLocked(key string) (string, bool) {
	tier := s.tiers[key]
	if tier == tierVolatile {
		if v, ok := s.volatile[key]; ok {
			return v, true
		}
	}
	order := []Backend{s.primary, s.fallback}
	if tier != tierPrimary {
		order = []Backend{s.fallback, s.primary}
	}
	for _, b := range order {
		if b == nil {
			continue
		}
		v, ok, err := b.Get(key)
		if err != nil {
			s.logf("storage read %s failed: %v", key, err)
			continue
		}
		if ok {
			return v, true
		}
	}
	return "", false
}

// writeLocked tries primary, then fallback, then keeps the value in memory
// for the rest of the session. Copies left in other tiers are removed so a
// later read cannot pick up an older value. Errors never reach the caller.
func (s *Store) writeLocked(key, value string) {
	err := s.primary.Set(key, value)
	if err == nil {
		if s.tiers[key] != tierPrimary && s.fallback != nil {
			_ = s.fallback.Remove(key)
		}
		delete(s.volatile, key)
		delete(s.tiers, key)
		return
	}
	s.logf("primary storage write %s failed: %v", key, err)
	_ = s.primary.Remove(key)
	if s.fallback != nil {
		fbErr := s.fallback.Set(key, value)
		if fbErr == nil {
			delete(s.volatile, key)
			s.tiers[key] = tierFallback
			return
		}
		s.logf("fallback storage write %s failed: %v", key, fbErr)
	}
	s.logf("storage unavailable; %s kept in memory only", key)
	s.volatile[key] = value
	s.tiers[key] = tierVolatile
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
