package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketplace/model"
	"marketplace/stock"
)

// MemoryStore is an in-process Store used for development and tests. It
// implements the same commit protocol as the Postgres store: per-product
// mutexes acquired in ascending product-ID order with a bounded wait,
// stock re-verified under lock before any decrement is applied.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[uuid.UUID]model.Product
	carts    map[uuid.UUID]string                        // cart ID -> session key ("" when none)
	items    map[uuid.UUID]map[uuid.UUID]model.CartItem // cart ID -> product ID -> item
	sessions map[string]uuid.UUID

	// productLocks holds one mutex per product, created on demand.
	productLocks sync.Map // uuid.UUID -> *sync.Mutex

	// LockTimeout bounds the wait for product locks during CommitCheckout.
	LockTimeout time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[uuid.UUID]model.Product),
		carts:    make(map[uuid.UUID]string),
		items:    make(map[uuid.UUID]map[uuid.UUID]model.CartItem),
		sessions: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Close() error { return nil }

// --- products ---

func (s *MemoryStore) CreateProduct(_ context.Context, p model.Product) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *MemoryStore) FindProductByID(_ context.Context, id uuid.UUID) (model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return model.Product{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateStock(_ context.Context, productID uuid.UUID, newStock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.Stock = newStock
	s.products[productID] = p
	return nil
}

// --- carts ---

func (s *MemoryStore) CreateCart(_ context.Context, sessionID string) (model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID != "" {
		if _, taken := s.sessions[sessionID]; taken {
			return model.Cart{}, ErrDuplicateSession
		}
	}
	id := uuid.New()
	s.carts[id] = sessionID
	s.items[id] = make(map[uuid.UUID]model.CartItem)
	if sessionID != "" {
		s.sessions[sessionID] = id
	}
	return model.Cart{ID: id, SessionID: sessionID, Items: []model.CartItem{}}, nil
}

func (s *MemoryStore) FindCartByID(_ context.Context, id uuid.UUID) (model.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartLocked(id)
}

func (s *MemoryStore) FindCartBySession(_ context.Context, sessionID string) (model.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessions[sessionID]
	if !ok {
		return model.Cart{}, ErrNotFound
	}
	return s.cartLocked(id)
}

func (s *MemoryStore) DeleteCart(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[id]; !ok {
		return ErrNotFound
	}
	s.dropCartLocked(id)
	return nil
}

// cartLocked assembles a cart snapshot; callers hold at least mu.RLock.
func (s *MemoryStore) cartLocked(id uuid.UUID) (model.Cart, error) {
	session, ok := s.carts[id]
	if !ok {
		return model.Cart{}, ErrNotFound
	}
	items := make([]model.CartItem, 0, len(s.items[id]))
	for _, it := range s.items[id] {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].ProductID[:], items[j].ProductID[:]) < 0
	})
	return model.Cart{ID: id, SessionID: session, Items: items}, nil
}

func (s *MemoryStore) dropCartLocked(id uuid.UUID) {
	if session := s.carts[id]; session != "" {
		delete(s.sessions, session)
	}
	delete(s.items, id)
	delete(s.carts, id)
}

// --- cart items ---

func (s *MemoryStore) FindCartItem(_ context.Context, cartID, productID uuid.UUID) (model.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[cartID][productID]
	if !ok {
		return model.CartItem{}, ErrNotFound
	}
	return it, nil
}

// UpsertCartItem adds quantity to the (cart, product) line item under the
// store lock, so concurrent adds for the same pair never lose an increment.
func (s *MemoryStore) UpsertCartItem(_ context.Context, cartID, productID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cartItems, ok := s.items[cartID]
	if !ok {
		return ErrNotFound
	}
	if it, ok := cartItems[productID]; ok {
		it.Quantity += quantity
		cartItems[productID] = it
		return nil
	}
	cartItems[productID] = model.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
	}
	return nil
}

// --- checkout commit ---

func (s *MemoryStore) CommitCheckout(ctx context.Context, cartID uuid.UUID) error {
	cart, err := s.FindCartByID(ctx, cartID)
	if err != nil {
		return err
	}
	if len(cart.Items) == 0 {
		return ErrEmptyCart
	}

	// Phase one: acquire per-product locks in ascending product-ID order.
	// Items arrive sorted from cartLocked.
	locked := make([]*sync.Mutex, 0, len(cart.Items))
	release := func() {
		for _, m := range locked {
			m.Unlock()
		}
	}
	deadline := time.Now().Add(s.lockTimeout())
	for _, it := range cart.Items {
		m := s.productLock(it.ProductID)
		if !acquireUntil(ctx, m, deadline) {
			release()
			return ErrTxContention
		}
		locked = append(locked, m)
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	// The cart may have been checked out or mutated while we waited for
	// locks; a changed product set would mean our locks cover the wrong
	// rows, so surface that as retryable contention.
	current, ok := s.items[cartID]
	if !ok {
		return ErrNotFound
	}
	if len(current) != len(cart.Items) {
		return ErrTxContention
	}
	for _, it := range cart.Items {
		if _, ok := current[it.ProductID]; !ok {
			return ErrTxContention
		}
	}

	// Phase two: re-verify under lock, then apply every decrement.
	var shortfalls []stock.Shortfall
	for _, it := range cart.Items {
		qty := current[it.ProductID].Quantity
		p, ok := s.products[it.ProductID]
		if !ok || qty > p.Stock {
			name := p.Name
			if !ok {
				name = it.ProductID.String()
			}
			shortfalls = append(shortfalls, stock.Shortfall{
				ProductName: name,
				Available:   p.Stock,
				Requested:   qty,
			})
		}
	}
	if len(shortfalls) > 0 {
		return &stock.InsufficientStockError{Shortfalls: shortfalls}
	}

	for _, it := range cart.Items {
		p := s.products[it.ProductID]
		p.Stock -= current[it.ProductID].Quantity
		s.products[it.ProductID] = p
	}
	s.dropCartLocked(cartID)
	return nil
}

func (s *MemoryStore) lockTimeout() time.Duration {
	if s.LockTimeout <= 0 {
		return defaultLockTimeout
	}
	return s.LockTimeout
}

func (s *MemoryStore) productLock(id uuid.UUID) *sync.Mutex {
	if v, ok := s.productLocks.Load(id); ok {
		return v.(*sync.Mutex)
	}
	v, _ := s.productLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// acquireUntil takes the mutex, giving up at the deadline or when ctx is
// cancelled.
func acquireUntil(ctx context.Context, m *sync.Mutex, deadline time.Time) bool {
	for {
		if m.TryLock() {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
