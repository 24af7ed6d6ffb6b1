package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore: Store in-memory untuk test dan dev lokal. Mutex per customer
// menggantikan row lock; operasi beda customer jalan paralel.
type MemStore struct {
	mu        sync.Mutex
	customers map[string]*memCustomer
}

type memCustomer struct {
	mu           sync.Mutex
	ledger       CustomerLedger
	transactions []Transaction
	reservations map[string]*Reservation // key = order_ref
}

func NewMemStore() *MemStore {
	return &MemStore{customers: map[string]*memCustomer{}}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) customer(id string) *memCustomer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		now := time.Now()
		c = &memCustomer{
			ledger:       CustomerLedger{CustomerID: id, CreatedAt: now, UpdatedAt: now},
			reservations: map[string]*Reservation{},
		}
		s.customers[id] = c
	}
	return c
}

func (s *MemStore) GetOrCreate(_ context.Context, customerID string) (CustomerLedger, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger, nil
}

func (c *memCustomer) append(typ TxType, points int64, description, orderRef string) Transaction {
	t := Transaction{
		ID:          uuid.NewString(),
		CustomerID:  c.ledger.CustomerID,
		Type:        typ,
		Points:      points,
		Description: description,
		OrderRef:    orderRef,
		CreatedAt:   time.Now(),
	}
	c.transactions = append(c.transactions, t)
	c.ledger.UpdatedAt = t.CreatedAt
	return t
}

func (c *memCustomer) findByOrderRef(orderRef string, typ TxType) *Transaction {
	for i := range c.transactions {
		if c.transactions[i].OrderRef == orderRef && c.transactions[i].Type == typ {
			return &c.transactions[i]
		}
	}
	return nil
}

func (s *MemStore) Earn(_ context.Context, customerID string, points int64, orderRef, description string) (Transaction, bool, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.findByOrderRef(orderRef, TxEarned); prev != nil {
		return *prev, true, nil
	}
	t := c.append(TxEarned, points, description, orderRef)
	c.ledger.Balance += points
	c.ledger.LifetimeEarned += points
	return t, false, nil
}

func (s *MemStore) Reserve(_ context.Context, customerID string, points int64, orderRef string) error {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if res, ok := c.reservations[orderRef]; ok {
		switch res.Status {
		case ReservationReserved:
			if res.Points != points {
				return ErrReservationMismatch
			}
			return nil
		case ReservationCommitted:
			return ErrReservationMismatch
		}
	}
	if points > c.ledger.Available() {
		return ErrInsufficientAvailable
	}
	c.reservations[orderRef] = &Reservation{
		CustomerID: customerID,
		OrderRef:   orderRef,
		Points:     points,
		Status:     ReservationReserved,
		CreatedAt:  time.Now(),
	}
	c.ledger.Reserved += points
	return nil
}

func (s *MemStore) CommitRedeem(_ context.Context, customerID, orderRef string) (Transaction, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.reservations[orderRef]
	if !ok || res.Status != ReservationReserved {
		return Transaction{}, ErrNoReservationFound
	}
	res.Status = ReservationCommitted
	t := c.append(TxRedeemed, -res.Points, "points redeemed", orderRef)
	c.ledger.Balance -= res.Points
	c.ledger.Reserved -= res.Points
	c.ledger.LifetimeRedeemed += res.Points
	return t, nil
}

func (s *MemStore) Release(_ context.Context, customerID, orderRef string, txType TxType, description string) (*Transaction, error) {
	if txType != TxReleased && txType != TxExpired {
		return nil, fmt.Errorf("release: unexpected transaction type %s", txType)
	}
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.reservations[orderRef]
	if !ok || res.Status != ReservationReserved {
		return nil, nil
	}
	if txType == TxExpired {
		res.Status = ReservationExpired
	} else {
		res.Status = ReservationReleased
	}
	t := c.append(txType, 0, description, orderRef)
	c.ledger.Reserved -= res.Points
	return &t, nil
}

func (s *MemStore) Refund(_ context.Context, customerID string, points int64, orderRef, description string) (Transaction, bool, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.findByOrderRef(orderRef, TxRefunded); prev != nil {
		return *prev, true, nil
	}
	t := c.append(TxRefunded, points, description, orderRef)
	c.ledger.Balance += points
	return t, false, nil
}

func (s *MemStore) Remove(_ context.Context, customerID string, points int64, orderRef, description string) (int64, *Transaction, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := points
	if avail := c.ledger.Available(); removed > avail {
		removed = avail
	}
	if removed <= 0 {
		return 0, nil, nil
	}
	t := c.append(TxRemoved, -removed, description, orderRef)
	c.ledger.Balance -= removed
	return removed, &t, nil
}

func (s *MemStore) Adjust(_ context.Context, customerID string, points int64, description string) (Transaction, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if points < 0 && -points > c.ledger.Available() {
		return Transaction{}, ErrInsufficientAvailable
	}
	t := c.append(TxAdjusted, points, description, "")
	c.ledger.Balance += points
	return t, nil
}

func (s *MemStore) FindTransaction(_ context.Context, customerID, orderRef string, typ TxType) (*Transaction, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if t := c.findByOrderRef(orderRef, typ); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) RemovedPoints(_ context.Context, customerID, orderRef string) (int64, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, t := range c.transactions {
		if t.OrderRef == orderRef && t.Type == TxRemoved {
			total += -t.Points
		}
	}
	return total, nil
}

func (s *MemStore) OpenReservation(_ context.Context, customerID, orderRef string) (*Reservation, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.reservations[orderRef]
	if !ok || res.Status != ReservationReserved {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (s *MemStore) ListLedgers(_ context.Context, limit, offset int) ([]CustomerLedger, int64, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.customers))
	for id := range s.customers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	total := int64(len(ids))
	if offset >= len(ids) {
		return nil, total, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]CustomerLedger, 0, len(ids))
	for _, id := range ids {
		c := s.customer(id)
		c.mu.Lock()
		out = append(out, c.ledger)
		c.mu.Unlock()
	}
	return out, total, nil
}

func (s *MemStore) ListTransactions(_ context.Context, customerID string, limit, offset int) ([]Transaction, error) {
	c := s.customer(customerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	// terbaru dulu
	out := make([]Transaction, len(c.transactions))
	for i, t := range c.transactions {
		out[len(c.transactions)-1-i] = t
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ExpireStale(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.customers))
	for id := range s.customers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	var expired []Reservation
	for _, id := range ids {
		c := s.customer(id)
		c.mu.Lock()
		var refs []string
		for ref, res := range c.reservations {
			if res.Status == ReservationReserved && res.CreatedAt.Before(cutoff) {
				refs = append(refs, ref)
			}
		}
		c.mu.Unlock()
		sort.Strings(refs)
		for _, ref := range refs {
			t, err := s.Release(ctx, id, ref, TxExpired, "reservation expired")
			if err != nil {
				return expired, err
			}
			if t != nil {
				c.mu.Lock()
				cp := *c.reservations[ref]
				c.mu.Unlock()
				expired = append(expired, cp)
			}
		}
	}
	return expired, nil
}
