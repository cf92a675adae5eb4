package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and dry runs. It applies the same
// merge rules as the SQL upserts.
type MemoryStore struct {
	mu       sync.Mutex
	inbound  map[string]InboundTrunk
	outbound map[string]OutboundTrunk
	numbers  map[string]PhoneNumber
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inbound:  map[string]InboundTrunk{},
		outbound: map[string]OutboundTrunk{},
		numbers:  map[string]PhoneNumber{},
		clock:    time.Now,
	}
}

func (s *MemoryStore) FindInboundTrunkByCarrierID(ctx context.Context, trunkID string) (InboundTrunk, bool, error) {
	if trunkID == "" {
		return InboundTrunk{}, false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.inbound[trunkID]
	return t, ok, nil
}

func (s *MemoryStore) UpsertInboundTrunk(ctx context.Context, t InboundTrunk) (InboundTrunk, error) {
	if err := validateInbound(t); err != nil {
		return InboundTrunk{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	cur, ok := s.inbound[t.TrunkID]
	if !ok {
		t.CreatedAt, t.UpdatedAt = now, now
		s.inbound[t.TrunkID] = t
		return t, nil
	}
	if t.MediaTrunkID != "" {
		cur.MediaTrunkID = t.MediaTrunkID
	}
	if t.CarrierAccountSID != "" {
		cur.CarrierAccountSID = t.CarrierAccountSID
	}
	if t.CarrierAuthToken != "" {
		cur.CarrierAuthToken = t.CarrierAuthToken
	}
	if cur.SIPUsername == "" {
		cur.SIPUsername = t.SIPUsername
	}
	if cur.SIPPassword == "" {
		cur.SIPPassword = t.SIPPassword
	}
	cur.UpdatedAt = now
	s.inbound[t.TrunkID] = cur
	return cur, nil
}

func (s *MemoryStore) UpsertPhoneNumber(ctx context.Context, n PhoneNumber) error {
	if err := validatePhoneNumber(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[n.TrunkID]; !ok {
		return ErrNotFound
	}
	now := s.clock().UTC()
	if cur, ok := s.numbers[n.PhoneNumber]; ok {
		cur.TrunkID = n.TrunkID
		cur.UpdatedAt = now
		s.numbers[n.PhoneNumber] = cur
		return nil
	}
	n.CreatedAt, n.UpdatedAt = now, now
	s.numbers[n.PhoneNumber] = n
	return nil
}

func (s *MemoryStore) ListPhoneNumbers(ctx context.Context, trunkID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, n := range s.numbers {
		if n.TrunkID == trunkID {
			out = append(out, n.PhoneNumber)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) LookupNumber(ctx context.Context, phoneNumber string) (NumberRoute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.numbers[phoneNumber]
	if !ok {
		return NumberRoute{}, ErrNotFound
	}
	t := s.inbound[n.TrunkID]
	return NumberRoute{
		PhoneNumber:  n.PhoneNumber,
		TrunkID:      n.TrunkID,
		AccountID:    t.AccountID,
		MediaTrunkID: t.MediaTrunkID,
	}, nil
}

func (s *MemoryStore) UpsertOutboundTrunk(ctx context.Context, t OutboundTrunk) error {
	if err := validateOutbound(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[t.InboundTrunkID]; !ok {
		return ErrNotFound
	}
	now := s.clock().UTC()
	for id, cur := range s.outbound {
		if cur.AccountID == t.AccountID && id != t.MediaTrunkID {
			delete(s.outbound, id)
		}
	}
	if cur, ok := s.outbound[t.MediaTrunkID]; ok {
		cur.InboundTrunkID = t.InboundTrunkID
		cur.UpdatedAt = now
		s.outbound[t.MediaTrunkID] = cur
		return nil
	}
	t.CreatedAt, t.UpdatedAt = now, now
	s.outbound[t.MediaTrunkID] = t
	return nil
}

func (s *MemoryStore) FindOutboundTrunkByAccount(ctx context.Context, accountID string) (OutboundTrunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.outbound {
		if t.AccountID == accountID {
			return t, nil
		}
	}
	return OutboundTrunk{}, ErrNotFound
}
