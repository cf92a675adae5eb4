package media

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/twitchtv/twirp"
)

// Memory is an in-process Platform for tests and dry runs.
// Like the real platform, it rejects an inbound trunk that claims a number another inbound trunk routes.
type Memory struct {
	mu       sync.Mutex
	inbound  map[string]InboundTrunk
	outbound map[string]OutboundTrunk
	rules    map[string]DispatchRule

	// Fail, when set, is consulted before every call; a non-nil result fails the call.
	Fail func(op string) error
}

func NewMemory() *Memory {
	return &Memory{
		inbound:  map[string]InboundTrunk{},
		outbound: map[string]OutboundTrunk{},
		rules:    map[string]DispatchRule{},
	}
}

func (m *Memory) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	if err := m.Fail(op); err != nil {
		return classify(op, err)
	}
	return nil
}

func (m *Memory) ListInboundTrunks(ctx context.Context) ([]InboundTrunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list inbound trunks"); err != nil {
		return nil, err
	}
	out := make([]InboundTrunk, 0, len(m.inbound))
	for _, t := range m.inbound {
		t.Numbers = append([]string(nil), t.Numbers...)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateInboundTrunk(ctx context.Context, spec InboundTrunkSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create inbound trunk"); err != nil {
		return "", err
	}
	for _, existing := range m.inbound {
		for _, n := range existing.Numbers {
			for _, want := range spec.Numbers {
				if n == want {
					return "", classify("create inbound trunk",
						twirp.NewError(twirp.AlreadyExists, fmt.Sprintf("number %s already routed by %s", n, existing.ID)))
				}
			}
		}
	}
	id := "ST_" + uuid.NewString()
	m.inbound[id] = InboundTrunk{
		ID:           id,
		Name:         spec.Name,
		Numbers:      append([]string(nil), spec.Numbers...),
		Metadata:     spec.Metadata,
		KrispEnabled: spec.KrispEnabled,
	}
	return id, nil
}

func (m *Memory) DeleteInboundTrunk(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete inbound trunk"); err != nil {
		return err
	}
	delete(m.inbound, id)
	return nil
}

func (m *Memory) ListOutboundTrunks(ctx context.Context) ([]OutboundTrunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list outbound trunks"); err != nil {
		return nil, err
	}
	out := make([]OutboundTrunk, 0, len(m.outbound))
	for _, t := range m.outbound {
		t.Numbers = append([]string(nil), t.Numbers...)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateOutboundTrunk(ctx context.Context, spec OutboundTrunkSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create outbound trunk"); err != nil {
		return "", err
	}
	if spec.Address == "" {
		return "", classify("create outbound trunk", twirp.RequiredArgumentError("address"))
	}
	id := "ST_" + uuid.NewString()
	m.outbound[id] = OutboundTrunk{
		ID:           id,
		Name:         spec.Name,
		Address:      spec.Address,
		Numbers:      append([]string(nil), spec.Numbers...),
		AuthUsername: spec.AuthUsername,
		Metadata:     spec.Metadata,
	}
	return id, nil
}

func (m *Memory) DeleteOutboundTrunk(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete outbound trunk"); err != nil {
		return err
	}
	delete(m.outbound, id)
	return nil
}

func (m *Memory) ListDispatchRules(ctx context.Context) ([]DispatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list dispatch rules"); err != nil {
		return nil, err
	}
	out := make([]DispatchRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateDispatchRule(ctx context.Context, spec DispatchRuleSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create dispatch rule"); err != nil {
		return "", err
	}
	id := "SDR_" + uuid.NewString()
	m.rules[id] = DispatchRule{
		ID:         id,
		Name:       spec.Name,
		RoomPrefix: spec.RoomPrefix,
		AgentName:  spec.AgentName,
		Metadata:   spec.Metadata,
	}
	return id, nil
}

func (m *Memory) DeleteDispatchRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete dispatch rule"); err != nil {
		return err
	}
	delete(m.rules, id)
	return nil
}
