package media

import (
	"context"
	"errors"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"
)

// sipAPI is the subset of *lksdk.SIPClient we call.
type sipAPI interface {
	ListSIPInboundTrunk(ctx context.Context, req *livekit.ListSIPInboundTrunkRequest) (*livekit.ListSIPInboundTrunkResponse, error)
	CreateSIPInboundTrunk(ctx context.Context, req *livekit.CreateSIPInboundTrunkRequest) (*livekit.SIPInboundTrunkInfo, error)
	ListSIPOutboundTrunk(ctx context.Context, req *livekit.ListSIPOutboundTrunkRequest) (*livekit.ListSIPOutboundTrunkResponse, error)
	CreateSIPOutboundTrunk(ctx context.Context, req *livekit.CreateSIPOutboundTrunkRequest) (*livekit.SIPOutboundTrunkInfo, error)
	DeleteSIPTrunk(ctx context.Context, req *livekit.DeleteSIPTrunkRequest) (*livekit.SIPTrunkInfo, error)
	ListSIPDispatchRule(ctx context.Context, req *livekit.ListSIPDispatchRuleRequest) (*livekit.ListSIPDispatchRuleResponse, error)
	CreateSIPDispatchRule(ctx context.Context, req *livekit.CreateSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
	DeleteSIPDispatchRule(ctx context.Context, req *livekit.DeleteSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
}

// LiveKitPlatform implements Platform over the LiveKit SIP service.
type LiveKitPlatform struct {
	sip sipAPI
}

func NewLiveKit(url, apiKey, apiSecret string) *LiveKitPlatform {
	return &LiveKitPlatform{sip: lksdk.NewSIPClient(url, apiKey, apiSecret)}
}

func (p *LiveKitPlatform) ListInboundTrunks(ctx context.Context) ([]InboundTrunk, error) {
	resp, err := p.sip.ListSIPInboundTrunk(ctx, &livekit.ListSIPInboundTrunkRequest{})
	if err != nil {
		return nil, classify("list inbound trunks", err)
	}
	out := make([]InboundTrunk, 0, len(resp.GetItems()))
	for _, t := range resp.GetItems() {
		out = append(out, InboundTrunk{
			ID:           t.GetSipTrunkId(),
			Name:         t.GetName(),
			Numbers:      t.GetNumbers(),
			Metadata:     t.GetMetadata(),
			KrispEnabled: t.GetKrispEnabled(),
		})
	}
	return out, nil
}

func (p *LiveKitPlatform) CreateInboundTrunk(ctx context.Context, spec InboundTrunkSpec) (string, error) {
	info, err := p.sip.CreateSIPInboundTrunk(ctx, &livekit.CreateSIPInboundTrunkRequest{
		Trunk: &livekit.SIPInboundTrunkInfo{
			Name:         spec.Name,
			Numbers:      spec.Numbers,
			Metadata:     spec.Metadata,
			KrispEnabled: spec.KrispEnabled,
		},
	})
	if err != nil {
		return "", classify("create inbound trunk", err)
	}
	return info.GetSipTrunkId(), nil
}

func (p *LiveKitPlatform) DeleteInboundTrunk(ctx context.Context, id string) error {
	return p.deleteTrunk(ctx, "delete inbound trunk", id)
}

func (p *LiveKitPlatform) ListOutboundTrunks(ctx context.Context) ([]OutboundTrunk, error) {
	resp, err := p.sip.ListSIPOutboundTrunk(ctx, &livekit.ListSIPOutboundTrunkRequest{})
	if err != nil {
		return nil, classify("list outbound trunks", err)
	}
	out := make([]OutboundTrunk, 0, len(resp.GetItems()))
	for _, t := range resp.GetItems() {
		out = append(out, OutboundTrunk{
			ID:           t.GetSipTrunkId(),
			Name:         t.GetName(),
			Address:      t.GetAddress(),
			Numbers:      t.GetNumbers(),
			AuthUsername: t.GetAuthUsername(),
			Metadata:     t.GetMetadata(),
		})
	}
	return out, nil
}

func (p *LiveKitPlatform) CreateOutboundTrunk(ctx context.Context, spec OutboundTrunkSpec) (string, error) {
	info, err := p.sip.CreateSIPOutboundTrunk(ctx, &livekit.CreateSIPOutboundTrunkRequest{
		Trunk: &livekit.SIPOutboundTrunkInfo{
			Name:         spec.Name,
			Address:      spec.Address,
			Numbers:      spec.Numbers,
			AuthUsername: spec.AuthUsername,
			AuthPassword: spec.AuthPassword,
			Metadata:     spec.Metadata,
		},
	})
	if err != nil {
		return "", classify("create outbound trunk", err)
	}
	return info.GetSipTrunkId(), nil
}

func (p *LiveKitPlatform) DeleteOutboundTrunk(ctx context.Context, id string) error {
	return p.deleteTrunk(ctx, "delete outbound trunk", id)
}

func (p *LiveKitPlatform) deleteTrunk(ctx context.Context, op, id string) error {
	_, err := p.sip.DeleteSIPTrunk(ctx, &livekit.DeleteSIPTrunkRequest{SipTrunkId: id})
	if err != nil && !isNotFound(err) {
		return classify(op, err)
	}
	return nil
}

func (p *LiveKitPlatform) ListDispatchRules(ctx context.Context) ([]DispatchRule, error) {
	resp, err := p.sip.ListSIPDispatchRule(ctx, &livekit.ListSIPDispatchRuleRequest{})
	if err != nil {
		return nil, classify("list dispatch rules", err)
	}
	out := make([]DispatchRule, 0, len(resp.GetItems()))
	for _, r := range resp.GetItems() {
		rule := DispatchRule{
			ID:         r.GetSipDispatchRuleId(),
			Name:       r.GetName(),
			Metadata:   r.GetMetadata(),
			RoomPrefix: r.GetRule().GetDispatchRuleIndividual().GetRoomPrefix(),
		}
		if agents := r.GetRoomConfig().GetAgents(); len(agents) > 0 {
			rule.AgentName = agents[0].GetAgentName()
		}
		out = append(out, rule)
	}
	return out, nil
}

func (p *LiveKitPlatform) CreateDispatchRule(ctx context.Context, spec DispatchRuleSpec) (string, error) {
	info := &livekit.SIPDispatchRuleInfo{
		Name:     spec.Name,
		Metadata: spec.Metadata,
		Rule: &livekit.SIPDispatchRule{
			Rule: &livekit.SIPDispatchRule_DispatchRuleIndividual{
				DispatchRuleIndividual: &livekit.SIPDispatchRuleIndividual{RoomPrefix: spec.RoomPrefix},
			},
		},
	}
	if spec.AgentName != "" {
		info.RoomConfig = &livekit.RoomConfiguration{
			Agents: []*livekit.RoomAgentDispatch{{AgentName: spec.AgentName}},
		}
	}
	created, err := p.sip.CreateSIPDispatchRule(ctx, &livekit.CreateSIPDispatchRuleRequest{DispatchRule: info})
	if err != nil {
		return "", classify("create dispatch rule", err)
	}
	return created.GetSipDispatchRuleId(), nil
}

func (p *LiveKitPlatform) DeleteDispatchRule(ctx context.Context, id string) error {
	_, err := p.sip.DeleteSIPDispatchRule(ctx, &livekit.DeleteSIPDispatchRuleRequest{SipDispatchRuleId: id})
	if err != nil && !isNotFound(err) {
		return classify("delete dispatch rule", err)
	}
	return nil
}

func classify(op string, err error) error {
	var twerr twirp.Error
	if errors.As(err, &twerr) {
		return &APIError{Op: op, Code: twerr.Code(), Err: err}
	}
	return &APIError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	var twerr twirp.Error
	return errors.As(err, &twerr) && twerr.Code() == twirp.NotFound
}
