package connector

// State is how far a connect run got. States only move forward within a run.
type State string

const (
	StateUnprovisioned      State = "UNPROVISIONED"
	StateCarrierTrunkReady  State = "CARRIER_TRUNK_READY"
	StatePhoneAssociated    State = "PHONE_ASSOCIATED"
	StateMediaInboundReady  State = "MEDIA_INBOUND_READY"
	StateDispatchReady      State = "DISPATCH_READY"
	StateMediaOutboundReady State = "MEDIA_OUTBOUND_READY"
)

// Step names a unit of the connect workflow, in execution order.
type Step string

const (
	StepValidate          Step = "validate"
	StepAcquireLock       Step = "acquire_lock"
	StepCarrierTrunk      Step = "ensure_carrier_trunk"
	StepLoadInboundRecord Step = "load_inbound_record"
	StepAssociateNumber   Step = "associate_phone_number"
	StepSaveInboundRecord Step = "save_inbound_record"
	StepUnionNumbers      Step = "union_phone_numbers"
	StepMediaInbound      Step = "reconcile_media_inbound_trunk"
	StepDispatchRule      Step = "reconcile_dispatch_rule"
	StepPersistNumber     Step = "persist_phone_number"
	StepMediaOutbound     Step = "reconcile_media_outbound_trunk"
	StepPersistOutbound   Step = "persist_outbound_record"
)

// ConnectResult reports everything a connect run touched. It is returned on
// failure too, so callers can see which resources were mutated before the abort.
type ConnectResult struct {
	AccountID   string `json:"account_id"`
	PhoneNumber string `json:"phone_number"`
	State       State  `json:"state"`

	CarrierTrunkID      string `json:"carrier_trunk_id,omitempty"`
	CarrierTrunkCreated bool   `json:"carrier_trunk_created"`
	SIPDomain           string `json:"sip_domain,omitempty"`

	// Numbers is the full set routed through the media inbound trunk.
	Numbers []string `json:"numbers,omitempty"`

	MediaInboundTrunkID     string   `json:"media_inbound_trunk_id,omitempty"`
	DeletedInboundTrunkIDs  []string `json:"deleted_inbound_trunk_ids,omitempty"`
	DispatchRuleID          string   `json:"dispatch_rule_id,omitempty"`
	DeletedDispatchRuleIDs  []string `json:"deleted_dispatch_rule_ids,omitempty"`
	MediaOutboundTrunkID    string   `json:"media_outbound_trunk_id,omitempty"`
	DeletedOutboundTrunkIDs []string `json:"deleted_outbound_trunk_ids,omitempty"`

	CompletedSteps []Step `json:"completed_steps"`
}

func (r *ConnectResult) complete(step Step) {
	r.CompletedSteps = append(r.CompletedSteps, step)
}

// DisconnectResult is returned by Disconnect. Changed is always false today.
type DisconnectResult struct {
	AccountID   string `json:"account_id"`
	PhoneNumber string `json:"phone_number"`
	Changed     bool   `json:"changed"`
}
