package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"trunk-connector/internal/audit"
	"trunk-connector/internal/config"
	"trunk-connector/internal/media"
	"trunk-connector/internal/store"
	"trunk-connector/internal/telephony"
	"trunk-connector/pkg/logger"
)

// Options are the fixed names and limits a Coordinator provisions with.
type Options struct {
	CarrierTrunkName  string
	SIPURI            string
	InboundTrunkName  string
	OutboundTrunkName string
	DispatchRuleName  string
	RoomPrefix        string
	AgentName         string

	ConnectTimeout time.Duration
	Retry          RetryPolicy
}

func OptionsFromConfig(lk config.LiveKitConfig, c config.ConnectorConfig) Options {
	return Options{
		CarrierTrunkName:  c.CarrierTrunkName,
		SIPURI:            lk.SIPURI,
		InboundTrunkName:  c.InboundTrunkName,
		OutboundTrunkName: c.OutboundTrunkName,
		DispatchRuleName:  c.DispatchRuleName,
		RoomPrefix:        c.RoomPrefix,
		AgentName:         lk.AgentName,
		ConnectTimeout:    c.ConnectTimeout,
		Retry: RetryPolicy{
			MaxAttempts:     c.RetryMaxAttempts,
			InitialInterval: c.RetryInitialInterval,
			MaxInterval:     c.RetryMaxInterval,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.CarrierTrunkName == "" {
		o.CarrierTrunkName = "LiveKit Trunk"
	}
	if o.InboundTrunkName == "" {
		o.InboundTrunkName = "Inbound LiveKit Trunk"
	}
	if o.OutboundTrunkName == "" {
		o.OutboundTrunkName = "Livekit Outbound Trunk"
	}
	if o.DispatchRuleName == "" {
		o.DispatchRuleName = "Inbound Dispatch Rule"
	}
	if o.RoomPrefix == "" {
		o.RoomPrefix = "call-"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Minute
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

// Deps are the collaborators of a Coordinator. Audit and Events are optional.
type Deps struct {
	Carriers telephony.CarrierFactory
	Media    media.Platform
	Store    store.Store
	Locker   Locker
	Audit    *audit.Service
	Events   Publisher
	Logger   *slog.Logger
}

// Coordinator runs the connect workflow: it makes the carrier trunk, the number
// association, the media inbound trunk, the dispatch rule and the media outbound
// trunk converge for an account, and mirrors the result in the store.
type Coordinator struct {
	carriers telephony.CarrierFactory
	media    media.Platform
	store    store.Store
	locker   Locker
	audit    *audit.Service
	events   Publisher
	log      *slog.Logger
	retry    retrier
	opts     Options
	clock    func() time.Time
}

func NewCoordinator(deps Deps, opts Options) (*Coordinator, error) {
	if deps.Carriers == nil || deps.Media == nil || deps.Store == nil {
		return nil, errors.New("connector: carriers, media and store are required")
	}
	opts = opts.withDefaults()
	if opts.SIPURI == "" {
		return nil, errors.New("connector: media SIP URI required")
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Events == nil {
		deps.Events = noopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Coordinator{
		carriers: deps.Carriers,
		media:    deps.Media,
		store:    deps.Store,
		locker:   deps.Locker,
		audit:    deps.Audit,
		events:   deps.Events,
		log:      deps.Logger,
		retry:    retrier{policy: opts.Retry, log: deps.Logger},
		opts:     opts,
		clock:    time.Now,
	}, nil
}

// Connect provisions or repairs the routing for p.PhoneNumber under p.AccountID.
//
// Re-running Connect with the same params converges to the same end state.
// On failure the returned *Error names the failing step and the result lists
// what was already changed; nothing is rolled back.
//
// One set of carrier credentials serves one account: the carrier trunk's record
// is bound to the first account that connects through it, and any other account
// using the same credentials fails with KindAccountConflict.
func (c *Coordinator) Connect(ctx context.Context, p ConnectParams) (ConnectResult, error) {
	start := c.clock()
	p.Normalize()
	res := ConnectResult{AccountID: p.AccountID, PhoneNumber: p.PhoneNumber, State: StateUnprovisioned}
	log := logger.FromOr(ctx, c.log).With("account_id", p.AccountID, "phone_number", p.PhoneNumber)

	var err error
	if err = p.Validate(); err == nil {
		runCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
		err = c.connect(runCtx, log, p, &res)
		cancel()
	}

	c.finishConnect(context.WithoutCancel(ctx), log, start, &res, err)
	return res, err
}

func (c *Coordinator) connect(ctx context.Context, log *slog.Logger, p ConnectParams, res *ConnectResult) error {
	unlockAccount, err := c.locker.Lock(ctx, accountLockPfx+p.AccountID)
	if err != nil {
		return c.stepError(ctx, StepAcquireLock, KindPersistence, err)
	}
	defer unlockAccount()

	carrier, err := c.carriers.ForAccount(telephony.Credentials{
		AccountSID: p.CarrierAccountSID,
		AuthToken:  p.CarrierAuthToken,
	})
	if err != nil {
		return c.stepError(ctx, StepCarrierTrunk, KindCarrierAPI, err)
	}

	// 1. Carrier trunk, one per carrier account.
	trunk, created, err := c.ensureCarrierTrunk(ctx, carrier)
	if trunk.SID != "" {
		res.CarrierTrunkID = trunk.SID
		res.SIPDomain = trunk.DomainName
		res.CarrierTrunkCreated = created
	}
	if err != nil {
		return c.stepError(ctx, StepCarrierTrunk, KindCarrierAPI, err)
	}
	if created {
		c.record(ctx, p.AccountID, audit.EventCarrierTrunkCreated, audit.ResourceCarrierTrunk, trunk.SID)
	}
	res.State = StateCarrierTrunkReady
	res.complete(StepCarrierTrunk)
	log.Info("carrier trunk ready", "carrier_trunk_id", trunk.SID, "created", created)

	// The trunk's record, if any, must belong to this account before anything is mutated.
	existing, found, err := c.findInboundRecord(ctx, trunk.SID)
	if err != nil {
		return c.stepError(ctx, StepLoadInboundRecord, KindPersistence, err)
	}
	if found && existing.AccountID != p.AccountID {
		return &Error{Kind: KindAccountConflict, Step: StepLoadInboundRecord,
			Err: fmt.Errorf("carrier trunk %s belongs to another account", trunk.SID)}
	}
	res.complete(StepLoadInboundRecord)

	// 2. Number association.
	err = c.retry.do(ctx, "associate phone number", func(ctx context.Context) error {
		return carrier.AssociatePhoneNumber(ctx, trunk, p.PhoneNumber)
	})
	if err != nil {
		return c.stepError(ctx, StepAssociateNumber, KindCarrierAPI, err)
	}
	c.record(ctx, p.AccountID, audit.EventPhoneNumberAssociated, audit.ResourcePhoneNumber, p.PhoneNumber)
	res.State = StatePhoneAssociated
	res.complete(StepAssociateNumber)

	// 3. Local inbound record; SIP credentials are generated once per trunk.
	rec, err := c.saveInboundRecord(ctx, p, trunk, existing, found)
	if err != nil {
		return err
	}
	res.complete(StepSaveInboundRecord)

	// 4. Union of stored numbers and the new one.
	numbers, err := c.unionNumbers(ctx, trunk.SID, p.PhoneNumber)
	if err != nil {
		return c.stepError(ctx, StepUnionNumbers, KindPersistence, err)
	}
	res.Numbers = numbers
	res.complete(StepUnionNumbers)

	// 5. Media inbound trunk: delete the account's, then create one with the union.
	// Numbers are briefly unroutable between the two calls; the platform rejects
	// two inbound trunks claiming the same number, so the order is fixed.
	inboundID, err := c.reconcileInbound(ctx, p.AccountID, numbers, res)
	if err != nil {
		return c.stepError(ctx, StepMediaInbound, KindMediaPlatformAPI, err)
	}
	res.MediaInboundTrunkID = inboundID
	rec.MediaTrunkID = inboundID
	err = c.retry.do(ctx, "update inbound record", func(ctx context.Context) error {
		_, err := c.store.UpsertInboundTrunk(ctx, rec)
		return err
	})
	if err != nil {
		return c.stepError(ctx, StepMediaInbound, KindPersistence, err)
	}
	res.State = StateMediaInboundReady
	res.complete(StepMediaInbound)
	log.Info("media inbound trunk ready", "media_inbound_trunk_id", inboundID, "numbers", len(numbers),
		"deleted", len(res.DeletedInboundTrunkIDs))

	// 6. Dispatch rule: one rule for the whole platform project.
	ruleID, err := c.reconcileDispatchRule(ctx, p.AccountID, res)
	if err != nil {
		return c.stepError(ctx, StepDispatchRule, KindMediaPlatformAPI, err)
	}
	res.DispatchRuleID = ruleID
	res.State = StateDispatchReady
	res.complete(StepDispatchRule)
	log.Info("dispatch rule ready", "dispatch_rule_id", ruleID, "deleted", len(res.DeletedDispatchRuleIDs))

	// 7. Phone number record.
	err = c.retry.do(ctx, "upsert phone number", func(ctx context.Context) error {
		return c.store.UpsertPhoneNumber(ctx, store.PhoneNumber{PhoneNumber: p.PhoneNumber, TrunkID: trunk.SID})
	})
	if err != nil {
		return c.stepError(ctx, StepPersistNumber, KindPersistence, err)
	}
	res.complete(StepPersistNumber)

	// 8. Media outbound trunk: create the new one first, then remove the old ones.
	outboundID, err := c.reconcileOutbound(ctx, p.AccountID, trunk, numbers, rec, res)
	if outboundID != "" {
		res.MediaOutboundTrunkID = outboundID
	}
	if err != nil {
		return c.stepError(ctx, StepMediaOutbound, KindMediaPlatformAPI, err)
	}
	res.State = StateMediaOutboundReady
	res.complete(StepMediaOutbound)

	err = c.retry.do(ctx, "upsert outbound record", func(ctx context.Context) error {
		return c.store.UpsertOutboundTrunk(ctx, store.OutboundTrunk{
			MediaTrunkID:   outboundID,
			InboundTrunkID: trunk.SID,
			AccountID:      p.AccountID,
		})
	})
	if err != nil {
		return c.stepError(ctx, StepPersistOutbound, KindPersistence, err)
	}
	res.complete(StepPersistOutbound)
	log.Info("media outbound trunk ready", "media_outbound_trunk_id", outboundID,
		"deleted", len(res.DeletedOutboundTrunkIDs))
	return nil
}

// ensureCarrierTrunk finds the trunk by name or creates it, under the global lock.
// Each attempt re-lists first, so a retried create does not duplicate the trunk.
func (c *Coordinator) ensureCarrierTrunk(ctx context.Context, carrier telephony.Carrier) (telephony.Trunk, bool, error) {
	unlock, err := c.locker.Lock(ctx, globalLockKey)
	if err != nil {
		return telephony.Trunk{}, false, err
	}
	defer unlock()

	var trunk telephony.Trunk
	var created bool
	err = c.retry.do(ctx, "ensure carrier trunk", func(ctx context.Context) error {
		found, ok, err := carrier.FindTrunkByName(ctx, c.opts.CarrierTrunkName)
		if err != nil {
			return err
		}
		if ok {
			trunk = found
			return nil
		}
		t, err := carrier.CreateTrunk(ctx, c.opts.CarrierTrunkName, c.opts.SIPURI)
		if t.SID != "" {
			trunk, created = t, true
		}
		return err
	})
	return trunk, created, err
}

func (c *Coordinator) findInboundRecord(ctx context.Context, trunkID string) (store.InboundTrunk, bool, error) {
	var rec store.InboundTrunk
	var found bool
	err := c.retry.do(ctx, "find inbound record", func(ctx context.Context) error {
		var err error
		rec, found, err = c.store.FindInboundTrunkByCarrierID(ctx, trunkID)
		return err
	})
	return rec, found, err
}

func (c *Coordinator) saveInboundRecord(ctx context.Context, p ConnectParams, trunk telephony.Trunk, existing store.InboundTrunk, found bool) (store.InboundTrunk, error) {
	rec := store.InboundTrunk{
		TrunkID:           trunk.SID,
		AccountID:         p.AccountID,
		CarrierAccountSID: p.CarrierAccountSID,
		CarrierAuthToken:  p.CarrierAuthToken,
	}
	if found && existing.SIPUsername != "" && existing.SIPPassword != "" {
		rec.SIPUsername, rec.SIPPassword = existing.SIPUsername, existing.SIPPassword
	} else {
		creds, err := generateSIPCredentials()
		if err != nil {
			return store.InboundTrunk{}, c.stepError(ctx, StepSaveInboundRecord, KindPersistence, err)
		}
		rec.SIPUsername, rec.SIPPassword = creds.Username, creds.Password
	}

	var saved store.InboundTrunk
	err := c.retry.do(ctx, "save inbound record", func(ctx context.Context) error {
		var err error
		saved, err = c.store.UpsertInboundTrunk(ctx, rec)
		return err
	})
	if err != nil {
		return store.InboundTrunk{}, c.stepError(ctx, StepSaveInboundRecord, KindPersistence, err)
	}
	// A concurrent first connect from another account may have won the insert.
	if saved.AccountID != p.AccountID {
		return store.InboundTrunk{}, &Error{Kind: KindAccountConflict, Step: StepSaveInboundRecord,
			Err: fmt.Errorf("carrier trunk %s belongs to another account", trunk.SID)}
	}
	return saved, nil
}

func (c *Coordinator) unionNumbers(ctx context.Context, trunkID, number string) ([]string, error) {
	var stored []string
	err := c.retry.do(ctx, "list phone numbers", func(ctx context.Context) error {
		var err error
		stored, err = c.store.ListPhoneNumbers(ctx, trunkID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return unionSorted(stored, number), nil
}

// reconcileInbound is retried as a whole so that a create whose outcome is unknown
// is cleaned up by the next attempt's delete pass.
func (c *Coordinator) reconcileInbound(ctx context.Context, accountID string, numbers []string, res *ConnectResult) (string, error) {
	metadata := media.AccountMetadata(accountID)
	var id string
	err := c.retry.do(ctx, "reconcile media inbound trunk", func(ctx context.Context) error {
		trunks, err := c.media.ListInboundTrunks(ctx)
		if err != nil {
			return err
		}
		for _, t := range trunks {
			if t.AccountID() != accountID {
				continue
			}
			if err := c.media.DeleteInboundTrunk(ctx, t.ID); err != nil {
				return err
			}
			res.DeletedInboundTrunkIDs = append(res.DeletedInboundTrunkIDs, t.ID)
			mediaResourcesDeletedTotal.WithLabelValues(audit.ResourceInboundTrunk).Inc()
			c.record(ctx, accountID, audit.EventMediaResourceDeleted, audit.ResourceInboundTrunk, t.ID)
		}
		id, err = c.media.CreateInboundTrunk(ctx, media.InboundTrunkSpec{
			Name:         c.opts.InboundTrunkName,
			Numbers:      numbers,
			Metadata:     metadata,
			KrispEnabled: true,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	c.record(ctx, accountID, audit.EventMediaResourceCreated, audit.ResourceInboundTrunk, id)
	return id, nil
}

// reconcileDispatchRule replaces every rule with a single one, under the global lock.
func (c *Coordinator) reconcileDispatchRule(ctx context.Context, accountID string, res *ConnectResult) (string, error) {
	unlock, err := c.locker.Lock(ctx, globalLockKey)
	if err != nil {
		return "", err
	}
	defer unlock()

	var id string
	err = c.retry.do(ctx, "reconcile dispatch rule", func(ctx context.Context) error {
		rules, err := c.media.ListDispatchRules(ctx)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if err := c.media.DeleteDispatchRule(ctx, r.ID); err != nil {
				return err
			}
			res.DeletedDispatchRuleIDs = append(res.DeletedDispatchRuleIDs, r.ID)
			mediaResourcesDeletedTotal.WithLabelValues(audit.ResourceDispatchRule).Inc()
			c.record(ctx, accountID, audit.EventMediaResourceDeleted, audit.ResourceDispatchRule, r.ID)
		}
		id, err = c.media.CreateDispatchRule(ctx, media.DispatchRuleSpec{
			Name:       c.opts.DispatchRuleName,
			RoomPrefix: c.opts.RoomPrefix,
			AgentName:  c.opts.AgentName,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	c.record(ctx, accountID, audit.EventMediaResourceCreated, audit.ResourceDispatchRule, id)
	return id, nil
}

// reconcileOutbound creates the new account trunk, then deletes every other
// account-tagged outbound trunk, including duplicates from retried creates.
func (c *Coordinator) reconcileOutbound(ctx context.Context, accountID string, trunk telephony.Trunk, numbers []string, rec store.InboundTrunk, res *ConnectResult) (string, error) {
	var id string
	err := c.retry.do(ctx, "create media outbound trunk", func(ctx context.Context) error {
		var err error
		id, err = c.media.CreateOutboundTrunk(ctx, media.OutboundTrunkSpec{
			Name:         c.opts.OutboundTrunkName,
			Address:      trunk.DomainName,
			Numbers:      numbers,
			AuthUsername: rec.SIPUsername,
			AuthPassword: rec.SIPPassword,
			Metadata:     media.AccountMetadata(accountID),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	c.record(ctx, accountID, audit.EventMediaResourceCreated, audit.ResourceOutboundTrunk, id)

	err = c.retry.do(ctx, "delete old media outbound trunks", func(ctx context.Context) error {
		trunks, err := c.media.ListOutboundTrunks(ctx)
		if err != nil {
			return err
		}
		for _, t := range trunks {
			if t.ID == id || t.AccountID() != accountID {
				continue
			}
			if err := c.media.DeleteOutboundTrunk(ctx, t.ID); err != nil {
				return err
			}
			res.DeletedOutboundTrunkIDs = append(res.DeletedOutboundTrunkIDs, t.ID)
			mediaResourcesDeletedTotal.WithLabelValues(audit.ResourceOutboundTrunk).Inc()
			c.record(ctx, accountID, audit.EventMediaResourceDeleted, audit.ResourceOutboundTrunk, t.ID)
		}
		return nil
	})
	return id, err
}

// Disconnect validates the request and records it. It does not change any resource.
func (c *Coordinator) Disconnect(ctx context.Context, p DisconnectParams) (DisconnectResult, error) {
	p.Normalize()
	res := DisconnectResult{AccountID: p.AccountID, PhoneNumber: p.PhoneNumber}
	if err := p.Validate(); err != nil {
		return res, err
	}
	log := logger.FromOr(ctx, c.log).With("account_id", p.AccountID, "phone_number", p.PhoneNumber)
	log.Info("disconnect requested; no resources changed")

	c.record(ctx, p.AccountID, audit.EventDisconnectRequested, audit.ResourcePhoneNumber, p.PhoneNumber)
	c.publish(ctx, log, Event{
		Type:        EventDisconnectRequested,
		AccountID:   p.AccountID,
		PhoneNumber: p.PhoneNumber,
		At:          c.clock().UTC(),
	})
	return res, nil
}

// Lookup resolves a provisioned number to its account and trunks.
func (c *Coordinator) Lookup(ctx context.Context, phoneNumber string) (store.NumberRoute, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if err := validate.Var(phoneNumber, "required,e164"); err != nil {
		return store.NumberRoute{}, &Error{Kind: KindInvalidParams, Step: StepValidate, Err: fmt.Errorf("phone_number: %w", err)}
	}
	route, err := c.store.LookupNumber(ctx, phoneNumber)
	if errors.Is(err, store.ErrNotFound) {
		return store.NumberRoute{}, &Error{Kind: KindPhoneNumberNotFound, Err: err}
	}
	if err != nil {
		return store.NumberRoute{}, &Error{Kind: KindPersistence, Err: err}
	}
	return route, nil
}

func (c *Coordinator) finishConnect(ctx context.Context, log *slog.Logger, start time.Time, res *ConnectResult, err error) {
	outcome := "ok"
	e := Event{
		Type:        EventConnectCompleted,
		AccountID:   res.AccountID,
		PhoneNumber: res.PhoneNumber,
		Result:      res,
		At:          c.clock().UTC(),
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		outcome = string(cerr.Kind)
		e.Type, e.ErrorKind, e.FailedStep = EventConnectFailed, cerr.Kind, cerr.Step
		if cerr.Step != "" {
			stepFailuresTotal.WithLabelValues(string(cerr.Step)).Inc()
		}
	}
	connectsTotal.WithLabelValues(outcome).Inc()
	connectDuration.WithLabelValues(outcome).Observe(c.clock().Sub(start).Seconds())

	if err != nil {
		log.Error("connect failed", "state", res.State, "err", err)
		if res.AccountID != "" {
			c.record(ctx, res.AccountID, audit.EventConnectFailed, audit.ResourcePhoneNumber, res.PhoneNumber)
		}
	} else {
		log.Info("connect completed", "carrier_trunk_id", res.CarrierTrunkID,
			"media_inbound_trunk_id", res.MediaInboundTrunkID, "media_outbound_trunk_id", res.MediaOutboundTrunkID)
		c.record(ctx, res.AccountID, audit.EventConnectCompleted, audit.ResourcePhoneNumber, res.PhoneNumber)
	}
	c.publish(ctx, log, e)
}

func (c *Coordinator) stepError(ctx context.Context, step Step, fallback Kind, err error) error {
	var cerr *Error
	if errors.As(err, &cerr) {
		return err
	}
	return &Error{Kind: classify(ctx, err, fallback), Step: step, Err: err}
}

func classify(ctx context.Context, err error, fallback Kind) Kind {
	var carrierErr *telephony.APIError
	var mediaErr *media.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return KindTimeout
	case errors.Is(err, telephony.ErrPhoneNumberNotFound):
		return KindPhoneNumberNotFound
	case errors.As(err, &carrierErr):
		return KindCarrierAPI
	case errors.As(err, &mediaErr):
		return KindMediaPlatformAPI
	default:
		return fallback
	}
}

func (c *Coordinator) record(ctx context.Context, accountID string, typ audit.EventType, resource, resourceID string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(ctx, accountID, typ, resource, resourceID, ""); err != nil {
		logger.FromOr(ctx, c.log).Warn("audit append failed", "type", typ, "err", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, log *slog.Logger, e Event) {
	if err := c.events.Publish(ctx, e); err != nil {
		log.Warn("event publish failed", "type", e.Type, "err", err)
	}
}

func unionSorted(stored []string, number string) []string {
	seen := make(map[string]struct{}, len(stored)+1)
	out := make([]string, 0, len(stored)+1)
	for _, n := range append(stored, number) {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
