package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trunk-connector/pkg/utils"
)

// Postgres is the Store backed by the tables in migrations/.
type Postgres struct {
	db    *sql.DB
	codec SecretCodec
	clock func() time.Time
}

func NewPostgres(db *sql.DB, codec SecretCodec) *Postgres {
	if codec == nil {
		codec = Base64Codec{}
	}
	return &Postgres{db: db, codec: codec, clock: time.Now}
}

func (p *Postgres) FindInboundTrunkByCarrierID(ctx context.Context, trunkID string) (InboundTrunk, bool, error) {
	if trunkID == "" {
		return InboundTrunk{}, false, ErrInvalidArgument
	}
	const q = `
SELECT trunk_id, account_id, COALESCE(media_trunk_id, ''), carrier_account_sid, carrier_auth_token,
       sip_username, sip_password, created_at, updated_at
FROM inbound_trunks
WHERE trunk_id = $1
`
	t, err := p.scanInbound(p.db.QueryRowContext(ctx, q, trunkID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return InboundTrunk{}, false, nil
		}
		return InboundTrunk{}, false, fmt.Errorf("store: find inbound trunk: %w", err)
	}
	return t, true, nil
}

func (p *Postgres) UpsertInboundTrunk(ctx context.Context, t InboundTrunk) (InboundTrunk, error) {
	if err := validateInbound(t); err != nil {
		return InboundTrunk{}, err
	}
	token, err := p.codec.Encode(t.CarrierAuthToken)
	if err != nil {
		return InboundTrunk{}, err
	}
	password, err := p.codec.Encode(t.SIPPassword)
	if err != nil {
		return InboundTrunk{}, err
	}

	// account_id is immutable: it is never in the update list.
	const q = `
INSERT INTO inbound_trunks (
  trunk_id, account_id, media_trunk_id, carrier_account_sid, carrier_auth_token,
  sip_username, sip_password, created_at, updated_at
) VALUES (
  $1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $8
)
ON CONFLICT (trunk_id)
DO UPDATE SET media_trunk_id = COALESCE(EXCLUDED.media_trunk_id, inbound_trunks.media_trunk_id),
              carrier_account_sid = COALESCE(NULLIF(EXCLUDED.carrier_account_sid, ''), inbound_trunks.carrier_account_sid),
              carrier_auth_token = COALESCE(NULLIF(EXCLUDED.carrier_auth_token, ''), inbound_trunks.carrier_auth_token),
              sip_username = COALESCE(NULLIF(inbound_trunks.sip_username, ''), EXCLUDED.sip_username),
              sip_password = COALESCE(NULLIF(inbound_trunks.sip_password, ''), EXCLUDED.sip_password),
              updated_at = EXCLUDED.updated_at
RETURNING trunk_id, account_id, COALESCE(media_trunk_id, ''), carrier_account_sid, carrier_auth_token,
          sip_username, sip_password, created_at, updated_at
`
	out, err := p.scanInbound(p.db.QueryRowContext(ctx, q,
		t.TrunkID,
		t.AccountID,
		t.MediaTrunkID,
		t.CarrierAccountSID,
		token,
		t.SIPUsername,
		password,
		p.clock().UTC(),
	))
	if err != nil {
		return InboundTrunk{}, fmt.Errorf("store: upsert inbound trunk: %w", err)
	}
	return out, nil
}

func (p *Postgres) UpsertPhoneNumber(ctx context.Context, n PhoneNumber) error {
	if err := validatePhoneNumber(n); err != nil {
		return err
	}
	const q = `
INSERT INTO phone_numbers (phone_number, trunk_id, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (phone_number)
DO UPDATE SET trunk_id = EXCLUDED.trunk_id,
              updated_at = EXCLUDED.updated_at
`
	if _, err := p.db.ExecContext(ctx, q, n.PhoneNumber, n.TrunkID, p.clock().UTC()); err != nil {
		return fmt.Errorf("store: upsert phone number: %w", err)
	}
	return nil
}

func (p *Postgres) ListPhoneNumbers(ctx context.Context, trunkID string) ([]string, error) {
	const q = `
SELECT phone_number
FROM phone_numbers
WHERE trunk_id = $1
ORDER BY phone_number
`
	rows, err := p.db.QueryContext(ctx, q, trunkID)
	if err != nil {
		return nil, fmt.Errorf("store: list phone numbers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: list phone numbers: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list phone numbers: %w", err)
	}
	return out, nil
}

func (p *Postgres) LookupNumber(ctx context.Context, phoneNumber string) (NumberRoute, error) {
	const q = `
SELECT n.phone_number, n.trunk_id, t.account_id, COALESCE(t.media_trunk_id, '')
FROM phone_numbers n
JOIN inbound_trunks t ON t.trunk_id = n.trunk_id
WHERE n.phone_number = $1
`
	var r NumberRoute
	if err := p.db.QueryRowContext(ctx, q, phoneNumber).Scan(
		&r.PhoneNumber,
		&r.TrunkID,
		&r.AccountID,
		&r.MediaTrunkID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NumberRoute{}, ErrNotFound
		}
		return NumberRoute{}, fmt.Errorf("store: lookup number: %w", err)
	}
	return r, nil
}

func (p *Postgres) UpsertOutboundTrunk(ctx context.Context, t OutboundTrunk) error {
	if err := validateOutbound(t); err != nil {
		return err
	}
	now := p.clock().UTC()
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const del = `
DELETE FROM outbound_trunks
WHERE account_id = $1 AND media_trunk_id <> $2
`
		if _, err := tx.ExecContext(ctx, del, t.AccountID, t.MediaTrunkID); err != nil {
			return err
		}
		const ins = `
INSERT INTO outbound_trunks (media_trunk_id, inbound_trunk_id, account_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (media_trunk_id)
DO UPDATE SET inbound_trunk_id = EXCLUDED.inbound_trunk_id,
              updated_at = EXCLUDED.updated_at
`
		_, err := tx.ExecContext(ctx, ins, t.MediaTrunkID, t.InboundTrunkID, t.AccountID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: upsert outbound trunk: %w", err)
	}
	return nil
}

func (p *Postgres) FindOutboundTrunkByAccount(ctx context.Context, accountID string) (OutboundTrunk, error) {
	const q = `
SELECT media_trunk_id, inbound_trunk_id, account_id, created_at, updated_at
FROM outbound_trunks
WHERE account_id = $1
ORDER BY updated_at DESC
LIMIT 1
`
	var t OutboundTrunk
	if err := p.db.QueryRowContext(ctx, q, accountID).Scan(
		&t.MediaTrunkID,
		&t.InboundTrunkID,
		&t.AccountID,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OutboundTrunk{}, ErrNotFound
		}
		return OutboundTrunk{}, fmt.Errorf("store: find outbound trunk: %w", err)
	}
	return t, nil
}

func (p *Postgres) scanInbound(row *sql.Row) (InboundTrunk, error) {
	var t InboundTrunk
	var token, password string
	if err := row.Scan(
		&t.TrunkID,
		&t.AccountID,
		&t.MediaTrunkID,
		&t.CarrierAccountSID,
		&token,
		&t.SIPUsername,
		&password,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return InboundTrunk{}, err
	}
	var err error
	if t.CarrierAuthToken, err = p.codec.Decode(token); err != nil {
		return InboundTrunk{}, err
	}
	if t.SIPPassword, err = p.codec.Decode(password); err != nil {
		return InboundTrunk{}, err
	}
	return t, nil
}
