package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inboundColumns = []string{
	"trunk_id", "account_id", "media_trunk_id", "carrier_account_sid", "carrier_auth_token",
	"sip_username", "sip_password", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := NewPostgres(db, Base64Codec{})
	p.clock = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p, mock
}

func TestPostgres_UpsertInboundTrunkEncodesSecrets(t *testing.T) {
	p, mock := newMockStore(t)
	now := p.clock()

	mock.ExpectQuery(`INSERT INTO inbound_trunks`).
		WithArgs("TK1", "acct-1", "", "AC1", "dG9rZW4=", "lk_sip_user_abcdef", "cHc=", now).
		WillReturnRows(sqlmock.NewRows(inboundColumns).
			AddRow("TK1", "acct-1", "", "AC1", "dG9rZW4=", "lk_sip_user_abcdef", "cHc=", now, now))

	out, err := p.UpsertInboundTrunk(context.Background(), InboundTrunk{
		TrunkID:           "TK1",
		AccountID:         "acct-1",
		CarrierAccountSID: "AC1",
		CarrierAuthToken:  "token",
		SIPUsername:       "lk_sip_user_abcdef",
		SIPPassword:       "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "token", out.CarrierAuthToken)
	assert.Equal(t, "pw", out.SIPPassword)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// upsertSetClause returns the DO UPDATE SET list of an upsert, whitespace collapsed.
func upsertSetClause(t *testing.T, query string) string {
	t.Helper()
	q := strings.Join(strings.Fields(query), " ")
	start := strings.Index(q, "DO UPDATE SET ")
	end := strings.Index(q, " RETURNING ")
	require.True(t, start >= 0 && end > start, "no DO UPDATE SET list in %q", q)
	return q[start+len("DO UPDATE SET ") : end]
}

func TestPostgres_UpsertInboundTrunkKeepsAccountAndCredentials(t *testing.T) {
	var executed []string
	matcher := sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
		executed = append(executed, actualSQL)
		return sqlmock.QueryMatcherRegexp.Match(expectedSQL, actualSQL)
	})
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	p := NewPostgres(db, Base64Codec{})
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.clock = func() time.Time { return now }

	// The row already belongs to acct-1 with credentials from the first connect.
	mock.ExpectQuery(`INSERT INTO inbound_trunks`).
		WithArgs("TK1", "acct-2", "ST_2", "AC1", "dG9rZW4=", "lk_sip_user_222222", "bmV3", now).
		WillReturnRows(sqlmock.NewRows(inboundColumns).
			AddRow("TK1", "acct-1", "ST_2", "AC1", "dG9rZW4=", "lk_sip_user_111111", "b2xk", now, now))

	out, err := p.UpsertInboundTrunk(context.Background(), InboundTrunk{
		TrunkID:           "TK1",
		AccountID:         "acct-2",
		MediaTrunkID:      "ST_2",
		CarrierAccountSID: "AC1",
		CarrierAuthToken:  "token",
		SIPUsername:       "lk_sip_user_222222",
		SIPPassword:       "new",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "acct-1", out.AccountID)
	assert.Equal(t, "lk_sip_user_111111", out.SIPUsername)
	assert.Equal(t, "old", out.SIPPassword)

	require.NotEmpty(t, executed)
	query := executed[len(executed)-1]
	assert.Contains(t, query, "ON CONFLICT (trunk_id)")
	set := upsertSetClause(t, query)

	assert.NotRegexp(t, `(^|[ ,])account_id\s*=`, set, "account_id must never be updated")
	assert.NotContains(t, set, "created_at")
	for _, col := range []string{"sip_username", "sip_password"} {
		stored := regexp.QuoteMeta("COALESCE(NULLIF(inbound_trunks."+col+", ''), EXCLUDED."+col+")")
		assert.Regexp(t, regexp.QuoteMeta(col)+` = `+stored, set, "%s must prefer the stored value", col)
	}
	assert.Contains(t, set, "media_trunk_id = COALESCE(EXCLUDED.media_trunk_id, inbound_trunks.media_trunk_id)")
}

func TestPostgres_UpsertInboundTrunkRejectsMissingAccount(t *testing.T) {
	p, _ := newMockStore(t)
	_, err := p.UpsertInboundTrunk(context.Background(), InboundTrunk{TrunkID: "TK1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPostgres_FindInboundTrunkMissing(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectQuery(`FROM inbound_trunks`).WithArgs("TK404").WillReturnError(sql.ErrNoRows)

	_, found, err := p.FindInboundTrunkByCarrierID(context.Background(), "TK404")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostgres_FindInboundTrunkDecodeError(t *testing.T) {
	p, mock := newMockStore(t)
	now := p.clock()
	mock.ExpectQuery(`FROM inbound_trunks`).WithArgs("TK1").
		WillReturnRows(sqlmock.NewRows(inboundColumns).
			AddRow("TK1", "acct-1", "ST_1", "AC1", "%%%not-base64", "u", "", now, now))

	_, _, err := p.FindInboundTrunkByCarrierID(context.Background(), "TK1")
	assert.Error(t, err)
}

func TestPostgres_ListPhoneNumbers(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT phone_number\s+FROM phone_numbers`).WithArgs("TK1").
		WillReturnRows(sqlmock.NewRows([]string{"phone_number"}).
			AddRow("+15551234567").
			AddRow("+15557654321"))

	numbers, err := p.ListPhoneNumbers(context.Background(), "TK1")
	require.NoError(t, err)
	assert.Equal(t, []string{"+15551234567", "+15557654321"}, numbers)
}

func TestPostgres_UpsertPhoneNumber(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO phone_numbers`).
		WithArgs("+15551234567", "TK1", p.clock()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.UpsertPhoneNumber(context.Background(), PhoneNumber{PhoneNumber: "+15551234567", TrunkID: "TK1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertOutboundTrunkReplacesInOneTx(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM outbound_trunks`).
		WithArgs("acct-1", "ST_out2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbound_trunks`).
		WithArgs("ST_out2", "TK1", "acct-1", p.clock()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.UpsertOutboundTrunk(context.Background(), OutboundTrunk{
		MediaTrunkID:   "ST_out2",
		InboundTrunkID: "TK1",
		AccountID:      "acct-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertOutboundTrunkRollsBack(t *testing.T) {
	p, mock := newMockStore(t)
	boom := errors.New("insert failed")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM outbound_trunks`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbound_trunks`).WillReturnError(boom)
	mock.ExpectRollback()

	err := p.UpsertOutboundTrunk(context.Background(), OutboundTrunk{
		MediaTrunkID:   "ST_out2",
		InboundTrunkID: "TK1",
		AccountID:      "acct-1",
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LookupNumberNotFound(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectQuery(`FROM phone_numbers n`).WithArgs("+15550000000").WillReturnError(sql.ErrNoRows)

	_, err := p.LookupNumber(context.Background(), "+15550000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_FindOutboundTrunkByAccount(t *testing.T) {
	p, mock := newMockStore(t)
	now := p.clock()
	mock.ExpectQuery(`FROM outbound_trunks`).WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"media_trunk_id", "inbound_trunk_id", "account_id", "created_at", "updated_at"}).
			AddRow("ST_out", "TK1", "acct-1", now, now))

	out, err := p.FindOutboundTrunkByAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "ST_out", out.MediaTrunkID)
}
