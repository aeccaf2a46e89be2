package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Identifiers(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) error
		ok    []string
		ng    []string
	}{
		{
			name:  "DinoparcUserID",
			parse: func(s string) error { _, err := ParseDinoparcUserID(s); return err },
			ok:    []string{"1", "999999999"},
			ng:    []string{"0", "1000000000", "01", "", "-1", "abc"},
		},
		{
			name:  "DinoparcItemID",
			parse: func(s string) error { _, err := ParseDinoparcItemID(s); return err },
			ok:    []string{"0", "42"},
			ng:    []string{"00", "1000000000"},
		},
		{
			name:  "DinoparcUsername",
			parse: func(s string) error { _, err := ParseDinoparcUsername(s); return err },
			ok:    []string{"a", "Alice-42", strings.Repeat("a", 14)},
			ng:    []string{"", strings.Repeat("a", 15), "has space", "under_score"},
		},
		{
			name:  "DinoparcSessionKey",
			parse: func(s string) error { _, err := ParseDinoparcSessionKey(s); return err },
			ok:    []string{strings.Repeat("aZ09", 8)},
			ng:    []string{strings.Repeat("a", 31), strings.Repeat("a", 33), strings.Repeat("-", 32)},
		},
		{
			name:  "HammerfestUserID",
			parse: func(s string) error { _, err := ParseHammerfestUserID(s); return err },
			ok:    []string{"1", "127"},
			ng:    []string{"0", "1000000000"},
		},
		{
			name:  "HammerfestUsername",
			parse: func(s string) error { _, err := ParseHammerfestUsername(s); return err },
			ok:    []string{"bob", strings.Repeat("b", 12)},
			ng:    []string{"", strings.Repeat("b", 13), "has-dash"},
		},
		{
			name:  "HammerfestSessionKey",
			parse: func(s string) error { _, err := ParseHammerfestSessionKey(s); return err },
			ok:    []string{strings.Repeat("a1", 13)},
			ng:    []string{strings.Repeat("A1", 13), strings.Repeat("a", 25)},
		},
		{
			name:  "HammerfestItemID",
			parse: func(s string) error { _, err := ParseHammerfestItemID(s); return err },
			ok:    []string{"0", "9999"},
			ng:    []string{"10000"},
		},
		{
			name:  "HammerfestQuestID",
			parse: func(s string) error { _, err := ParseHammerfestQuestID(s); return err },
			ok:    []string{"0", "75"},
			ng:    []string{"76"},
		},
		{
			name:  "TwinoidUserID",
			parse: func(s string) error { _, err := ParseTwinoidUserID(s); return err },
			ok:    []string{"1", "38"},
			ng:    []string{"0"},
		},
		{
			name:  "PopotamoUserID",
			parse: func(s string) error { _, err := ParsePopotamoUserID(s); return err },
			ok:    []string{"0", "42"},
			ng:    []string{"01", "x"},
		},
		{
			name:  "Username",
			parse: func(s string) error { _, err := ParseUsername(s); return err },
			ok:    []string{"alice", "_a1"},
			ng:    []string{"a", "Alice", "1alice", strings.Repeat("a", 33)},
		},
		{
			name:  "UserDisplayName",
			parse: func(s string) error { _, err := ParseUserDisplayName(s); return err },
			ok:    []string{"Alice", "Émilie (fr)"},
			ng:    []string{"A", "1Alice", strings.Repeat("a", 65)},
		},
		{
			name:  "EmailAddress",
			parse: func(s string) error { _, err := ParseEmailAddress(s); return err },
			ok:    []string{"alice@example.com"},
			ng:    []string{"alice", "a@b@c", "a b@c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range tt.ok {
				assert.NoError(t, tt.parse(s), "受け付けるべき入力: %q", s)
			}
			for _, s := range tt.ng {
				err := tt.parse(s)
				var perr *ParseError
				if assert.ErrorAs(t, err, &perr, "拒否すべき入力: %q", s) {
					assert.Equal(t, tt.name, perr.Type)
					assert.Equal(t, s, perr.Input)
				}
			}
		})
	}
}

func TestParse_Servers(t *testing.T) {
	for _, s := range []string{"dinoparc.com", "en.dinoparc.com", "sp.dinoparc.com"} {
		_, err := ParseDinoparcServer(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"hammerfest.fr", "hammerfest.es", "hfest.net"} {
		_, err := ParseHammerfestServer(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"www.dinorpg.com", "en.dinorpg.com", "es.dinorpg.com"} {
		_, err := ParseDinorpgServer(s)
		assert.NoError(t, err, s)
	}

	_, err := ParseDinoparcServer("www.dinoparc.com")
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = ParseHammerfestServer("www.hammerfest.fr")
	assert.Equal(t, KindValidation, KindOf(err))
}

// JSONの読み込み時にも値型の検証が行われること
func TestUnmarshalText_Validates(t *testing.T) {
	var ref struct {
		Server DinoparcServer `json:"server"`
		ID     DinoparcUserID `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"server":"dinoparc.com","id":"7"}`), &ref))
	assert.Equal(t, DinoparcServerFr, ref.Server)
	assert.Equal(t, DinoparcUserID("7"), ref.ID)

	err := json.Unmarshal([]byte(`{"server":"example.com","id":"7"}`), &ref)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestDinoparcDinozRaceFromSkin(t *testing.T) {
	race, ok := DinoparcDinozRaceFromSkin("0GlE0LHs9jVVSSMq")
	assert.True(t, ok)
	assert.Equal(t, DinoparcDinozRace("Moueffe"), race)

	race, ok = DinoparcDinozRaceFromSkin("Kabc")
	assert.True(t, ok)
	assert.Equal(t, DinoparcDinozRace("Feross"), race)

	_, ok = DinoparcDinozRaceFromSkin("")
	assert.False(t, ok)
	_, ok = DinoparcDinozRaceFromSkin("zzz")
	assert.False(t, ok)
}

func TestRangeConstructors(t *testing.T) {
	_, err := NewDinoparcLocationID(22)
	assert.NoError(t, err)
	_, err = NewDinoparcLocationID(23)
	assert.Error(t, err)

	_, err = NewDinoparcSkillLevel(5)
	assert.NoError(t, err)
	_, err = NewDinoparcSkillLevel(-1)
	assert.Error(t, err)

	_, err = NewIntPercentage(100)
	assert.NoError(t, err)
	_, err = NewIntPercentage(101)
	assert.Error(t, err)

	_, err = NewHammerfestLadderLevel(4)
	assert.NoError(t, err)
	_, err = NewHammerfestLadderLevel(5)
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"素のエラー", errors.New("boom"), KindUnknown},
		{"ParseError", &ParseError{Type: "X", Input: "y"}, KindValidation},
		{"ラップされたAPIError", fmt.Errorf("failed to get user: %w", ErrHammerfestUserNotFound), KindNotFound},
		{"認証エラー", NewInvalidCredentialsError(), KindInvalidCredentials},
		{"KindError", NewKindError(KindRemoteUnexpectedResponse, "NonUniqueSelector", nil), KindRemoteUnexpectedResponse},
		{"キャンセル", fmt.Errorf("failed: %w", context.Canceled), KindCancelled},
		{"タイムアウト", context.DeadlineExceeded, KindRemoteUnavailable},
		{"リンク衝突", NewLinkConflictError(&RawLink{}, nil), KindConflict},
		{"内部エラー", NewInternalServerError(), KindStorageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindRemoteUnavailable.Retryable())
	assert.False(t, KindInvalidCredentials.Retryable())
	assert.False(t, KindRemoteUnexpectedResponse.Retryable())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

// APIErrorはコードのみで比較されること
func TestAPIError_Is(t *testing.T) {
	err := NewRemoteUserNotFoundError(ErrCodeDinoparcUserNotFound, "dinoparc.com", "1")
	assert.ErrorIs(t, err, ErrDinoparcUserNotFound)
	assert.NotErrorIs(t, err, ErrHammerfestUserNotFound)
}

func TestNewLinkConflictError(t *testing.T) {
	a, b := &RawLink{}, &RawLink{}

	assert.Nil(t, NewLinkConflictError(nil, nil))
	assert.Equal(t, ConflictEtwin, NewLinkConflictError(a, nil).Conflict)
	assert.Equal(t, ConflictRemote, NewLinkConflictError(nil, b).Conflict)

	both := NewLinkConflictError(a, b)
	assert.Equal(t, ConflictBoth, both.Conflict)
	assert.Same(t, a, both.ByEtwin)
	assert.Same(t, b, both.ByRemote)
}
