package model

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEnvelopePreservesVariant(t *testing.T) {
	meta := EventMeta{
		Key:       EventKey{BlockNumber: 5, TxIndex: 1, LogIndex: 2},
		Union:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Timestamp: 1700000000,
	}
	events := []Event{
		RevenueReceived{EventMeta: meta, AmountWei: big.NewInt(200)},
		MemberWeightChanged{
			EventMeta: meta,
			Member:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			OldWeight: decimal.NewFromInt(1),
			NewWeight: decimal.RequireFromString("2.5"),
		},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		require.NoError(t, err, "encode %s", ev.Type())
		decoded, err := DecodeEvent(data)
		require.NoError(t, err, "decode %s", ev.Type())
		require.Equal(t, ev.Type(), decoded.Type())
		require.Equal(t, meta, decoded.Meta())
	}

	_, err := DecodeEvent([]byte(`{"type":"Swap","payload":{}}`))
	require.Error(t, err)
}

func TestRevenuePayloadAmount(t *testing.T) {
	data, err := EncodeEvent(RevenueReceived{AmountWei: big.NewInt(12345)})
	require.NoError(t, err)
	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	rev, ok := ev.(RevenueReceived)
	require.True(t, ok, "decoded type %T", ev)
	require.Zero(t, rev.AmountWei.Cmp(big.NewInt(12345)), "amount %s", rev.AmountWei)
}
