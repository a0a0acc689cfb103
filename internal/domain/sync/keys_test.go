package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKey(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		record  Record
		wantKey string
		wantOK  bool
	}{
		{
			name:    "numeric id from json",
			entity:  EntityProduct,
			record:  Record{"id": float64(12), "name": "Latte"},
			wantKey: "12",
			wantOK:  true,
		},
		{
			name:    "int64 id from store",
			entity:  EntityOrder,
			record:  Record{"id": int64(7)},
			wantKey: "7",
			wantOK:  true,
		},
		{
			name:    "string id",
			entity:  EntityUser,
			record:  Record{"id": "u-1"},
			wantKey: "u-1",
			wantOK:  true,
		},
		{
			name:   "missing id is skipped",
			entity: EntityCategory,
			record: Record{"name": "Drinks"},
			wantOK: false,
		},
		{
			name:    "join entity uses natural key",
			entity:  EntityOrderItemExtra,
			record:  Record{"id": int64(99), "orderId": int64(1), "orderItemId": float64(2), "extraId": "3"},
			wantKey: "1:2:3",
			wantOK:  true,
		},
		{
			name:   "join entity with missing part",
			entity: EntityOrderItemExtra,
			record: Record{"id": int64(99), "orderId": int64(1), "extraId": int64(3)},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := RecordKey(tt.entity, tt.record)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestUsesNaturalKey(t *testing.T) {
	assert.True(t, UsesNaturalKey(EntityOrderItemExtra))
	for _, e := range Entities {
		if e == EntityOrderItemExtra {
			continue
		}
		assert.False(t, UsesNaturalKey(e), e)
	}
}

func TestCanonicalIsStable(t *testing.T) {
	a := Record{"b": 1, "a": "x", "nested": map[string]any{"z": 1, "y": 2}}
	b := Record{"nested": map[string]any{"y": 2, "z": 1}, "a": "x", "b": 1}

	sa, err := Canonical(a)
	require.NoError(t, err)
	sb, err := Canonical(b)
	require.NoError(t, err)

	assert.Equal(t, sa, sb)
	assert.Equal(t, `{"a":"x","b":1,"nested":{"y":2,"z":1}}`, sa)
}

func TestLocalIDJSON(t *testing.T) {
	b, err := json.Marshal(Changeset{Entity: EntityProduct, LocalID: "42"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"localId":42`)

	b, err = json.Marshal(Changeset{Entity: EntityOrderItemExtra, LocalID: "1:2:3"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"localId":"1:2:3"`)

	var c Changeset
	require.NoError(t, json.Unmarshal([]byte(`{"localId":17}`), &c))
	assert.Equal(t, LocalID("17"), c.LocalID)

	require.NoError(t, json.Unmarshal([]byte(`{"localId":"abc"}`), &c))
	assert.Equal(t, LocalID("abc"), c.LocalID)
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 20, 30, 456_000_000, time.FixedZone("X", 3*3600))
	assert.Equal(t, "2024-03-01T07:20:30.456Z", FormatTimestamp(ts))
}

func TestStrategy(t *testing.T) {
	assert.True(t, StrategyMerge.RequiresPayload())
	assert.True(t, StrategyManual.RequiresPayload())
	assert.False(t, StrategyClientWins.RequiresPayload())
	assert.False(t, Strategy("KEEP_BOTH").Valid())
	assert.True(t, StrategyLastWriteWins.Valid())
}

func TestParseEntities(t *testing.T) {
	got := ParseEntities("product, order,,order_item_extra")
	assert.Equal(t, []Entity{EntityProduct, EntityOrder, EntityOrderItemExtra}, got)
	assert.Equal(t, "product,order", JoinEntities([]Entity{EntityProduct, EntityOrder}))
}
