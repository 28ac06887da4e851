package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

func amount(f float64) *float64 { return &f }

func TestDiffPriceChange(t *testing.T) {
	before := model.Core{ReservationNumber: "R100", Channel: "웹", TotalAmount: amount(100), AdultUnitPrice: amount(50), PeopleAdult: 2}
	after := before
	after.TotalAmount = amount(150)
	after.AdultUnitPrice = amount(75)

	d := Diff(Tracked(before, nil), Tracked(after, nil))
	assert.Equal(t, []string{"adult_unit_price", "total_amount"}, Fields(d))
	assert.Equal(t, model.Change{Old: 100.0, New: 150.0}, d["total_amount"])
	assert.Equal(t, model.Change{Old: 50.0, New: 75.0}, d["adult_unit_price"])
}

func TestDiffExtras(t *testing.T) {
	core := model.Core{ReservationNumber: "R1"}
	before := Tracked(core, map[string]any{"visa_number": "A1", "pickup": true})
	after := Tracked(core, map[string]any{"visa_number": "A2", "luggage": 2.0})

	d := Diff(before, after)
	assert.Equal(t, []string{"extras.luggage", "extras.pickup", "extras.visa_number"}, Fields(d))
	assert.Equal(t, model.Change{Old: true, New: nil}, d["extras.pickup"])
	assert.Equal(t, model.Change{Old: nil, New: 2.0}, d["extras.luggage"])
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	core := model.Core{ReservationNumber: "R1", TotalAmount: amount(10)}
	extras := map[string]any{"diet": []string{"vegan"}}
	assert.Empty(t, Diff(Tracked(core, extras), Tracked(core, extras)))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("total_amount", 10.001, 10.0))
	assert.False(t, Equal("total_amount", 10.01, 10.0))
	assert.False(t, Equal("memo", 10.001, 10.0))
	assert.True(t, Equal("extras.diet", []string{"a", "b"}, []any{"a", "b"}))
	assert.True(t, Equal("x", nil, nil))
	assert.False(t, Equal("x", nil, ""))
}

func TestFlatten(t *testing.T) {
	got := Flatten(map[string]any{
		"a":      1,
		"extras": map[string]any{"b": "x", "nested": map[string]any{"c": true}},
	})
	assert.Equal(t, map[string]any{"a": 1, "extras.b": "x", "extras.nested.c": true}, got)
}

func TestSnapshot(t *testing.T) {
	rec := model.Reservation{
		ID:          7,
		Core:        model.Core{ReservationNumber: "R7", Channel: "웹"},
		Extras:      map[string]any{"pickup": true},
		Flags:       model.Flags{Missing: []string{"korean_name"}, Ambiguous: []string{}},
		LockVersion: 3,
	}
	snap := Snapshot(rec)
	assert.Equal(t, "R7", snap["reservation_number"])
	assert.Equal(t, 3, snap["lock_version"])
	assert.Equal(t, false, snap["is_deleted"])
	extras, ok := snap["extras"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, extras["pickup"])

	// the snapshot is a copy
	extras["pickup"] = false
	assert.Equal(t, true, rec.Extras["pickup"])
}
