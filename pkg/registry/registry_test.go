package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"groupmapper/pkg/proto"
	"groupmapper/pkg/topology"
)

func rec(id proto.PDiskID, realm, domain string) PDiskRecord {
	return PDiskRecord{
		PDiskID:        id,
		Location:       topology.Location{RealmGroup: "rg1", Realm: realm, Domain: domain},
		MaxSlots:       4,
		Usable:         true,
		SpaceAvailable: 1000,
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := New()
	require.True(t, r.Register(rec(1, "r1", "d1")))
	require.False(t, r.Register(rec(1, "r2", "d2")))
	require.Equal(t, 1, r.Len())
}

func TestUnregisterRemovesFromBothStructures(t *testing.T) {
	r := New()
	r.Register(rec(1, "r1", "d1"))
	r.Register(rec(2, "r1", "d2"))
	r.EnsureSorted()

	r.Unregister(1)
	require.Equal(t, 1, r.Len())
	require.Len(t, r.ByPosition(), 1)
	_, ok := r.Get(1)
	require.False(t, ok)
}

func TestUnregisterUnknownIDPanics(t *testing.T) {
	r := New()
	require.Panics(t, func() { r.Unregister(99) })
}

func TestAdjustSpaceAvailable(t *testing.T) {
	r := New()
	r.Register(rec(1, "r1", "d1"))
	r.AdjustSpaceAvailable(1, -100)
	pi, _ := r.Get(1)
	require.Equal(t, int64(900), pi.SpaceAvailable)
}

func TestAdjustSpaceAvailableUnknownIDPanics(t *testing.T) {
	r := New()
	require.Panics(t, func() { r.AdjustSpaceAvailable(99, 1) })
}

func TestEnsureSortedOrdersByPosition(t *testing.T) {
	r := New()
	r.Register(rec(2, "r2", "d1"))
	r.Register(rec(1, "r1", "d1"))
	r.EnsureSorted()

	entries := r.ByPosition()
	require.Len(t, entries, 2)
	require.True(t, entries[0].Position.Less(entries[1].Position) || entries[0].Position.Equal(entries[1].Position))
	require.Equal(t, proto.PDiskID(1), entries[0].Disk.PDiskID)
}

func TestPDiskIsUsable(t *testing.T) {
	r := New()
	r.Register(rec(1, "r1", "d1"))
	pi, _ := r.Get(1)
	require.True(t, pi.IsUsable())

	pi.NumSlots = pi.MaxSlots
	require.False(t, pi.IsUsable(), "at capacity is not usable")

	pi.NumSlots = 0
	pi.Decommitted = true
	require.False(t, pi.IsUsable(), "decommitted is not usable")
}

func TestPDiskGroupsSortedAndUnique(t *testing.T) {
	r := New()
	r.Register(rec(1, "r1", "d1"))
	pi, _ := r.Get(1)

	pi.InsertGroup(5)
	pi.InsertGroup(2)
	pi.InsertGroup(5)
	require.Equal(t, []proto.GroupID{2, 5}, pi.Groups())

	pi.EraseGroup(2)
	require.Equal(t, []proto.GroupID{5}, pi.Groups())
}
