package allocator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"groupmapper/pkg/geometry"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/registry"
	"groupmapper/pkg/topology"
)

func smallGeom() geometry.GroupGeometry {
	return geometry.GroupGeometry{
		Type:                   geometry.ErasureScheme{Name: "block-2-1", DataShards: 2, ParityShards: 1},
		NumFailRealms:          3,
		NumFailDomainsPerRealm: 1,
		NumVDisksPerDomain:     1,
	}
}

// seedRegistry populates one realm-group of nRealms realms, each with
// domainsPerRealm domains, each with disksPerDomain usable disks.
func seedRegistry(t *testing.T, nRealms, domainsPerRealm, disksPerDomain int) *registry.Registry {
	t.Helper()
	r := registry.New()
	id := proto.PDiskID(1)
	for realm := 0; realm < nRealms; realm++ {
		for dom := 0; dom < domainsPerRealm; dom++ {
			for disk := 0; disk < disksPerDomain; disk++ {
				ok := r.Register(registry.PDiskRecord{
					PDiskID: id,
					Location: topology.Location{
						RealmGroup: "rg1",
						Realm:      fmt.Sprintf("realm%d", realm),
						Domain:     fmt.Sprintf("realm%d-domain%d", realm, dom),
					},
					MaxSlots:       4,
					Usable:         true,
					Operational:    true,
					SpaceAvailable: 1_000_000,
				})
				require.True(t, ok)
				id++
			}
		}
	}
	r.EnsureSorted()
	return r
}

func TestAllocateGroupFromScratch(t *testing.T) {
	geom := smallGeom()
	reg := seedRegistry(t, 3, 1, 2)

	a := New(reg, geom, Options{MaxPickerScore: -1}, nil)
	ok := a.Allocate(a.FillInGroup())
	require.True(t, ok)

	seen := make(map[proto.PDiskID]bool)
	for _, pdiskID := range a.Group() {
		require.True(t, pdiskID.Valid())
		require.False(t, seen[pdiskID], "no disk used twice")
		seen[pdiskID] = true
	}
	require.Len(t, seen, int(geom.TotalVDisks()))
}

func TestAllocateGroupFailsWhenTopologyTooSmall(t *testing.T) {
	geom := smallGeom()
	reg := seedRegistry(t, 2, 1, 2) // only 2 realms, geometry needs 3

	a := New(reg, geom, Options{MaxPickerScore: -1}, nil)
	require.False(t, a.Allocate(a.FillInGroup()))
}

func TestAllocateGroupHonorsForbiddenDisks(t *testing.T) {
	geom := smallGeom()
	reg := seedRegistry(t, 3, 1, 1) // exactly enough disks, no slack

	forbidden := map[proto.PDiskID]bool{1: true}
	a := New(reg, geom, Options{MaxPickerScore: -1, ForbiddenDisks: forbidden}, nil)
	require.False(t, a.Allocate(a.FillInGroup()), "forbidding the only disk in a domain makes completion impossible")
}

func TestAllocateGroupHonorsRequiredSpace(t *testing.T) {
	geom := smallGeom()
	reg := seedRegistry(t, 3, 1, 2)

	pd, ok := reg.Get(1)
	require.True(t, ok)
	pd.SpaceAvailable = 10

	a := New(reg, geom, Options{MaxPickerScore: -1, RequiredSpace: 1_000}, nil)
	require.True(t, a.Allocate(a.FillInGroup()), "a low-space disk is simply skipped in favor of its domain sibling")
	for _, pdiskID := range a.Group() {
		require.NotEqual(t, proto.PDiskID(1), pdiskID)
	}
}

func TestAllocateGroupPreservesPartialLayout(t *testing.T) {
	geom := smallGeom()
	reg := seedRegistry(t, 3, 1, 2)

	existing, err := geom.ResizeGroup(nil)
	require.NoError(t, err)
	existing[0][0][0] = 1 // pin realm 0's disk to PDiskID 1

	a := New(reg, geom, Options{MaxPickerScore: -1}, existing)
	require.True(t, a.Allocate(a.FillInGroup()))
	require.Equal(t, proto.PDiskID(1), a.Group()[geom.OrderNumber(proto.VDiskIDShort{FailRealm: 0, FailDomain: 0, VDisk: 0})])
}

func TestBisectPrefersLowerLoadedDisks(t *testing.T) {
	geom := smallGeom()
	reg := seedRegistry(t, 3, 1, 2)

	// Load every disk in realm 0's domain except PDiskID 2.
	pd1, _ := reg.Get(1)
	pd1.NumSlots = 3

	group, ok := Bisect(reg, geom, Options{MaxPickerScore: -1}, nil)
	require.True(t, ok)
	require.NotContains(t, group, proto.PDiskID(1), "bisection should prefer the less-loaded sibling when both fit")
}

func TestDiskIsBetterTieBreakOrder(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.PDiskRecord{PDiskID: 1, Location: topology.Location{RealmGroup: "rg", Realm: "r", Domain: "d1"}, MaxSlots: 4, Usable: true, SpaceAvailable: 100, NumSlots: 1})
	reg.Register(registry.PDiskRecord{PDiskID: 2, Location: topology.Location{RealmGroup: "rg", Realm: "r", Domain: "d2"}, MaxSlots: 4, Usable: true, SpaceAvailable: 100, NumSlots: 0})
	reg.EnsureSorted()

	a := New(reg, smallGeom(), Options{MaxPickerScore: -1}, nil)
	pd1, _ := reg.Get(1)
	pd2, _ := reg.Get(2)
	require.True(t, a.diskIsBetter(pd2, pd1), "fewer NumSlots wins regardless of position")
}

func TestDiskIsBetterPrefersLowerSpaceAvailable(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.PDiskRecord{PDiskID: 1, Location: topology.Location{RealmGroup: "rg", Realm: "r", Domain: "d1"}, MaxSlots: 4, Usable: true, SpaceAvailable: 100, NumSlots: 0})
	reg.Register(registry.PDiskRecord{PDiskID: 2, Location: topology.Location{RealmGroup: "rg", Realm: "r", Domain: "d2"}, MaxSlots: 4, Usable: true, SpaceAvailable: 200, NumSlots: 0})
	reg.EnsureSorted()

	a := New(reg, smallGeom(), Options{MaxPickerScore: -1}, nil)
	pd1, _ := reg.Get(1)
	pd2, _ := reg.Get(2)
	require.True(t, a.diskIsBetter(pd1, pd2), "tied on slots and locality, the smaller hole (lower SpaceAvailable) wins")
}

// Scenario E: two candidates tie on NumSlots and SpaceAvailable, but
// disk X shares group 77 with a peer already placed in this group,
// while disk Y shares nothing. Non-randomized prefers the locality
// boost (picks X); randomized inverts it (picks Y).
func newLocalityFixture(t *testing.T, randomize bool) *Allocator {
	t.Helper()
	geom := geometry.GroupGeometry{NumFailRealms: 1, NumFailDomainsPerRealm: 1, NumVDisksPerDomain: 2}
	reg := registry.New()
	reg.Register(registry.PDiskRecord{
		PDiskID:  10,
		Location: topology.Location{RealmGroup: "rg", Realm: "r0", Domain: "d0"},
		MaxSlots: 4, Usable: true, Operational: true, SpaceAvailable: 100,
		Groups: []proto.GroupID{77},
	})
	reg.Register(registry.PDiskRecord{ // X: shares group 77 with the placed peer
		PDiskID:  20,
		Location: topology.Location{RealmGroup: "rg", Realm: "r0", Domain: "d0"},
		MaxSlots: 4, Usable: true, Operational: true, SpaceAvailable: 100,
		Groups: []proto.GroupID{77},
	})
	reg.Register(registry.PDiskRecord{ // Y: shares nothing
		PDiskID:  21,
		Location: topology.Location{RealmGroup: "rg", Realm: "r0", Domain: "d0"},
		MaxSlots: 4, Usable: true, Operational: true, SpaceAvailable: 100,
		Groups: []proto.GroupID{88},
	})
	reg.EnsureSorted()

	existing, err := geom.ResizeGroup(nil)
	require.NoError(t, err)
	existing[0][0][0] = 10

	return New(reg, geom, Options{MaxPickerScore: -1, Randomize: randomize}, existing)
}

func TestLocalityFactorComputation(t *testing.T) {
	a := newLocalityFixture(t, false)
	px, _ := a.reg.Get(20)
	py, _ := a.reg.Get(21)
	require.Equal(t, uint32(1), a.GetLocalityFactor(px), "X overlaps the placed peer's group 77")
	require.Equal(t, uint32(0), a.GetLocalityFactor(py), "Y shares nothing with the placed peer")
}

func TestLocalityFactorTieBreakNonRandomized(t *testing.T) {
	a := newLocalityFixture(t, false)
	x, _ := a.reg.Get(20)
	y, _ := a.reg.Get(21)
	require.True(t, a.diskIsBetter(x, y), "non-randomized: the disk sharing a group with a placed peer wins")
}

func TestLocalityFactorTieBreakRandomized(t *testing.T) {
	a := newLocalityFixture(t, true)
	x, _ := a.reg.Get(20)
	y, _ := a.reg.Get(21)
	require.True(t, a.diskIsBetter(y, x), "randomized: the locality preference inverts, so the non-overlapping disk wins")
}
