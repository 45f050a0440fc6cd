package layout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"groupmapper/pkg/geometry"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/topology"
)

func testGeom() geometry.GroupGeometry {
	return geometry.GroupGeometry{
		Type:                   geometry.ErasureScheme{Name: "block-4-2", DataShards: 4, ParityShards: 2},
		NumFailRealms:          3,
		NumFailDomainsPerRealm: 2,
		NumVDisksPerDomain:     1,
	}
}

func pos(m *topology.EntityMapper, rg, realm, domain string, pdiskID proto.PDiskID) topology.Position {
	return topology.NewPosition(m, topology.Location{RealmGroup: rg, Realm: realm, Domain: domain}, pdiskID)
}

func TestScoreOrderingAndWorst(t *testing.T) {
	require.True(t, Score{1, 0, 0}.BetterThan(Score{0, 1, 1}), "realm-group dominates")
	require.True(t, Score{1, 1, 0}.BetterThan(Score{1, 0, 1}), "realm dominates domain")
	require.True(t, Score{1, 1, 1}.BetterThan(Score{1, 1, 0}))
	require.False(t, Score{0, 0, 0}.BetterThan(Score{0, 0, 0}))
	require.True(t, Score{0, 0, 0}.SameAs(Worst()))
}

func TestGroupLayoutFirstDiskIsAlwaysPerfect(t *testing.T) {
	gl := NewGroupLayout(testGeom())
	m := topology.NewEntityMapper()
	p := pos(m, "rg1", "r1", "d1", 1)

	s := gl.GetCandidateScore(p, 0)
	require.Equal(t, Score{1, 1, 1}, s, "nothing placed yet, any candidate is perfect")
}

func TestGroupLayoutPenalizesSecondRealmGroup(t *testing.T) {
	gl := NewGroupLayout(testGeom())
	m := topology.NewEntityMapper()

	p0 := pos(m, "rg1", "r1", "d1", 1)
	gl.AddDisk(p0, 0)

	sameRG := pos(m, "rg1", "r2", "d2", 2)
	require.Equal(t, uint8(1), gl.GetCandidateScore(sameRG, 1).RealmGroup)

	otherRG := pos(m, "rg2", "r2", "d2", 2)
	require.Equal(t, uint8(0), gl.GetCandidateScore(otherRG, 1).RealmGroup, "second realm-group is penalized")
}

func TestGroupLayoutPenalizesCrossRealmReuse(t *testing.T) {
	gl := NewGroupLayout(testGeom())
	m := topology.NewEntityMapper()

	// vdisk 0 is FailRealm 0; vdisk 2 (order number for realm1/domain0) is FailRealm 1.
	p0 := pos(m, "rg1", "physicalA", "d1", 1)
	gl.AddDisk(p0, 0)

	sameRealmEntity := pos(m, "rg1", "physicalA", "d2", 2)
	require.Equal(t, uint8(0), gl.GetCandidateScore(sameRealmEntity, 2).Realm,
		"physical realm reused by a different logical fail realm")

	g := testGeom()
	ownRealm := pos(m, "rg1", "physicalA", "d1", 1)
	// vdisk 1 shares FailRealm 0 with vdisk 0 (same logical realm), same physical realm entity is fine.
	require.Equal(t, g.VDiskID(1).FailRealm, g.VDiskID(0).FailRealm)
	require.Equal(t, uint8(1), gl.GetCandidateScore(ownRealm, 1).Realm)
}

func TestGroupLayoutPenalizesDomainReuseWithinSameRealm(t *testing.T) {
	gl := NewGroupLayout(testGeom())
	m := topology.NewEntityMapper()

	// orderNumber 0 and 1 both live under FailRealm 0 (domains 0 and 1).
	p0 := pos(m, "rg1", "r1", "physicalDomain", 1)
	gl.AddDisk(p0, 0)

	reuse := pos(m, "rg1", "r1", "physicalDomain", 2)
	require.Equal(t, uint8(0), gl.GetCandidateScore(reuse, 1).Domain, "same physical domain reused within fail realm")
}

func TestGroupLayoutAddRemoveRoundTrips(t *testing.T) {
	gl := NewGroupLayout(testGeom())
	m := topology.NewEntityMapper()
	p := pos(m, "rg1", "r1", "d1", 1)

	before := gl.GetCandidateScore(p, 0)
	gl.AddDisk(p, 0)
	gl.RemoveDisk(p, 0)
	after := gl.GetCandidateScore(p, 0)
	require.Equal(t, before, after, "Add followed by Remove restores the prior candidate score")
}

func TestGetExcludedDiskScoreIsMarginalContribution(t *testing.T) {
	gl := NewGroupLayout(testGeom())
	m := topology.NewEntityMapper()

	p0 := pos(m, "rg1", "r1", "d1", 1)
	gl.AddDisk(p0, 0)

	p1 := pos(m, "rg2", "r1", "d1", 2)
	gl.AddDisk(p1, 1)

	excluded := gl.GetExcludedDiskScore(p1, 1)
	require.Equal(t, uint8(0), excluded.RealmGroup, "p1's own realm-group still collides once p0 is the sole survivor")

	// State must be restored after the excluded-score probe.
	require.Equal(t, uint8(0), gl.GetCandidateScore(p1, 1).RealmGroup)
}
