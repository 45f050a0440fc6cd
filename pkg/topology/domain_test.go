package topology

import (
	"testing"

	"github.com/stretchr/testify/require"

	"groupmapper/pkg/proto"
)

func TestEntityMapperInterningIsStable(t *testing.T) {
	m := NewEntityMapper()

	a := m.Intern(LevelDomain, proto.EntityID(1), "domain-a")
	b := m.Intern(LevelDomain, proto.EntityID(1), "domain-a")
	require.Equal(t, a, b, "same label under same parent must reuse the id")

	c := m.Intern(LevelDomain, proto.EntityID(2), "domain-a")
	require.NotEqual(t, a, c, "same label under a different parent must get a fresh id")
}

func TestEntityMapperIDCount(t *testing.T) {
	m := NewEntityMapper()
	require.Equal(t, 0, m.IDCount())
	m.Intern(LevelRealmGroup, proto.EntityIDInvalid, "rg1")
	require.Equal(t, 1, m.IDCount())
	m.Intern(LevelRealmGroup, proto.EntityIDInvalid, "rg1")
	require.Equal(t, 1, m.IDCount())
	m.Intern(LevelRealmGroup, proto.EntityIDInvalid, "rg2")
	require.Equal(t, 2, m.IDCount())
}

func TestPositionOrderingAndEquality(t *testing.T) {
	m := NewEntityMapper()
	p1 := NewPosition(m, Location{RealmGroup: "rg", Realm: "r0", Domain: "d0"}, 1)
	p2 := NewPosition(m, Location{RealmGroup: "rg", Realm: "r0", Domain: "d0"}, 2)
	p3 := NewPosition(m, Location{RealmGroup: "rg", Realm: "r0", Domain: "d1"}, 1)

	require.True(t, p1.Less(p2))
	require.False(t, p2.Less(p1))
	require.True(t, p2.Less(p3) || p3.Less(p2))
	require.False(t, p1.Equal(p2))

	p1Again := NewPosition(m, Location{RealmGroup: "rg", Realm: "r0", Domain: "d0"}, 1)
	require.True(t, p1.Equal(p1Again))
}
