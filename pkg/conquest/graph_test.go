package conquest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassicGraph(t *testing.T) {
	g := ClassicGraph()
	assert.Equal(t, 42, g.Len())
	require.Len(t, g.Continents(), 6)

	bonus := map[string]int{}
	total := 0
	for _, c := range g.Continents() {
		bonus[c.ID] = c.Bonus
		total += len(c.Territories)
	}
	assert.Equal(t, 42, total)
	assert.Equal(t, 5, bonus["north_america"])
	assert.Equal(t, 7, bonus["asia"])
	assert.Equal(t, 2, bonus["australia"])

	assert.True(t, g.Adjacent("alaska", "kamchatka"))
	assert.True(t, g.Adjacent("brazil", "north_africa"))
	assert.False(t, g.Adjacent("alaska", "ontario"))
	assert.Equal(t, "north_america", g.ContinentOf("alaska"))
}

func TestClassicGraphBordersAreSymmetric(t *testing.T) {
	g := ClassicGraph()
	for _, id := range g.IDs() {
		ns := g.Neighbors(id)
		require.NotEmpty(t, ns, id)
		for _, n := range ns {
			assert.True(t, g.Adjacent(n, id), "%s -> %s is one-way", id, n)
		}
	}
}

func TestGraphConnected(t *testing.T) {
	g := ClassicGraph()
	all := func(string) bool { return true }
	assert.True(t, g.Connected("argentina", "new_guinea", all))

	naOnly := func(id string) bool { return g.ContinentOf(id) == "north_america" }
	assert.True(t, g.Connected("alaska", "central_america", naOnly))
	assert.False(t, g.Connected("alaska", "venezuela", naOnly))
}

const tinyMap = `
continents:
  - id: east
    name: East
    bonus: 2
  - id: west
    name: West
    bonus: 1
territories:
  - id: a
    continent: west
    neighbors: [b]
  - id: b
    continent: west
    neighbors: [c]
  - id: c
    continent: east
  - id: d
    continent: east
    neighbors: [c]
`

func TestLoadGraphYAML(t *testing.T) {
	g, err := LoadGraphYAML([]byte(tinyMap))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.IDs())
	assert.True(t, g.Adjacent("c", "b"), "borders listed on one side apply both ways")
	assert.Equal(t, []string{"b", "d"}, g.Neighbors("c"))
	assert.Equal(t, "east", g.ContinentOf("d"))
	assert.False(t, g.Has("z"))
}

func TestNewGraphRejectsBadDefinitions(t *testing.T) {
	continents := []ContinentDef{{ID: "c", Bonus: 1}}

	_, err := NewGraph([]TerritoryDef{{ID: "a", Continent: "c", Neighbors: []string{"x"}}}, continents)
	assert.ErrorContains(t, err, "unknown neighbor")

	_, err = NewGraph([]TerritoryDef{{ID: "a", Continent: "nope"}}, continents)
	assert.ErrorContains(t, err, "unknown continent")

	_, err = NewGraph([]TerritoryDef{{ID: "a", Continent: "c"}, {ID: "a", Continent: "c"}}, continents)
	assert.ErrorContains(t, err, "duplicate territory")

	_, err = NewGraph([]TerritoryDef{{ID: "a", Continent: "c", Neighbors: []string{"a"}}}, continents)
	assert.ErrorContains(t, err, "borders itself")

	_, err = LoadGraphYAML([]byte("continents: [\n"))
	assert.Error(t, err)
}
