package conquest

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// TerritoryDef is the static description of one territory.
type TerritoryDef struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Continent string   `yaml:"continent"`
	Neighbors []string `yaml:"neighbors"`
}

// ContinentDef is the static description of one continent.
type ContinentDef struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Bonus int    `yaml:"bonus"`
}

// Continent groups territories and carries the reinforcement bonus for owning all of them.
type Continent struct {
	ID          string
	Name        string
	Bonus       int
	Territories []string
}

// Graph is the read-only territory graph a session is played on.
type Graph struct {
	territories map[string]*TerritoryDef
	continents  map[string]*Continent
	borders     map[string]map[string]bool
	ids         []string
}

// NewGraph builds a graph from territory and continent definitions.
// Borders are symmetric: listing a neighbor on either side is enough.
func NewGraph(territories []TerritoryDef, continents []ContinentDef) (*Graph, error) {
	g := &Graph{
		territories: make(map[string]*TerritoryDef, len(territories)),
		continents:  make(map[string]*Continent, len(continents)),
		borders:     make(map[string]map[string]bool, len(territories)),
	}

	for _, c := range continents {
		if c.ID == "" {
			return nil, fmt.Errorf("continent with empty id")
		}
		if _, dup := g.continents[c.ID]; dup {
			return nil, fmt.Errorf("duplicate continent %q", c.ID)
		}
		if c.Bonus < 0 {
			return nil, fmt.Errorf("continent %q has negative bonus", c.ID)
		}
		g.continents[c.ID] = &Continent{ID: c.ID, Name: c.Name, Bonus: c.Bonus}
	}

	for i := range territories {
		t := territories[i]
		if t.ID == "" {
			return nil, fmt.Errorf("territory with empty id")
		}
		if _, dup := g.territories[t.ID]; dup {
			return nil, fmt.Errorf("duplicate territory %q", t.ID)
		}
		c, ok := g.continents[t.Continent]
		if !ok {
			return nil, fmt.Errorf("territory %q references unknown continent %q", t.ID, t.Continent)
		}
		c.Territories = append(c.Territories, t.ID)
		g.territories[t.ID] = &t
		g.borders[t.ID] = make(map[string]bool)
		g.ids = append(g.ids, t.ID)
	}

	for _, t := range territories {
		for _, n := range t.Neighbors {
			if _, ok := g.territories[n]; !ok {
				return nil, fmt.Errorf("territory %q has unknown neighbor %q", t.ID, n)
			}
			if n == t.ID {
				return nil, fmt.Errorf("territory %q borders itself", t.ID)
			}
			g.borders[t.ID][n] = true
			g.borders[n][t.ID] = true
		}
	}

	for _, c := range g.continents {
		if len(c.Territories) == 0 {
			return nil, fmt.Errorf("continent %q has no territories", c.ID)
		}
		sort.Strings(c.Territories)
	}
	sort.Strings(g.ids)
	return g, nil
}

type graphFile struct {
	Continents  []ContinentDef `yaml:"continents"`
	Territories []TerritoryDef `yaml:"territories"`
}

// LoadGraphYAML parses a custom board definition.
func LoadGraphYAML(data []byte) (*Graph, error) {
	var f graphFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse map yaml: %w", err)
	}
	return NewGraph(f.Territories, f.Continents)
}

// Has reports whether id is a territory of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.territories[id]
	return ok
}

// Territory returns the definition for id, or nil.
func (g *Graph) Territory(id string) *TerritoryDef {
	return g.territories[id]
}

// IDs returns all territory ids in sorted order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Len returns the number of territories.
func (g *Graph) Len() int { return len(g.ids) }

// Adjacent reports whether a and b share a border.
func (g *Graph) Adjacent(a, b string) bool {
	return g.borders[a][b]
}

// Neighbors returns the sorted neighbor ids of a territory.
func (g *Graph) Neighbors(id string) []string {
	out := make([]string, 0, len(g.borders[id]))
	for n := range g.borders[id] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ContinentOf returns the continent id of a territory.
func (g *Graph) ContinentOf(id string) string {
	if t := g.territories[id]; t != nil {
		return t.Continent
	}
	return ""
}

// Continents returns all continents sorted by id.
func (g *Graph) Continents() []*Continent {
	out := make([]*Continent, 0, len(g.continents))
	for _, c := range g.continents {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connected reports whether to is reachable from from by walking only through
// territories for which allow returns true. Both endpoints must be allowed.
func (g *Graph) Connected(from, to string, allow func(id string) bool) bool {
	if !allow(from) || !allow(to) {
		return false
	}
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for n := range g.borders[cur] {
			if visited[n] || !allow(n) {
				continue
			}
			if n == to {
				return true
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return false
}
