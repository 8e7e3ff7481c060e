package handler

import (
	"net/http"

	"github.com/freeeve/conquest/api/pkg/conquest"
)

// TerritoryView is the JSON form of one territory on the board.
type TerritoryView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Continent string   `json:"continent"`
	Neighbors []string `json:"neighbors"`
}

// ContinentView is the JSON form of a continent.
type ContinentView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Bonus       int      `json:"bonus"`
	Territories []string `json:"territories"`
}

// MapView is the board served to clients.
type MapView struct {
	Territories []TerritoryView `json:"territories"`
	Continents  []ContinentView `json:"continents"`
}

// MapHandler serves the territory graph sessions are played on.
type MapHandler struct {
	view MapView
}

// NewMapHandler builds the map view once; the graph is read-only.
func NewMapHandler(g *conquest.Graph) *MapHandler {
	var v MapView
	for _, id := range g.IDs() {
		t := g.Territory(id)
		v.Territories = append(v.Territories, TerritoryView{
			ID:        t.ID,
			Name:      t.Name,
			Continent: t.Continent,
			Neighbors: g.Neighbors(id),
		})
	}
	for _, c := range g.Continents() {
		v.Continents = append(v.Continents, ContinentView{
			ID: c.ID, Name: c.Name, Bonus: c.Bonus, Territories: c.Territories,
		})
	}
	return &MapHandler{view: v}
}

// GetMap handles GET /api/v1/map
func (h *MapHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view)
}
