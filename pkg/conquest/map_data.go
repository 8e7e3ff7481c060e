package conquest

import "sync"

var (
	classicOnce sync.Once
	classicInst *Graph
)

// ClassicGraph returns the classic 42-territory board. The graph is built once
// and shared; callers must treat it as read-only.
func ClassicGraph() *Graph {
	classicOnce.Do(func() {
		g, err := NewGraph(classicTerritories(), classicContinents())
		if err != nil {
			panic("conquest: classic map is invalid: " + err.Error())
		}
		classicInst = g
	})
	return classicInst
}

func classicContinents() []ContinentDef {
	return []ContinentDef{
		{ID: "north_america", Name: "North America", Bonus: 5},
		{ID: "south_america", Name: "South America", Bonus: 2},
		{ID: "europe", Name: "Europe", Bonus: 5},
		{ID: "africa", Name: "Africa", Bonus: 3},
		{ID: "asia", Name: "Asia", Bonus: 7},
		{ID: "australia", Name: "Australia", Bonus: 2},
	}
}

func classicTerritories() []TerritoryDef {
	var ts []TerritoryDef
	add := func(id, name, continent string, neighbors ...string) {
		ts = append(ts, TerritoryDef{ID: id, Name: name, Continent: continent, Neighbors: neighbors})
	}

	// North America
	add("alaska", "Alaska", "north_america", "northwest_territory", "alberta", "kamchatka")
	add("northwest_territory", "Northwest Territory", "north_america", "alaska", "alberta", "ontario", "greenland")
	add("greenland", "Greenland", "north_america", "northwest_territory", "ontario", "quebec", "iceland")
	add("alberta", "Alberta", "north_america", "alaska", "northwest_territory", "ontario", "western_united_states")
	add("ontario", "Ontario", "north_america", "northwest_territory", "alberta", "greenland", "quebec", "western_united_states", "eastern_united_states")
	add("quebec", "Quebec", "north_america", "ontario", "greenland", "eastern_united_states")
	add("western_united_states", "Western United States", "north_america", "alberta", "ontario", "eastern_united_states", "central_america")
	add("eastern_united_states", "Eastern United States", "north_america", "ontario", "quebec", "western_united_states", "central_america")
	add("central_america", "Central America", "north_america", "western_united_states", "eastern_united_states", "venezuela")

	// South America
	add("venezuela", "Venezuela", "south_america", "central_america", "peru", "brazil")
	add("peru", "Peru", "south_america", "venezuela", "brazil", "argentina")
	add("brazil", "Brazil", "south_america", "venezuela", "peru", "argentina", "north_africa")
	add("argentina", "Argentina", "south_america", "peru", "brazil")

	// Europe
	add("iceland", "Iceland", "europe", "greenland", "great_britain", "scandinavia")
	add("scandinavia", "Scandinavia", "europe", "iceland", "great_britain", "northern_europe", "ukraine")
	add("great_britain", "Great Britain", "europe", "iceland", "scandinavia", "northern_europe", "western_europe")
	add("northern_europe", "Northern Europe", "europe", "great_britain", "scandinavia", "ukraine", "southern_europe", "western_europe")
	add("western_europe", "Western Europe", "europe", "great_britain", "northern_europe", "southern_europe", "north_africa")
	add("southern_europe", "Southern Europe", "europe", "western_europe", "northern_europe", "ukraine", "middle_east", "egypt", "north_africa")
	add("ukraine", "Ukraine", "europe", "scandinavia", "northern_europe", "southern_europe", "ural", "afghanistan", "middle_east")

	// Africa
	add("north_africa", "North Africa", "africa", "brazil", "western_europe", "southern_europe", "egypt", "east_africa", "congo")
	add("egypt", "Egypt", "africa", "north_africa", "southern_europe", "middle_east", "east_africa")
	add("east_africa", "East Africa", "africa", "egypt", "north_africa", "congo", "south_africa", "madagascar", "middle_east")
	add("congo", "Congo", "africa", "north_africa", "east_africa", "south_africa")
	add("south_africa", "South Africa", "africa", "congo", "east_africa", "madagascar")
	add("madagascar", "Madagascar", "africa", "south_africa", "east_africa")

	// Asia
	add("ural", "Ural", "asia", "ukraine", "siberia", "china", "afghanistan")
	add("siberia", "Siberia", "asia", "ural", "yakutsk", "irkutsk", "mongolia", "china")
	add("yakutsk", "Yakutsk", "asia", "siberia", "kamchatka", "irkutsk")
	add("kamchatka", "Kamchatka", "asia", "yakutsk", "irkutsk", "mongolia", "japan", "alaska")
	add("irkutsk", "Irkutsk", "asia", "siberia", "yakutsk", "kamchatka", "mongolia")
	add("mongolia", "Mongolia", "asia", "siberia", "irkutsk", "kamchatka", "japan", "china")
	add("japan", "Japan", "asia", "kamchatka", "mongolia")
	add("afghanistan", "Afghanistan", "asia", "ukraine", "ural", "china", "india", "middle_east")
	add("china", "China", "asia", "afghanistan", "ural", "siberia", "mongolia", "siam", "india")
	add("middle_east", "Middle East", "asia", "ukraine", "afghanistan", "india", "egypt", "east_africa", "southern_europe")
	add("india", "India", "asia", "middle_east", "afghanistan", "china", "siam")
	add("siam", "Siam", "asia", "india", "china", "indonesia")

	// Australia
	add("indonesia", "Indonesia", "australia", "siam", "new_guinea", "western_australia")
	add("new_guinea", "New Guinea", "australia", "indonesia", "western_australia", "eastern_australia")
	add("western_australia", "Western Australia", "australia", "indonesia", "new_guinea", "eastern_australia")
	add("eastern_australia", "Eastern Australia", "australia", "new_guinea", "western_australia")

	return ts
}
