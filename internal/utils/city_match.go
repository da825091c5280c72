package utils

import (
	"strings"
)

// City is one gazetteer entry: its canonical name and the spellings users
// type for it. Aliases are lowercase.
type City struct {
	Name    string
	Aliases []string
}

// Gazetteer is the fixed list of searchable cities. Order matters: when a
// message mentions several cities the first entry found wins.
var Gazetteer = []City{
	{Name: "Bangalore", Aliases: []string{"bangalore", "bengaluru", "blr"}},
	{Name: "Mumbai", Aliases: []string{"mumbai", "bombay"}},
	{Name: "Delhi", Aliases: []string{"delhi", "new delhi"}},
	{Name: "Pune", Aliases: []string{"pune"}},
	{Name: "Hyderabad", Aliases: []string{"hyderabad", "secunderabad"}},
	{Name: "Chennai", Aliases: []string{"chennai", "madras"}},
	{Name: "Kolkata", Aliases: []string{"kolkata", "calcutta"}},
	{Name: "Ahmedabad", Aliases: []string{"ahmedabad"}},
	{Name: "Gurgaon", Aliases: []string{"gurgaon", "gurugram"}},
	{Name: "Noida", Aliases: []string{"noida"}},
	{Name: "Jaipur", Aliases: []string{"jaipur"}},
	{Name: "Chandigarh", Aliases: []string{"chandigarh"}},
	{Name: "Kochi", Aliases: []string{"kochi", "cochin"}},
	{Name: "Lucknow", Aliases: []string{"lucknow"}},
	{Name: "Indore", Aliases: []string{"indore"}},
}

// FindCity returns the canonical name of the first gazetteer city whose name
// or alias occurs in text. Matching is case-insensitive substring matching.
func FindCity(text string) (string, bool) {
	textLower := strings.ToLower(text)

	for _, city := range Gazetteer {
		for _, alias := range city.Aliases {
			if strings.Contains(textLower, alias) {
				return city.Name, true
			}
		}
	}

	return "", false
}

// NormalizeCity maps a city name or alias to its canonical gazetteer name.
// Unknown names are returned trimmed with their original spelling.
func NormalizeCity(name string) string {
	nameLower := strings.ToLower(strings.TrimSpace(name))

	for _, city := range Gazetteer {
		for _, alias := range city.Aliases {
			if nameLower == alias {
				return city.Name
			}
		}
	}

	return strings.TrimSpace(name)
}

// SameCity reports whether two city names refer to the same city,
// treating gazetteer aliases as equal
func SameCity(a, b string) bool {
	return strings.EqualFold(NormalizeCity(a), NormalizeCity(b))
}
