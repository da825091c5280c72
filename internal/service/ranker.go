package service

import (
	"fmt"
	"sort"

	"propertychat/internal/model"
	"propertychat/internal/utils"
)

// Match reason constants
const (
	ReasonCityMatch        = "City match"
	ReasonBedroomsMatch    = "Bedrooms match"
	ReasonBedroomsClose    = "Bedrooms off by one"
	ReasonPriceMatch       = "Price within budget"
	ReasonPriceClose       = "Price slightly over budget"
	ReasonListingTypeMatch = "Listing type match"
	ReasonFurnished        = "Furnished"
	ReasonNearMetro        = "Near metro"
	ReasonPetFriendly      = "Pet friendly"
	ReasonBachelorFriendly = "Bachelor friendly"
	ReasonSuggestion       = "General suggestion"
)

// Score weights per criterion. Only criteria constrained by the filter record
// contribute to either the score or the maximum score.
const (
	WeightCity          = 10
	WeightBedroomsExact = 5
	WeightBedroomsNear  = 2
	WeightPriceWithin   = 5
	WeightPriceNear     = 2
	WeightListingType   = 8
	WeightFurnished     = 3
	WeightFeatureFlag   = 3
)

// PriceTolerance is how far over the ceiling a price may be and still earn
// WeightPriceNear, as a fraction of the ceiling
const PriceTolerance = 0.20

// DefaultMaxResults caps the ranked result list
const DefaultMaxResults = 6

// Ranker scores cached properties against a filter record
type Ranker struct {
	maxResults int
}

// NewRanker creates a new ranker returning at most maxResults properties
func NewRanker(maxResults int) *Ranker {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Ranker{maxResults: maxResults}
}

// Rank returns up to maxResults properties best matching filters.
//
// With no filters the first properties in inventory order are returned as
// suggestions. Otherwise properties are stably sorted by descending score and
// those scoring above zero are returned; if none does, the top of the sorted
// list is returned anyway so a non-empty inventory never yields no results.
func (r *Ranker) Rank(properties []model.PropertySnapshot, filters model.FilterRecord) []model.RankedProperty {
	if len(properties) == 0 {
		return []model.RankedProperty{}
	}

	if filters.IsEmpty() {
		n := min(r.maxResults, len(properties))
		results := make([]model.RankedProperty, 0, n)
		for _, p := range properties[:n] {
			results = append(results, model.RankedProperty{
				PropertySnapshot: p,
				MatchedReasons:   []string{ReasonSuggestion},
			})
		}
		return results
	}

	scored := make([]model.RankedProperty, 0, len(properties))
	for _, p := range properties {
		scored = append(scored, r.Score(p, filters))
	}

	// Sort by score descending, inventory order on ties
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	results := make([]model.RankedProperty, 0, r.maxResults)
	for _, s := range scored {
		if s.Score <= 0 || len(results) == r.maxResults {
			break
		}
		results = append(results, s)
	}

	if len(results) == 0 {
		results = append(results, scored[:min(r.maxResults, len(scored))]...)
	}

	return results
}

// Score computes the match score, the maximum possible score and the matched
// reasons of one property
func (r *Ranker) Score(p model.PropertySnapshot, filters model.FilterRecord) model.RankedProperty {
	result := model.RankedProperty{
		PropertySnapshot: p,
		MatchedReasons:   []string{},
	}

	add := func(points int, reason string) {
		result.Score += points
		result.MatchedReasons = append(result.MatchedReasons, reason)
	}

	if filters.City != nil {
		result.MaxScore += WeightCity
		if utils.SameCity(p.City, *filters.City) {
			add(WeightCity, ReasonCityMatch)
		}
	}

	if filters.Bedrooms != nil {
		result.MaxScore += WeightBedroomsExact
		switch diff := p.Bedrooms - *filters.Bedrooms; {
		case diff == 0:
			add(WeightBedroomsExact, ReasonBedroomsMatch)
		case diff == 1 || diff == -1:
			add(WeightBedroomsNear, ReasonBedroomsClose)
		}
	}

	if filters.MaxPrice != nil {
		result.MaxScore += WeightPriceWithin
		ceiling := *filters.MaxPrice
		switch {
		case p.Price <= ceiling:
			add(WeightPriceWithin, ReasonPriceMatch)
		case float64(p.Price) <= float64(ceiling)*(1+PriceTolerance):
			add(WeightPriceNear, ReasonPriceClose)
		}
	}

	if filters.ListingType != nil {
		result.MaxScore += WeightListingType
		if p.ListingType == *filters.ListingType {
			add(WeightListingType, ReasonListingTypeMatch)
		}
	}

	if requested(filters.Furnished) {
		result.MaxScore += WeightFurnished
		if p.Furnishing.IsFurnished() {
			add(WeightFurnished, ReasonFurnished)
		}
	}

	flags := []struct {
		wanted *bool
		has    bool
		reason string
	}{
		{filters.NearMetro, p.NearMetro, ReasonNearMetro},
		{filters.PetFriendly, p.PetFriendly, ReasonPetFriendly},
		{filters.BachelorFriendly, p.BachelorFriendly, ReasonBachelorFriendly},
	}
	for _, f := range flags {
		if !requested(f.wanted) {
			continue
		}
		result.MaxScore += WeightFeatureFlag
		if f.has {
			add(WeightFeatureFlag, f.reason)
		}
	}

	return result
}

// AllUnmatched reports whether every result scored zero, which marks a
// fallback list rather than real matches
func AllUnmatched(results []model.RankedProperty) bool {
	for _, r := range results {
		if r.Score > 0 {
			return false
		}
	}
	return true
}

func requested(flag *bool) bool {
	return flag != nil && *flag
}

// describe renders a ranked property for debug logging
func describe(p model.RankedProperty) string {
	return fmt.Sprintf("#%d %s (%d/%d)", p.ID, p.Title, p.Score, p.MaxScore)
}
