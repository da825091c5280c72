package model

// Furnishing describes how a property is furnished
type Furnishing string

const (
	FurnishingFull        Furnishing = "furnished"
	FurnishingSemi        Furnishing = "semi-furnished"
	FurnishingUnfurnished Furnishing = "unfurnished"
)

// IsFurnished reports whether the property is semi or fully furnished
func (f Furnishing) IsFurnished() bool {
	return f == FurnishingFull || f == FurnishingSemi
}

// PropertySnapshot is a read-only projection of an available listing, as held
// by the inventory cache
type PropertySnapshot struct {
	ID               int64       `json:"id" db:"id" yaml:"id"`
	Title            string      `json:"title" db:"title" yaml:"title"`
	City             string      `json:"city" db:"city" yaml:"city"`
	Locality         string      `json:"locality" db:"locality" yaml:"locality"`
	Bedrooms         int         `json:"bedrooms" db:"bedrooms" yaml:"bedrooms"`
	Bathrooms        *int        `json:"bathrooms,omitempty" db:"bathrooms" yaml:"bathrooms"`
	Price            int64       `json:"price" db:"price" yaml:"price"`
	ListingType      ListingType `json:"listing_type" db:"listing_type" yaml:"listing_type"`
	PropertyType     string      `json:"property_type" db:"property_type" yaml:"property_type"`
	Furnishing       Furnishing  `json:"furnishing" db:"furnishing" yaml:"furnishing"`
	NearMetro        bool        `json:"near_metro" db:"near_metro" yaml:"near_metro"`
	PetFriendly      bool        `json:"pet_friendly" db:"pet_friendly" yaml:"pet_friendly"`
	BachelorFriendly bool        `json:"bachelor_friendly" db:"bachelor_friendly" yaml:"bachelor_friendly"`
	CoverImage       *string     `json:"image,omitempty" db:"cover_image" yaml:"image"`
}

// RankedProperty is a property with its match score against a filter record
type RankedProperty struct {
	PropertySnapshot
	Score          int      `json:"score"`
	MaxScore       int      `json:"max_score"`
	MatchedReasons []string `json:"matched_reasons"`
}
