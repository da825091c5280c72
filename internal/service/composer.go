package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"propertychat/internal/model"
)

// Fixed replies
const (
	ReplyNoMatches = "Sorry, I couldn't find any matching properties. " +
		"Try a broader budget or a different city, or tell me more about what you need."
	ReplySourceUnavailable = "No properties are available right now. Please try again in a little while."
)

// ResponseComposer renders the assistant reply for a ranked result set
type ResponseComposer struct{}

// NewResponseComposer creates a new response composer
func NewResponseComposer() *ResponseComposer {
	return &ResponseComposer{}
}

// Compose builds a one or two sentence summary from the effective filters and
// the ranked results. It only states criteria present in filters.
func (c *ResponseComposer) Compose(filters model.FilterRecord, results []model.RankedProperty) string {
	if len(results) == 0 {
		return ReplyNoMatches
	}

	if filters.IsEmpty() {
		return fmt.Sprintf("Here are %d %s you might like. "+
			"Tell me a city, budget or number of bedrooms to narrow it down.",
			len(results), pluralize(len(results), "property", "properties"))
	}

	description := describeSearch(filters, len(results))

	if AllUnmatched(results) {
		return fmt.Sprintf("I couldn't find an exact match for %s. "+
			"Here are the %d closest alternatives.", description, len(results))
	}

	return fmt.Sprintf("I found %d %s.", len(results), description)
}

// ComposeUnavailable is the reply used when the inventory cannot be loaded
func (c *ResponseComposer) ComposeUnavailable() string {
	return ReplySourceUnavailable
}

// describeSearch renders e.g. "2 BHK properties for rent in Bangalore under 30k"
func describeSearch(filters model.FilterRecord, count int) string {
	var b strings.Builder

	if filters.Bedrooms != nil {
		fmt.Fprintf(&b, "%d BHK ", *filters.Bedrooms)
	}
	b.WriteString(pluralize(count, "property", "properties"))

	if filters.ListingType != nil {
		fmt.Fprintf(&b, " for %s", *filters.ListingType)
	}
	if filters.City != nil {
		fmt.Fprintf(&b, " in %s", *filters.City)
	}
	if filters.MaxPrice != nil {
		fmt.Fprintf(&b, " under %s", FormatPrice(*filters.MaxPrice))
	}

	var features []string
	if requested(filters.Furnished) {
		features = append(features, "furnished")
	}
	if requested(filters.NearMetro) {
		features = append(features, "near a metro")
	}
	if requested(filters.PetFriendly) {
		features = append(features, "pet friendly")
	}
	if requested(filters.BachelorFriendly) {
		features = append(features, "bachelor friendly")
	}
	if len(features) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(features, ", "))
	}

	return b.String()
}

// FormatPrice renders an amount in the notation the parser reads: lakh for
// amounts of 1,00,000 and above, k for thousands. Amounts those units cannot
// show exactly in two decimals are printed in full.
func FormatPrice(amount int64) string {
	switch {
	case amount >= UnitLakh && amount%(UnitLakh/100) == 0:
		return trimAmount(float64(amount)/float64(UnitLakh)) + " lakh"
	case amount >= UnitThousand && amount%(UnitThousand/100) == 0:
		return trimAmount(float64(amount)/float64(UnitThousand)) + "k"
	default:
		return strconv.FormatInt(amount, 10)
	}
}

// trimAmount formats with at most two decimals and no trailing zeros
func trimAmount(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
