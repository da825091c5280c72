package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"propertychat/internal/model"
	"propertychat/internal/utils"
)

// Price unit multipliers
const (
	UnitLakh     int64 = 100_000
	UnitThousand int64 = 1_000
)

// RentPriceCeiling is the largest budget still read as a monthly rent when a
// message names no listing type. Rents are assumed to be far below sale
// prices in the same currency unit; a high rent can be misread as a sale.
const RentPriceCeiling int64 = 100_000

const (
	numberExpr  = `(\d+(?:,\d+)*(?:\.\d+)?)`
	lakhExpr    = `(?:lakhs?|lacs?)`
	kExpr       = `(?:k|thousand)`
	ceilingExpr = `(?:under|below|less than|upto|up to|within|max|budget(?: of)?)`
	currency    = `(?:rs\.?|inr|₹)?\s*`
	orUnderExpr = `\s*(?:or|and)\s*(?:under|below|less)`
)

// pricePattern is one budget phrase form. Patterns are tried in table order
// and the first match sets the ceiling.
type pricePattern struct {
	name       string
	re         *regexp.Regexp
	multiplier int64
}

var pricePatterns = []pricePattern{
	{"under-lakh", regexp.MustCompile(ceilingExpr + `\s*` + currency + numberExpr + `\s*` + lakhExpr + `\b`), UnitLakh},
	{"lakh-or-under", regexp.MustCompile(numberExpr + `\s*` + lakhExpr + orUnderExpr), UnitLakh},
	{"lakh", regexp.MustCompile(numberExpr + `\s*` + lakhExpr + `\b`), UnitLakh},
	{"under-k", regexp.MustCompile(ceilingExpr + `\s*` + currency + numberExpr + `\s*` + kExpr + `\b`), UnitThousand},
	{"k-or-under", regexp.MustCompile(numberExpr + `\s*` + kExpr + orUnderExpr), UnitThousand},
	{"k", regexp.MustCompile(`\b` + numberExpr + `\s*` + kExpr + `\b`), UnitThousand},
	{"under-plain", regexp.MustCompile(ceilingExpr + `\s*` + currency + `(\d{1,3}(?:,\d{2,3})+|\d{4,})\b`), 1},
}

var (
	bedroomsRe = regexp.MustCompile(`(\d+)\s*(?:bhk|bed(?:room)?s?\b)`)
	rentRe     = regexp.MustCompile(`\b(?:rent(?:al|ing|ed)?|pg|hostel)\b`)
	saleRe     = regexp.MustCompile(`\b(?:buy(?:ing)?|sale|purchase|purchasing)\b`)
	metroRe    = regexp.MustCompile(`\bmetros?\b`)
	petRe      = regexp.MustCompile(`\bpets?\b`)
	bachelorRe = regexp.MustCompile(`\bbachelors?\b`)
)

// IntentParser turns one free-text chat message into a partial filter record.
// It never fails: text it does not understand leaves criteria unset.
type IntentParser struct{}

// NewIntentParser creates a new intent parser
func NewIntentParser() *IntentParser {
	return &IntentParser{}
}

// Parse extracts the criteria positively mentioned in message
func (p *IntentParser) Parse(message string) model.FilterRecord {
	var filters model.FilterRecord

	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return filters
	}

	if city, ok := utils.FindCity(text); ok {
		filters.City = model.StringPtr(city)
	}

	if m := bedroomsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			filters.Bedrooms = model.IntPtr(n)
		}
	}

	if price, ok := parseMaxPrice(text); ok {
		filters.MaxPrice = model.Int64Ptr(price)
	}

	switch {
	case rentRe.MatchString(text):
		filters.ListingType = model.ListingTypePtr(model.ListingTypeRent)
	case saleRe.MatchString(text):
		filters.ListingType = model.ListingTypePtr(model.ListingTypeSale)
	case filters.MaxPrice != nil:
		filters.ListingType = model.ListingTypePtr(InferListingTypeFromPrice(*filters.MaxPrice))
	}

	if strings.Contains(text, "furnished") && !strings.Contains(text, "unfurnished") {
		filters.Furnished = model.BoolPtr(true)
	}

	if metroRe.MatchString(text) {
		filters.NearMetro = model.BoolPtr(true)
	}
	if petRe.MatchString(text) {
		filters.PetFriendly = model.BoolPtr(true)
	}
	if bachelorRe.MatchString(text) {
		filters.BachelorFriendly = model.BoolPtr(true)
	}

	return filters
}

// InferListingTypeFromPrice guesses rent or sale from a budget alone.
// Applied only when the message carries no listing-type words.
func InferListingTypeFromPrice(maxPrice int64) model.ListingType {
	if maxPrice <= RentPriceCeiling {
		return model.ListingTypeRent
	}
	return model.ListingTypeSale
}

// parseMaxPrice returns the budget ceiling from the first matching pattern
func parseMaxPrice(text string) (int64, bool) {
	for _, pattern := range pricePatterns {
		m := pattern.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || amount <= 0 {
			continue
		}
		price := math.Round(amount * float64(pattern.multiplier))
		if price < 1 || price >= math.MaxInt64 {
			continue
		}
		return int64(price), true
	}
	return 0, false
}
