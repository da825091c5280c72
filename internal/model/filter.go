package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ListingType is the transaction kind of a listing
type ListingType string

const (
	ListingTypeSale ListingType = "sale"
	ListingTypeRent ListingType = "rent"
)

// Valid reports whether t is one of the known listing types
func (t ListingType) Valid() bool {
	return t == ListingTypeSale || t == ListingTypeRent
}

// FilterRecord is a partially specified search query accumulated over a chat.
// A nil field means the criterion is unconstrained, never "false" or zero.
type FilterRecord struct {
	City             *string      `json:"city,omitempty"`
	Bedrooms         *int         `json:"bedrooms,omitempty"`
	MaxPrice         *int64       `json:"max_price,omitempty"`
	ListingType      *ListingType `json:"listing_type,omitempty"`
	Furnished        *bool        `json:"furnished,omitempty"`
	NearMetro        *bool        `json:"near_metro,omitempty"`
	PetFriendly      *bool        `json:"pet_friendly,omitempty"`
	BachelorFriendly *bool        `json:"bachelor_friendly,omitempty"`
}

// IsEmpty reports whether no criterion is constrained
func (f FilterRecord) IsEmpty() bool {
	return f.City == nil &&
		f.Bedrooms == nil &&
		f.MaxPrice == nil &&
		f.ListingType == nil &&
		f.Furnished == nil &&
		f.NearMetro == nil &&
		f.PetFriendly == nil &&
		f.BachelorFriendly == nil
}

// Merge folds incoming into f and returns the result. Every key present in
// incoming overwrites the same key in f; keys absent from incoming are kept.
// Neither receiver nor argument is modified.
func (f FilterRecord) Merge(incoming FilterRecord) FilterRecord {
	merged := f.Clone()

	if incoming.City != nil {
		merged.City = ptr(*incoming.City)
	}
	if incoming.Bedrooms != nil {
		merged.Bedrooms = ptr(*incoming.Bedrooms)
	}
	if incoming.MaxPrice != nil {
		merged.MaxPrice = ptr(*incoming.MaxPrice)
	}
	if incoming.ListingType != nil {
		merged.ListingType = ptr(*incoming.ListingType)
	}
	if incoming.Furnished != nil {
		merged.Furnished = ptr(*incoming.Furnished)
	}
	if incoming.NearMetro != nil {
		merged.NearMetro = ptr(*incoming.NearMetro)
	}
	if incoming.PetFriendly != nil {
		merged.PetFriendly = ptr(*incoming.PetFriendly)
	}
	if incoming.BachelorFriendly != nil {
		merged.BachelorFriendly = ptr(*incoming.BachelorFriendly)
	}

	return merged
}

// Clone returns a deep copy so callers never share pointers across sessions
func (f FilterRecord) Clone() FilterRecord {
	var out FilterRecord
	if f.City != nil {
		out.City = ptr(*f.City)
	}
	if f.Bedrooms != nil {
		out.Bedrooms = ptr(*f.Bedrooms)
	}
	if f.MaxPrice != nil {
		out.MaxPrice = ptr(*f.MaxPrice)
	}
	if f.ListingType != nil {
		out.ListingType = ptr(*f.ListingType)
	}
	if f.Furnished != nil {
		out.Furnished = ptr(*f.Furnished)
	}
	if f.NearMetro != nil {
		out.NearMetro = ptr(*f.NearMetro)
	}
	if f.PetFriendly != nil {
		out.PetFriendly = ptr(*f.PetFriendly)
	}
	if f.BachelorFriendly != nil {
		out.BachelorFriendly = ptr(*f.BachelorFriendly)
	}
	return out
}

// String renders the record as compact JSON for logs
func (f FilterRecord) String() string {
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Value implements driver.Valuer interface
func (f FilterRecord) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface
func (f *FilterRecord) Scan(value interface{}) error {
	*f = FilterRecord{}
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, f)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported filter record column type %T", value)
	}
}

// Helper constructors used by the parser and tests

func StringPtr(v string) *string { return &v }

func IntPtr(v int) *int { return &v }

func Int64Ptr(v int64) *int64 { return &v }

func BoolPtr(v bool) *bool { return &v }

func ListingTypePtr(v ListingType) *ListingType { return &v }

func ptr[T any](v T) *T { return &v }
