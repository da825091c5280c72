package model

import "time"

// ChatRequest represents an inbound chat message
type ChatRequest struct {
	Message      string `json:"message"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// PropertyCard is the compact property shape returned to chat clients
type PropertyCard struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Price       int64       `json:"price"`
	ListingType ListingType `json:"listing_type"`
	Bedrooms    int         `json:"bedrooms"`
	Bathrooms   *int        `json:"bathrooms"`
	Locality    string      `json:"locality"`
	City        string      `json:"city"`
	Image       *string     `json:"image"`
}

// NewPropertyCard projects a ranked property onto the response shape
func NewPropertyCard(p RankedProperty) PropertyCard {
	return PropertyCard{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		ListingType: p.ListingType,
		Bedrooms:    p.Bedrooms,
		Bathrooms:   p.Bathrooms,
		Locality:    p.Locality,
		City:        p.City,
		Image:       p.CoverImage,
	}
}

// ChatResponse represents the reply to one chat message
type ChatResponse struct {
	SessionToken string         `json:"sessionToken"`
	Message      string         `json:"message"`
	Filters      FilterRecord   `json:"filters"`
	Properties   []PropertyCard `json:"properties"`
	TotalResults int            `json:"totalResults"`
}

// HistoryMessage is one entry of a session history response
type HistoryMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResponse represents GET /chat/history/:sessionToken
type HistoryResponse struct {
	SessionToken string           `json:"sessionToken"`
	Context      FilterRecord     `json:"context"`
	Messages     []HistoryMessage `json:"messages"`
}
