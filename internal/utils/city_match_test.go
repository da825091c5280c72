package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindCity(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "canonical lowercase", text: "flats in bangalore", want: "Bangalore", wantOK: true},
		{name: "mixed case", text: "Need a PG in HYDERABAD", want: "Hyderabad", wantOK: true},
		{name: "alias", text: "2bhk in Bengaluru please", want: "Bangalore", wantOK: true},
		{name: "gazetteer order wins", text: "pune or mumbai", want: "Mumbai", wantOK: true},
		{name: "no city", text: "cheap flat near metro", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindCity(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindCity_EveryGazetteerEntry(t *testing.T) {
	for _, city := range Gazetteer {
		got, ok := FindCity("looking for a house in " + city.Name + " soon")
		assert.True(t, ok, city.Name)
		assert.Equal(t, city.Name, got)
	}
}

func TestSameCity(t *testing.T) {
	assert.True(t, SameCity("Bangalore", "bengaluru"))
	assert.True(t, SameCity(" mumbai ", "Bombay"))
	assert.True(t, SameCity("Mysore", "mysore"))
	assert.False(t, SameCity("Pune", "Mumbai"))
}
