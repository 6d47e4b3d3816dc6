package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Île-de-France", "ile-de-france"},
		{"Provence-Alpes-Côte d'Azur", "provence-alpes-cote-dazur"},
		{"Hauts-de-Seine", "hauts-de-seine"},
		{"  La Réunion  ", "la-reunion"},
		{"Saint-Étienne -- Métropole", "saint-etienne-metropole"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Make(tt.input))
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "l-abergement-clemenciat-01001", Join("L Abergement-Clémenciat", "01001"))
	assert.Equal(t, "cc-de-la-veyle-200070118", Join("CC de la Veyle", "200070118"))
}
