package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	suberrors "github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/models"
)

func TestValidator_Code(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		level models.Level
		code  string
		valid bool
	}{
		{"region two digits", models.LevelRegion, "11", true},
		{"region overseas", models.LevelRegion, "01", true},
		{"region three digits", models.LevelRegion, "111", false},
		{"region letters", models.LevelRegion, "2A", false},
		{"departement mainland", models.LevelDepartement, "75", true},
		{"departement corsica", models.LevelDepartement, "2A", true},
		{"departement corsica haute", models.LevelDepartement, "2B", true},
		{"departement twenty is not used", models.LevelDepartement, "20", false},
		{"departement overseas", models.LevelDepartement, "974", true},
		{"departement mayotte", models.LevelDepartement, "976", true},
		{"departement unknown overseas", models.LevelDepartement, "975", false},
		{"departement 96 is not used", models.LevelDepartement, "96", false},
		{"commune paris", models.LevelCommune, "75056", true},
		{"commune corsica", models.LevelCommune, "2A004", true},
		{"commune paris arrondissement style", models.LevelCommune, "751P1", false},
		{"commune too short", models.LevelCommune, "7505", false},
		{"empty code", models.LevelRegion, "", false},
		{"groupings have no code rule", models.LevelEpci, "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Code(tt.level, tt.code)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *suberrors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.code, verr.Value)
			assert.Equal(t, string(tt.level), verr.Level)
		})
	}
}

func TestIsValidSiren(t *testing.T) {
	tests := []struct {
		siren string
		valid bool
	}{
		{"200054781", true},
		{"732829320", true},
		{"217500016", true},
		{"200054782", false},
		{"123456789", false},
		{"20005478", false},
		{"20005478A", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.siren, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidSiren(tt.siren))
		})
	}
}

func TestValidator_Siren(t *testing.T) {
	v := New()

	assert.NoError(t, v.Siren(models.LevelCommune, ""))
	assert.NoError(t, v.Siren(models.LevelCommune, "217500016"))

	err := v.Siren(models.LevelEpci, "200054782")
	var verr *suberrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "siren", verr.Field)
	assert.Equal(t, TagSiren, verr.Rule)
}

func TestValidator_Category(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		level    models.Level
		category string
		valid    bool
	}{
		{"region", models.LevelRegion, models.RegionCategoryRegion, true},
		{"single territorial collectivity", models.LevelRegion, models.RegionCategoryCTU, true},
		{"region without category", models.LevelRegion, "", true},
		{"region with departement category", models.LevelRegion, models.DepartementCategoryDept, false},
		{"departement", models.LevelDepartement, models.DepartementCategoryDept, true},
		{"paris", models.LevelDepartement, models.DepartementCategoryParis, true},
		{"metropole de lyon", models.LevelDepartement, models.DepartementCategoryMetroLyon, true},
		{"departement lowercase", models.LevelDepartement, "dept", false},
		{"grouping", models.LevelEpci, models.EpciTypeMET69, true},
		{"grouping syndicate", models.LevelEpci, "SIVOM", false},
		{"grouping without type", models.LevelEpci, "", false},
		{"communes have no category rule", models.LevelCommune, "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Category(tt.level, tt.category)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var verr *suberrors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.category, verr.Value)
			assert.Contains(t, verr.Rule, "oneof=")
		})
	}
}

func TestValidator_Struct(t *testing.T) {
	v := New()

	type row struct {
		Insee string `validate:"insee_commune"`
		Siren string `validate:"omitempty,siren"`
	}

	assert.NoError(t, v.Struct(row{Insee: "01001", Siren: "210100012"}))
	assert.Error(t, v.Struct(row{Insee: "01001", Siren: "210100013"}))
	assert.Error(t, v.Struct(row{Insee: "ABCDE"}))
}
