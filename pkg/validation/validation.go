package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/models"
)

const (
	TagRegionCode      = "insee_region"
	TagDepartementCode = "insee_departement"
	TagCommuneCode     = "insee_commune"
	TagSiren           = "siren"
)

var (
	regionCodeRe      = regexp.MustCompile(`^\d\d$`)
	departementCodeRe = regexp.MustCompile(`^([0-1]\d|2[AB1-9]|[3-8]\d|9[0-5]|97[12346])$`)
	communeCodeRe     = regexp.MustCompile(`^\d[0-9AB][0-9P]\d\d$`)
	sirenRe           = regexp.MustCompile(`^\d{9}$`)
)

// Validator checks administrative codes and registry numbers.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator with the subdivision tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation(TagRegionCode, matches(regionCodeRe))
	_ = v.RegisterValidation(TagDepartementCode, matches(departementCodeRe))
	_ = v.RegisterValidation(TagCommuneCode, matches(communeCodeRe))
	_ = v.RegisterValidation(TagSiren, func(fl validator.FieldLevel) bool {
		return IsValidSiren(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Engine exposes the underlying validator for request binding.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// Struct validates s against its `validate` tags.
func (v *Validator) Struct(s any) error {
	return v.validate.Struct(s)
}

// Code validates the administrative code of an entity at level.
func (v *Validator) Code(level models.Level, code string) error {
	tag := codeTag(level)
	if tag == "" {
		return nil
	}
	if err := v.validate.Var(code, "required,"+tag); err != nil {
		return errors.NewValidationError(level.String(), "insee", code, tag)
	}
	return nil
}

// Siren validates a registry number. An empty value is accepted since not every source carries one.
func (v *Validator) Siren(level models.Level, siren string) error {
	if siren == "" {
		return nil
	}
	if err := v.validate.Var(siren, TagSiren); err != nil {
		return errors.NewValidationError(level.String(), "siren", siren, TagSiren)
	}
	return nil
}

// Category validates the category of a region or département, or the legal type of a grouping.
// Regions and départements may have none; a grouping always carries its type.
func (v *Validator) Category(level models.Level, category string) error {
	rule, field := categoryRule(level)
	if rule == "" {
		return nil
	}
	if category == "" && level != models.LevelEpci {
		return nil
	}
	if err := v.validate.Var(category, "required,"+rule); err != nil {
		return errors.NewValidationError(level.String(), field, category, rule)
	}
	return nil
}

func categoryRule(level models.Level) (rule, field string) {
	switch level {
	case models.LevelRegion:
		return oneOf(models.RegionCategoryRegion, models.RegionCategoryCTU), "category"
	case models.LevelDepartement:
		return oneOf(models.DepartementCategoryDept, models.DepartementCategoryParis,
			models.DepartementCategoryMetroLyon), "category"
	case models.LevelEpci:
		return oneOf(models.EpciTypeCA, models.EpciTypeCC, models.EpciTypeCU,
			models.EpciTypeMET69, models.EpciTypeMETRO), "epci_type"
	}
	return "", ""
}

func oneOf(values ...string) string {
	return "oneof=" + strings.Join(values, " ")
}

func codeTag(level models.Level) string {
	switch level {
	case models.LevelRegion:
		return TagRegionCode
	case models.LevelDepartement:
		return TagDepartementCode
	case models.LevelCommune:
		return TagCommuneCode
	}
	return ""
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// IsValidSiren reports whether s is nine digits with a valid Luhn checksum.
func IsValidSiren(s string) bool {
	if !sirenRe.MatchString(s) {
		return false
	}
	sum := 0
	for i := 0; i < len(s); i++ {
		d := int(s[len(s)-1-i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
