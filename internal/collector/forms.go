package collector

import (
	"github.com/fyrsmithlabs/grievanced/internal/taxonomy"
	"github.com/fyrsmithlabs/grievanced/internal/validation"
)

// Field names of the built-in forms.
const (
	FieldMunicipality = "municipality"
	FieldVillage      = "village"
	FieldAddress      = "address"
	FieldFullName     = "full_name"
	FieldPhone        = "phone"
	FieldEmail        = "email"
)

// LocationForm asks for the place of the grievance. Municipalities are
// matched against the gazetteer returned by tax.
func LocationForm(tax func() *taxonomy.Taxonomy) *Form {
	return &Form{
		Name:          "location",
		ConsentPrompt: "Would you like to tell us where this happened?",
		Fields: []FieldSpec{
			{
				Name:      FieldMunicipality,
				Prompt:    "Which municipality?",
				Normalize: validation.NonEmpty,
				Suggest: func(v string) (string, bool) {
					m := tax().MatchMunicipality(v, 1)
					if len(m) == 0 {
						return "", false
					}
					return m[0].Name, true
				},
			},
			{Name: FieldVillage, Prompt: "Which village or ward?", Normalize: validation.NonEmpty},
			{Name: FieldAddress, Prompt: "Street address or landmark?", Normalize: validation.NonEmpty},
		},
	}
}

// ContactForm asks for the citizen's contact details.
func ContactForm() *Form {
	return &Form{
		Name:          "contact",
		ConsentPrompt: "May we collect your contact details to follow up?",
		Fields: []FieldSpec{
			{Name: FieldFullName, Prompt: "What is your full name?", Normalize: validation.Name},
			{Name: FieldPhone, Prompt: "Your mobile number? We will send a code to verify it.", Normalize: validation.Phone},
			{Name: FieldEmail, Prompt: "Your email address?", Normalize: validation.Email},
		},
	}
}
