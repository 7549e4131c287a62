// Package profile defines the contact details the guard protects.
package profile

// Profile is the saved contact record used to prefill booking forms. Values
// are opaque and stored exactly as entered.
type Profile struct {
	Company  string `json:"company"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// Field names used by booking forms. The prefill surface matches inputs by
// these names.
const (
	FieldCompany  = "company"
	FieldFullName = "fullName"
	FieldPhone    = "phone"
	FieldEmail    = "email"
)

// Fields returns the profile keyed by booking-form input name.
func (p Profile) Fields() map[string]string {
	return map[string]string{
		FieldCompany:  p.Company,
		FieldFullName: p.FullName,
		FieldPhone:    p.Phone,
		FieldEmail:    p.Email,
	}
}

// DisplayName picks the best label for authenticator prompts.
func (p Profile) DisplayName() string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Email != "":
		return p.Email
	case p.Company != "":
		return p.Company
	default:
		return "OmniSign user"
	}
}
