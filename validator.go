package gateway

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

const PasswordMinLength = 8

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	uppercasePattern = regexp.MustCompile(`[A-Z]`)
	lowercasePattern = regexp.MustCompile(`[a-z]`)
	digitPattern     = regexp.MustCompile(`[0-9]`)
	specialPattern   = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]`)
)

// ValidateEmail checks s is a non empty local@domain.tld address.
func ValidateEmail(s string) error {
	err := validation.Validate(s,
		validation.Required.Error("Email is required"),
		validation.Match(emailPattern).Error("Invalid email format"),
	)
	if err == nil {
		return nil
	}

	return goerrors.NewValidation(err.Error(), goerrors.FieldError{
		Field:   "email",
		Message: err.Error(),
	}).WithTextCode(TextCodeInvalidEmail)
}

// PasswordRule names a single password strength requirement.
type PasswordRule string

const (
	PasswordRuleMinLength PasswordRule = "minLength"
	PasswordRuleUppercase PasswordRule = "hasUppercase"
	PasswordRuleLowercase PasswordRule = "hasLowercase"
	PasswordRuleDigit     PasswordRule = "hasNumber"
	PasswordRuleSpecial   PasswordRule = "hasSpecialChar"
)

type passwordRequirement struct {
	rule        PasswordRule
	requirement string
	check       validation.Rule
}

var passwordRequirements = []passwordRequirement{
	{
		rule:        PasswordRuleMinLength,
		requirement: fmt.Sprintf("be at least %d characters long", PasswordMinLength),
		check:       validation.Length(PasswordMinLength, 0),
	},
	{
		rule:        PasswordRuleUppercase,
		requirement: "have at least one uppercase letter",
		check:       validation.Match(uppercasePattern),
	},
	{
		rule:        PasswordRuleLowercase,
		requirement: "have at least one lowercase letter",
		check:       validation.Match(lowercasePattern),
	},
	{
		rule:        PasswordRuleDigit,
		requirement: "have at least one number",
		check:       validation.Match(digitPattern),
	},
	{
		rule:        PasswordRuleSpecial,
		requirement: "have at least one special character",
		check:       validation.Match(specialPattern),
	},
}

// PasswordCheck is the outcome of ValidatePassword. Failed lists every rule
// the password broke, in declaration order.
type PasswordCheck struct {
	Failed []PasswordRule
}

func (c PasswordCheck) Valid() bool {
	return len(c.Failed) == 0
}

func (c PasswordCheck) Has(rule PasswordRule) bool {
	for _, r := range c.Failed {
		if r == rule {
			return true
		}
	}
	return false
}

// Message renders a composite message listing the broken requirements.
func (c PasswordCheck) Message() string {
	var requirements []string
	for _, req := range passwordRequirements {
		if c.Has(req.rule) {
			requirements = append(requirements, req.requirement)
		}
	}

	if len(requirements) == 0 {
		return "Password does not meet security requirements"
	}

	return "Password must " + strings.Join(requirements, ", ")
}

// Err returns nil for a valid password, otherwise a validation error with
// one field error per broken rule.
func (c PasswordCheck) Err() error {
	if c.Valid() {
		return nil
	}

	fields := make([]goerrors.FieldError, 0, len(c.Failed))
	for _, req := range passwordRequirements {
		if c.Has(req.rule) {
			fields = append(fields, goerrors.FieldError{
				Field:   "password",
				Message: req.requirement,
				Value:   string(req.rule),
			})
		}
	}

	return goerrors.NewValidation(c.Message(), fields...).
		WithTextCode(TextCodeWeakPassword)
}

// ValidatePassword evaluates every strength rule independently.
func ValidatePassword(s string) PasswordCheck {
	check := PasswordCheck{}
	for _, req := range passwordRequirements {
		// ozzo rules treat empty values as valid
		if err := validation.Validate(s, validation.Required, req.check); err != nil {
			check.Failed = append(check.Failed, req.rule)
		}
	}
	return check
}
