package password

import (
	"strings"
	"unicode"
)

// MinLength — минимальная длина пароля в символах.
const MinLength = 8

const specialChars = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"

// Strength — результат проверки пароля политикой сложности.
type Strength struct {
	Valid  bool
	Errors []string
}

// ValidateStrength проверяет длину и наличие классов символов.
// Возвращает все нарушенные правила, а не только первое.
func ValidateStrength(plain string) Strength {
	if plain == "" {
		return Strength{Valid: false, Errors: []string{"Password is required"}}
	}

	var errs []string

	if len([]rune(plain)) < MinLength {
		errs = append(errs, "Password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !hasSpecial {
		errs = append(errs, "Password must contain at least one special character")
	}

	return Strength{Valid: len(errs) == 0, Errors: errs}
}
