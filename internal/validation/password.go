package validation

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	// bcrypt учитывает только первые 72 байта, более длинные пароли отклоняем явно.
	maxPasswordBytes = 72
)

// ValidatePassword проверяет пароль: длина от 8 символов до 72 байт,
// обязательно заглавная и строчная буквы и цифра.
func ValidatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return fmt.Errorf("пароль должен быть не менее %d символов", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("пароль слишком длинный")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "заглавную букву")
	}
	if !hasLower {
		missing = append(missing, "строчную букву")
	}
	if !hasDigit {
		missing = append(missing, "цифру")
	}
	if len(missing) > 0 {
		return fmt.Errorf("пароль должен содержать хотя бы одну %s", strings.Join(missing, ", "))
	}

	return nil
}
