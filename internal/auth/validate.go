package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)
	phonePattern    = regexp.MustCompile(`^[0-9+()\-. ]{3,32}$`)
)

const (
	maxPasswordLength      = 200
	maxLoginUsernameLength = 64
)

type registration struct {
	username string
	password string
	phone    *string
}

func validateRegister(input RegisterInput) (registration, error) {
	problems := make(map[string]string)

	username := strings.TrimSpace(input.Username)
	switch {
	case username == "":
		problems["username"] = "username is required"
	case !usernamePattern.MatchString(username):
		problems["username"] = "username must be 3-32 letters, digits, dots, dashes or underscores"
	}

	checkPassword(input.Password, problems)

	var phone *string
	if value := strings.TrimSpace(input.Phone); value != "" {
		if !phonePattern.MatchString(value) {
			problems["phone"] = "phone number format is invalid"
		} else {
			phone = &value
		}
	}

	if len(problems) > 0 {
		return registration{}, ValidationError{Fields: problems}
	}
	return registration{username: username, password: input.Password, phone: phone}, nil
}

// validateLogin only checks shape. Usernames that could never have been
// registered still go through the lookup so they fail like any other
// unknown name.
func validateLogin(input LoginInput) (LoginInput, error) {
	problems := make(map[string]string)

	username := strings.TrimSpace(input.Username)
	switch {
	case username == "":
		problems["username"] = "username is required"
	case utf8.RuneCountInString(username) > maxLoginUsernameLength:
		problems["username"] = "username is too long"
	}

	checkPassword(input.Password, problems)

	if len(problems) > 0 {
		return LoginInput{}, ValidationError{Fields: problems}
	}
	return LoginInput{Username: username, Password: input.Password}, nil
}

func checkPassword(password string, problems map[string]string) {
	switch {
	case password == "":
		problems["password"] = "password is required"
	case utf8.RuneCountInString(password) > maxPasswordLength:
		problems["password"] = "password is too long"
	}
}
