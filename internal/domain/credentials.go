package domain

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	fieldToken = "token"
	fieldUser  = "user"
)

// Application is a Pushover application identified by its API token.
type Application struct {
	token string
}

func NewApplication(token string) Application {
	return Application{token: token}
}

func (a Application) Token() string { return a.token }

// Sign stamps the application token onto an outgoing form payload.
func (a Application) Sign(form url.Values) {
	form.Set(fieldToken, a.token)
}

func (a Application) String() string {
	return fmt.Sprintf("Application(%s)", mask(a.token))
}

// User is a Pushover recipient identified by its user (or group) key.
type User struct {
	key string
}

func NewUser(key string) User {
	return User{key: key}
}

func (u User) Key() string { return u.key }

// Sign stamps the user key onto an outgoing form payload.
func (u User) Sign(form url.Values) {
	form.Set(fieldUser, u.key)
}

func (u User) String() string {
	return fmt.Sprintf("User(%s)", mask(u.key))
}

// mask keeps the last four characters of a credential for log output.
func mask(secret string) string {
	const visible = 4

	runes := []rune(secret)
	if len(runes) <= visible {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visible) + string(runes[len(runes)-visible:])
}
