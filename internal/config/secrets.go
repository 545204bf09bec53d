package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention: when
// name+"_FILE" is set the secret is the trimmed content of that file,
// otherwise it is the value of name. Both unset yields "".
func ResolveSecret(name string) (string, error) {
	fileVar := name + "_FILE"
	path := os.Getenv(fileVar)
	if path == "" {
		return os.Getenv(name), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		// The path is safe to report, the content is not.
		return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileVar, path, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// Credentials is a username and password pair resolved from the
// environment.
type Credentials struct {
	User     string
	Password string
}

// Set reports whether both parts are present.
func (c Credentials) Set() bool {
	return c.User != "" && c.Password != ""
}

// ResolveCredentials resolves userVar and passVar with ResolveSecret.
func ResolveCredentials(userVar, passVar string) (Credentials, error) {
	user, err := ResolveSecret(userVar)
	if err != nil {
		return Credentials{}, err
	}
	pass, err := ResolveSecret(passVar)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{User: user, Password: pass}, nil
}
