//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"
)

// Actor identifies the machine and account a check-in was sent from.
type Actor struct {
	// Hostname is the name of the local machine.
	Hostname string
	// Username is the login of the current user.
	Username string
}

// DetectActor gathers host and user information for the check-in location.
func DetectActor() (Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Actor{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Actor{}, fmt.Errorf("current user: %w", err)
	}

	return Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}

// Location renders the actor as username@hostname.
func (a Actor) Location() string {
	return a.Username + "@" + a.Hostname
}
