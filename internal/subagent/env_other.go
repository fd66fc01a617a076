//go:build !unix

package subagent

import (
	"errors"
	"os"
)

// FromEnv is not supported without inherited descriptors.
func FromEnv() (*Channel, error) {
	if os.Getenv(EnvFDs) == "" {
		return nil, nil
	}
	return nil, errors.New("approval channel inheritance is not supported on this platform")
}
