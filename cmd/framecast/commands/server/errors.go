package server

import (
	"errors"
	"fmt"
)

var errTokenRequired = errors.New("server.auth.token is required when server.auth.mode is token")

func errUnknownAuthMode(mode string) error {
	return fmt.Errorf("unknown server.auth.mode %q (want none or token)", mode)
}
