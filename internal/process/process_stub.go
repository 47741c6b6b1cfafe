//go:build !darwin

package process

import "errors"

var errUnsupported = errors.New("process identification not implemented on this platform")

func queryProcessPath(pid uint32) (string, error) {
	return "", errUnsupported
}

func listAllPIDs() ([]uint32, error) {
	return nil, errUnsupported
}

func signalTerm(pid uint32) error { return errUnsupported }

func signalKill(pid uint32) error { return errUnsupported }

func alive(pid uint32) bool { return false }
