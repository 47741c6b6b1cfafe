//go:build !darwin

package sysproxy

import "errors"

var errUnsupported = errors.New("system proxy control not implemented on this platform")

type stubController struct{}

// New returns a controller that reports every operation as unsupported.
func New() Controller {
	return stubController{}
}

func (stubController) EnableGlobal(socksPort, httpPort uint16) error { return errUnsupported }
func (stubController) Disable() error                                { return errUnsupported }
func (stubController) EnablePAC(pacURL string) error                 { return errUnsupported }
func (stubController) Verify(httpPort uint16) error                  { return errUnsupported }
func (stubController) VerifyPAC(pacURL string) error                 { return errUnsupported }
