package core

import "errors"

// Error kinds surfaced across the boundary API. Wrapped with context via
// fmt.Errorf("...: %w", err) and checked with errors.Is.
var (
	// ErrServerNotFound means an unknown server or rule id was referenced.
	ErrServerNotFound = errors.New("server not found")

	// ErrRuleNotFound means an unknown routing rule id was referenced.
	ErrRuleNotFound = errors.New("routing rule not found")

	// ErrCoreMissing means the proxy-core executable is absent at its
	// expected path. User-actionable; the API layer attaches a
	// remediation hint when surfacing it.
	ErrCoreMissing = errors.New("proxy-core binary not found")

	// ErrSpawnFailed means the proxy-core subprocess could not be started.
	ErrSpawnFailed = errors.New("proxy-core spawn failed")

	// ErrReadinessTimeout means the freshly spawned listeners did not
	// become responsive within the probe deadline. Non-fatal: logged only.
	ErrReadinessTimeout = errors.New("proxy-core readiness timeout")

	// ErrPermissionDenied means an OS proxy command needs elevation and
	// the privilege prompt failed or was cancelled.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRelaunchFailed means a managed application did not reach its
	// target running state within the confirmation window.
	ErrRelaunchFailed = errors.New("application relaunch failed")

	// ErrProtocolUnsupported means the server protocol is unknown at
	// outbound-synthesis time. Fatal: aborts connect.
	ErrProtocolUnsupported = errors.New("unsupported protocol")
)
