//go:build !darwin

package orchestrator

// nullSampler reports zero connections on platforms without a sampler;
// throughput simply reads as idle.
type nullSampler struct{}

func newAccounting() Accounting { return nullSampler{} }

func (nullSampler) ActiveConnections(socksPort, httpPort uint16) (int, error) {
	return 0, nil
}
