package core

// Metrics receives counters from the resolvers and orchestrator. The HTTP
// server provides the prometheus-backed implementation.
type Metrics interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	Resolution(outcome string)
	SkipChain(length int)
	CatalogSize(n int)
}

// NopMetrics discards everything; used in tests and when the server is
// disabled.
type NopMetrics struct{}

func (NopMetrics) CacheHit(string)   {}
func (NopMetrics) CacheMiss(string)  {}
func (NopMetrics) Resolution(string) {}
func (NopMetrics) SkipChain(int)     {}
func (NopMetrics) CatalogSize(int)   {}
