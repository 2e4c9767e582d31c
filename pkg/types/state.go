package types

// SecretsState maps service name to its credential key/value pairs.
type SecretsState map[string]map[string]string

// Get returns a secret value, empty when absent.
func (s SecretsState) Get(service, key string) string {
	if svc, ok := s[service]; ok {
		return svc[key]
	}
	return ""
}

// Set stores a secret value, allocating nested maps as needed.
func (s SecretsState) Set(service, key, value string) {
	svc, ok := s[service]
	if !ok {
		svc = make(map[string]string)
		s[service] = svc
	}
	svc[key] = value
}

// ServicesState holds per-service runtime markers that survive between
// converge runs (download client ids, one-shot flags).
type ServicesState map[string]map[string]any

// GetBool reads a boolean marker, false when absent or mistyped.
func (s ServicesState) GetBool(service, key string) bool {
	if svc, ok := s[service]; ok {
		v, _ := svc[key].(bool)
		return v
	}
	return false
}

// Set stores a marker, allocating nested maps as needed.
func (s ServicesState) Set(service, key string, value any) {
	svc, ok := s[service]
	if !ok {
		svc = make(map[string]any)
		s[service] = svc
	}
	svc[key] = value
}

// PipelineItem is one processed torrent in the pipeline ledger.
type PipelineItem struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Pipeline ledger statuses.
const (
	PipelineStatusOK             = "ok"
	PipelineStatusFFmpegFailed   = "ffmpeg_failed"
	PipelineStatusSkippedNoFiles = "skipped_no_files"
)

// PipelineState is the pipeline section of the state store.
type PipelineState struct {
	Processed map[string]PipelineItem `json:"processed"`
}

// IsProcessed reports whether a torrent hash has a ledger entry.
func (p *PipelineState) IsProcessed(hash string) bool {
	_, ok := p.Processed[hash]
	return ok
}

// Mark records a ledger entry for a torrent hash.
func (p *PipelineState) Mark(hash, status string, timestamp int64) {
	if p.Processed == nil {
		p.Processed = make(map[string]PipelineItem)
	}
	p.Processed[hash] = PipelineItem{Status: status, Timestamp: timestamp}
}
