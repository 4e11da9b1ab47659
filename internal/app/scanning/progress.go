package scanning

// Progress is a point-in-time snapshot of the scan for the presentation
// layer. Publishing it on the host's UI execution context is the reporter
// implementation's concern.
type Progress struct {
	Total     int
	Processed int
	Matched   int
	Running   bool
	Completed bool
}

// ProgressReporter receives progress snapshots as the scan loop advances.
type ProgressReporter interface {
	ReportProgress(p Progress)
}

// NoopProgressReporter discards progress updates.
type NoopProgressReporter struct{}

// ReportProgress implements the ProgressReporter interface.
func (NoopProgressReporter) ReportProgress(Progress) {}
