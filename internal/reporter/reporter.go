package reporter

// Reporter defines the interface for progress reporting.
type Reporter interface {
	RunStarted(info RunInfo)
	StageProgress(update StageProgress)
	EncodingStarted(pass PassInfo)
	EncodingProgress(progress ProgressSnapshot)
	ChunkFinished(result ChunkResult)
	AnalysisSummary(summary AnalysisSummary)
	Warning(message string)
	Error(err ReporterError)
	OperationComplete(message string)
	Verbose(message string)
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) RunStarted(RunInfo)                {}
func (NullReporter) StageProgress(StageProgress)       {}
func (NullReporter) EncodingStarted(PassInfo)          {}
func (NullReporter) EncodingProgress(ProgressSnapshot) {}
func (NullReporter) ChunkFinished(ChunkResult)         {}
func (NullReporter) AnalysisSummary(AnalysisSummary)   {}
func (NullReporter) Warning(string)                    {}
func (NullReporter) Error(ReporterError)               {}
func (NullReporter) OperationComplete(string)          {}
func (NullReporter) Verbose(string)                    {}
