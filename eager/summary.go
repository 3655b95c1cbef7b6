package eager

import "sync/atomic"

// SummaryWriter is the default destination for summaries written by a
// thread.
type SummaryWriter interface {
	Flush() error
	Close() error
}

// SummaryCondition decides at write time whether summaries are recorded.
type SummaryCondition func() bool

// Always is a SummaryCondition that always records.
func Always() bool { return true }

// Never is a SummaryCondition that never records.
func Never() bool { return false }

// summaryState is the per-thread summary configuration.
type summaryState struct {
	writer               SummaryWriter
	recording            SummaryCondition
	distributionStrategy SummaryCondition
	step                 *atomic.Int64
}

// SummaryWriter returns the thread's default summary writer, or nil.
func (th *Thread) SummaryWriter() SummaryWriter { return th.summary.writer }

// SetSummaryWriter sets the thread's default summary writer.
func (th *Thread) SetSummaryWriter(w SummaryWriter) { th.summary.writer = w }

// SummaryRecording returns the thread's recording condition; nil means
// unset.
func (th *Thread) SummaryRecording() SummaryCondition { return th.summary.recording }

// SetSummaryRecording sets the thread's recording condition.
func (th *Thread) SetSummaryRecording(cond SummaryCondition) { th.summary.recording = cond }

// SummaryRecordingDistributionStrategy returns the recording condition
// imposed by a distribution strategy. It defaults to Always.
func (th *Thread) SummaryRecordingDistributionStrategy() SummaryCondition {
	return th.summary.distributionStrategy
}

// SetSummaryRecordingDistributionStrategy sets the distribution strategy
// condition. A nil condition restores Always.
func (th *Thread) SetSummaryRecordingDistributionStrategy(cond SummaryCondition) {
	if cond == nil {
		cond = Always
	}
	th.summary.distributionStrategy = cond
}

// SummaryStep returns the thread's summary step counter, or nil.
func (th *Thread) SummaryStep() *atomic.Int64 { return th.summary.step }

// SetSummaryStep sets the step counter read when summaries are written.
func (th *Thread) SetSummaryStep(step *atomic.Int64) { th.summary.step = step }

// ShouldRecordSummaries reports whether a summary written now would be
// recorded: a writer is set and both the recording and the distribution
// strategy conditions hold. An unset recording condition does not record.
func (th *Thread) ShouldRecordSummaries() bool {
	s := th.summary
	if s.writer == nil || s.recording == nil {
		return false
	}
	return s.recording() && s.distributionStrategy()
}
