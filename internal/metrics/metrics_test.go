package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordJobSubmissionIncrementsByRequestKind(t *testing.T) {
	before := testutil.ToFloat64(JobsSubmitted.WithLabelValues("pinned"))
	RecordJobSubmission("pinned")
	after := testutil.ToFloat64(JobsSubmitted.WithLabelValues("pinned"))
	assert.Equal(t, before+1, after)
}

func TestRecordJobFinalizedIncrementsStatusCounter(t *testing.T) {
	before := testutil.ToFloat64(JobsFinalized.WithLabelValues("completed"))
	RecordJobFinalized("completed", 12.5)
	after := testutil.ToFloat64(JobsFinalized.WithLabelValues("completed"))
	assert.Equal(t, before+1, after)
}

func TestRecordArchiveWriteLabelsSuccessAndFailure(t *testing.T) {
	beforeOK := testutil.ToFloat64(ArchiveWrites.WithLabelValues("success"))
	beforeFail := testutil.ToFloat64(ArchiveWrites.WithLabelValues("failure"))

	RecordArchiveWrite(true)
	RecordArchiveWrite(false)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(ArchiveWrites.WithLabelValues("success")))
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(ArchiveWrites.WithLabelValues("failure")))
}

func TestSetClusterGaugesReflectsLatestSnapshot(t *testing.T) {
	SetClusterGauges(3, 2, 4, 5, 10, 40)

	assert.Equal(t, float64(3), testutil.ToFloat64(QueueDepth))
	assert.Equal(t, float64(2), testutil.ToFloat64(RunningJobs))
	assert.Equal(t, float64(4), testutil.ToFloat64(NodesHealthy))
	assert.Equal(t, float64(5), testutil.ToFloat64(NodesRegistered))
	assert.Equal(t, float64(10), testutil.ToFloat64(GPUsAvailable))
	assert.Equal(t, float64(40), testutil.ToFloat64(GPUsTotal))
}
