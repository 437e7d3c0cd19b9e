package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob() Job {
	now := time.Now().UTC().Add(-time.Minute)
	return Job{
		ID:        "job-1",
		Status:    JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStepProgress(t *testing.T) {
	tests := []struct {
		name     string
		step     int
		status   string
		expected int
	}{
		{name: "Step 1 started", step: 1, status: StepStatusStarted, expected: 0},
		{name: "Step 1 completed", step: 1, status: StepStatusCompleted, expected: 12},
		{name: "Step 2 completed", step: 2, status: StepStatusCompleted, expected: 24},
		{name: "Step 4 started", step: 4, status: StepStatusStarted, expected: 36},
		{name: "Step 4 completed", step: 4, status: StepStatusCompleted, expected: 49},
		{name: "Step 7 started", step: 7, status: StepStatusStarted, expected: 73},
		{name: "Step 7 completed", step: 7, status: StepStatusCompleted, expected: 85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StepProgress(tt.step, tt.status))
		})
	}
}

func TestApplyStepEvent_WorkflowWalk(t *testing.T) {
	now := time.Now().UTC()
	job := testJob()

	// Workflow-started sentinel
	job, change, err := ApplyStepEvent(job, StepEvent{
		JobID: job.ID, StepNumber: StepWorkflowStarted, Status: StepStatusStarted, Sequence: 0,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, DeltaWorkflowStarted, change.Type)
	assert.Equal(t, 5, job.Progress)
	assert.Equal(t, JobStatusProcessing, job.Status)

	// Step 1 started
	job, change, err = ApplyStepEvent(job, StepEvent{
		JobID: job.ID, StepNumber: 1, StepName: "Select story", Status: StepStatusStarted, Sequence: 1,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, DeltaStepUpdate, change.Type)
	assert.Equal(t, 5, job.Progress, "step 1 started computes 0, monotonicity keeps 5")
	assert.Equal(t, 1, job.CurrentStepNumber)
	assert.Equal(t, "Select story", job.CurrentStep)

	// Step 1 completed with details
	job, _, err = ApplyStepEvent(job, StepEvent{
		JobID: job.ID, StepNumber: 1, StepName: "Select story", Status: StepStatusCompleted, Sequence: 2,
		Details: map[string]interface{}{"message": "story selected", "duration": 3.5},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 12, job.Progress)
	assert.Equal(t, "story selected", job.StepDetails[1])
	assert.Equal(t, 3.5, job.StepDuration[1])

	// Step 7 completed
	job.LastStepSequence = 13
	job.CurrentStepNumber = 7
	job, _, err = ApplyStepEvent(job, StepEvent{
		JobID: job.ID, StepNumber: 7, StepName: "Assemble scenes", Status: StepStatusCompleted, Sequence: 14,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 85, job.Progress)

	// Workflow-completed sentinel carrying the render id
	job, change, err = ApplyStepEvent(job, StepEvent{
		JobID: job.ID, StepNumber: StepWorkflowCompleted, Status: StepStatusCompleted, Sequence: 15,
		Details: map[string]interface{}{"render_id": "rnd-42"},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, DeltaWorkflowCompleted, change.Type)
	assert.Equal(t, "rnd-42", change.RenderID)
	assert.Equal(t, "rnd-42", job.RenderID)
	assert.Equal(t, JobStatusRendering, job.Status)
	assert.Equal(t, 95, job.Progress)
}

func TestApplyStepEvent_Rejections(t *testing.T) {
	now := time.Now().UTC()

	t.Run("out of order sequence", func(t *testing.T) {
		job := testJob()
		job.LastStepSequence = 5
		_, _, err := ApplyStepEvent(job, StepEvent{
			JobID: job.ID, StepNumber: 2, Status: StepStatusCompleted, Sequence: 3,
		}, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOutOfOrderSequence)
		assert.Equal(t, ReasonSequenceValidation, RejectReason(err))
	})

	t.Run("backward step progression", func(t *testing.T) {
		job := testJob()
		job.CurrentStepNumber = 5
		job.LastStepSequence = 9
		_, _, err := ApplyStepEvent(job, StepEvent{
			JobID: job.ID, StepNumber: 3, Status: StepStatusStarted, Sequence: 10,
		}, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBackwardProgression)
		assert.Equal(t, ReasonStepProgression, RejectReason(err))
	})

	t.Run("equal sequence is accepted", func(t *testing.T) {
		job := testJob()
		job.LastStepSequence = 4
		_, _, err := ApplyStepEvent(job, StepEvent{
			JobID: job.ID, StepNumber: 2, Status: StepStatusCompleted, Sequence: 4,
		}, now)
		assert.NoError(t, err)
	})

	t.Run("completed event for an earlier step is accepted", func(t *testing.T) {
		// Only "started" events assert forward progression; a late
		// completion for a prior step is a legal replay.
		job := testJob()
		job.CurrentStepNumber = 5
		job.LastStepSequence = 9
		_, _, err := ApplyStepEvent(job, StepEvent{
			JobID: job.ID, StepNumber: 4, Status: StepStatusCompleted, Sequence: 10,
		}, now)
		assert.NoError(t, err)
	})
}

func TestApplyStepEvent_TerminalJobIsNoop(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		job := testJob()
		job.Status = status
		job.Progress = 100

		got, change, err := ApplyStepEvent(job, StepEvent{
			JobID: job.ID, StepNumber: 3, Status: StepStatusCompleted, Sequence: 99,
		}, now)
		require.NoError(t, err)
		assert.True(t, change.Noop)
		assert.Equal(t, job, got, "terminal jobs never change")
	}
}

func TestApplyStepEvent_Failure(t *testing.T) {
	now := time.Now().UTC()

	t.Run("error detail fails the job", func(t *testing.T) {
		job := testJob()
		job, change, err := ApplyStepEvent(job, StepEvent{
			JobID: job.ID, StepNumber: 4, StepName: "Generate audio", Status: StepStatusStarted, Sequence: 7,
			Details: map[string]interface{}{"error": "tts provider unavailable"},
		}, now)
		require.NoError(t, err)
		assert.True(t, change.Failed)
		assert.Equal(t, DeltaWorkflowFailed, change.Type)
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, "tts provider unavailable", job.Error)
		require.NotNil(t, job.FailedAt)
	})

	t.Run("failed status without detail fails the job", func(t *testing.T) {
		job := testJob()
		job, change, err := ApplyStepEvent(job, StepEvent{
			JobID: job.ID, StepNumber: 2, StepName: "Write script", Status: StepStatusFailed, Sequence: 3,
		}, now)
		require.NoError(t, err)
		assert.True(t, change.Failed)
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Contains(t, job.Error, "Write script")
	})
}

func TestApplyStepEvent_RenderIDFirstWriterWins(t *testing.T) {
	now := time.Now().UTC()
	job := testJob()
	job.RenderID = "rnd-original"

	job, change, err := ApplyStepEvent(job, StepEvent{
		JobID: job.ID, StepNumber: 6, Status: StepStatusCompleted, Sequence: 12,
		Details: map[string]interface{}{"render_id": "rnd-other"},
	}, now)
	require.NoError(t, err)
	assert.Empty(t, change.RenderID)
	assert.Equal(t, "rnd-original", job.RenderID)
}

func TestApplyStepEvent_DoesNotMutateInput(t *testing.T) {
	now := time.Now().UTC()
	job := testJob()
	job.StepDetails = map[int]string{1: "original"}

	updated, _, err := ApplyStepEvent(job, StepEvent{
		JobID: job.ID, StepNumber: 2, StepName: "Write script", Status: StepStatusCompleted, Sequence: 3,
	}, now)
	require.NoError(t, err)
	assert.Len(t, job.StepDetails, 1, "input job's map is untouched")
	assert.Len(t, updated.StepDetails, 2)
}

func TestApplyRenderStatus(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		status     string
		wantType   string
		wantStatus JobStatus
		wantProg   int
		terminal   bool
	}{
		{name: "planned", status: RenderStatusPlanned, wantType: DeltaRenderPlanned, wantStatus: JobStatusRendering, wantProg: 85},
		{name: "waiting", status: RenderStatusWaiting, wantType: DeltaRenderWaiting, wantStatus: JobStatusRendering, wantProg: 87},
		{name: "transcribing", status: RenderStatusTranscribing, wantType: DeltaRenderCaptioning, wantStatus: JobStatusRendering, wantProg: 88},
		{name: "rendering", status: RenderStatusRendering, wantType: DeltaRenderProgress, wantStatus: JobStatusRendering, wantProg: 90},
		{name: "succeeded", status: RenderStatusSucceeded, wantType: DeltaRenderCompleted, wantStatus: JobStatusCompleted, wantProg: 100, terminal: true},
		{name: "failed", status: RenderStatusFailed, wantType: DeltaRenderFailed, wantStatus: JobStatusFailed, wantProg: 0, terminal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := testJob()
			job.Status = JobStatusRendering
			job.RenderID = "rnd-1"

			got, change, err := ApplyRenderStatus(job, RenderEvent{RenderID: "rnd-1", Status: tt.status, URL: "https://cdn/video.mp4"}, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, change.Type)
			assert.Equal(t, tt.terminal, change.Terminal)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantProg, got.Progress)
			if tt.status == RenderStatusSucceeded {
				assert.Equal(t, "https://cdn/video.mp4", got.VideoURL)
				require.NotNil(t, got.CompletedAt)
			}
		})
	}

	t.Run("unknown status is an error", func(t *testing.T) {
		job := testJob()
		_, _, err := ApplyRenderStatus(job, RenderEvent{Status: "melting"}, now)
		assert.Error(t, err)
	})

	t.Run("terminal job is a noop", func(t *testing.T) {
		job := testJob()
		job.Status = JobStatusCancelled
		got, change, err := ApplyRenderStatus(job, RenderEvent{Status: RenderStatusSucceeded}, now)
		require.NoError(t, err)
		assert.True(t, change.Noop)
		assert.Equal(t, JobStatusCancelled, got.Status)
	})

	t.Run("failed carries the error message", func(t *testing.T) {
		job := testJob()
		got, _, err := ApplyRenderStatus(job, RenderEvent{Status: RenderStatusFailed, Error: "ffmpeg exit 1"}, now)
		require.NoError(t, err)
		assert.Equal(t, "ffmpeg exit 1", got.Error)
	})
}

func TestApplyRenderStatus_ProgressNeverRegresses(t *testing.T) {
	now := time.Now().UTC()
	job := testJob()
	job.Status = JobStatusRendering
	job.Progress = 95

	got, _, err := ApplyRenderStatus(job, RenderEvent{Status: RenderStatusPlanned}, now)
	require.NoError(t, err)
	assert.Equal(t, 95, got.Progress, "late planned event cannot pull progress back")
}
