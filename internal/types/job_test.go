package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        JobStatus
		stringValue   string
		jsonValue     string
		validForParse bool
		terminal      bool
		active        bool
	}{
		{
			name:          "Pending status",
			status:        JobStatusPending,
			stringValue:   "pending",
			jsonValue:     `"pending"`,
			validForParse: true,
			active:        true,
		},
		{
			name:          "Processing status",
			status:        JobStatusProcessing,
			stringValue:   "processing",
			jsonValue:     `"processing"`,
			validForParse: true,
			active:        true,
		},
		{
			name:          "Rendering status",
			status:        JobStatusRendering,
			stringValue:   "rendering",
			jsonValue:     `"rendering"`,
			validForParse: true,
			active:        true,
		},
		{
			name:          "Completed status",
			status:        JobStatusCompleted,
			stringValue:   "completed",
			jsonValue:     `"completed"`,
			validForParse: true,
			terminal:      true,
		},
		{
			name:          "Failed status",
			status:        JobStatusFailed,
			stringValue:   "failed",
			jsonValue:     `"failed"`,
			validForParse: true,
			terminal:      true,
		},
		{
			name:          "Cancelled status",
			status:        JobStatusCancelled,
			stringValue:   "cancelled",
			jsonValue:     `"cancelled"`,
			validForParse: true,
			terminal:      true,
		},
		{
			name:          "Invalid status",
			stringValue:   "dancing",
			jsonValue:     `"dancing"`,
			validForParse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseJobStatus(tt.stringValue)
			if tt.validForParse {
				require.NoError(t, err)
				assert.Equal(t, tt.status, parsed)
				assert.Equal(t, tt.stringValue, parsed.String())
				assert.Equal(t, tt.terminal, parsed.Terminal())
				assert.Equal(t, tt.active, parsed.Active())

				var unmarshalled JobStatus
				require.NoError(t, json.Unmarshal([]byte(tt.jsonValue), &unmarshalled))
				assert.Equal(t, tt.status, unmarshalled)
			} else {
				assert.Error(t, err)

				var unmarshalled JobStatus
				assert.Error(t, json.Unmarshal([]byte(tt.jsonValue), &unmarshalled))
			}
		})
	}
}

func TestGenerationParamsValidate(t *testing.T) {
	valid := GenerationParams{
		Country:     "US",
		Platform:    "youtube",
		Genre:       "horror",
		ContentType: "story",
	}

	tests := []struct {
		name    string
		mutate  func(p *GenerationParams)
		wantErr string
	}{
		{name: "valid params", mutate: func(_ *GenerationParams) {}},
		{name: "missing country", mutate: func(p *GenerationParams) { p.Country = "" }, wantErr: "country"},
		{name: "missing platform", mutate: func(p *GenerationParams) { p.Platform = "" }, wantErr: "platform"},
		{name: "missing genre", mutate: func(p *GenerationParams) { p.Genre = "" }, wantErr: "genre"},
		{name: "missing content type", mutate: func(p *GenerationParams) { p.ContentType = "" }, wantErr: "content type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, ReasonSequenceValidation, RejectReason(ErrOutOfOrderSequence))
	assert.Equal(t, ReasonStepProgression, RejectReason(ErrBackwardProgression))
	assert.Empty(t, RejectReason(ErrNotFound))
	assert.Empty(t, RejectReason(nil))
}
