package exec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskerrors "taskpilot/internal/errors"
	"taskpilot/internal/llm"
)

func TestNeedsSearchStrictYesMatch(t *testing.T) {
	cases := []struct {
		output string
		want   bool
	}{
		{"yes", true},
		{"Yes", true},
		{"YES ", true},
		{"  yes\n", true},
		{"Yes please", false},
		{"yes.", false},
		{"", false},
		{"no", false},
		{"maybe", false},
	}
	for _, tc := range cases {
		t.Run("output "+tc.output, func(t *testing.T) {
			classifier := NewClassifier(llm.NewMockClient(llm.MockResponse{Content: tc.output}))
			got, err := classifier.NeedsSearch(context.Background(), "some task")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "model output %q", tc.output)
		})
	}
}

func TestNeedsSearchCachesVerdicts(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: "yes"})
	classifier := NewClassifier(mock)

	for i := 0; i < 3; i++ {
		got, err := classifier.NeedsSearch(context.Background(), "latest AI news")
		require.NoError(t, err)
		assert.True(t, got)
	}
	// Only the first call reaches the model.
	assert.Len(t, mock.Requests, 1)
}

func TestNeedsSearchErrorPropagatesAndIsNotCached(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Err: taskerrors.NewTransientError(errors.New("overloaded"), "Model unavailable.")},
		llm.MockResponse{Content: "yes"},
	)
	classifier := NewClassifier(mock)

	_, err := classifier.NeedsSearch(context.Background(), "latest AI news")
	require.Error(t, err)

	got, err := classifier.NeedsSearch(context.Background(), "latest AI news")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestNeedsSearchEmptyText(t *testing.T) {
	mock := llm.NewMockClient()
	classifier := NewClassifier(mock)

	got, err := classifier.NeedsSearch(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, got)
	assert.Empty(t, mock.Requests)
}
