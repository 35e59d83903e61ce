package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
)

func testClient(url string) *Client {
	config := DefaultClientConfig(url)
	config.Logger = logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	return NewClient(config)
}

func TestScoreStudents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/score", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"s001", "s002"}, req.StudentIDs)

		json.NewEncoder(w).Encode(scoreResponse{Scores: []scoreEntry{
			{StudentID: "s001", Positivity: 0.8, Intensity: 0.4, Radicalism: 0.1},
			// s002 unknown to the oracle: absent from the response.
		}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.ScoreStudents(context.Background(), []student.ID{"s001", "s002"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	ind, ok := got["s001"]
	require.True(t, ok)
	assert.InDelta(t, 0.8, ind.Positivity, 0.001)
	assert.InDelta(t, 0.1, ind.Radicalism, 0.001)
}

func TestScoreStudentsBatches(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.StudentIDs), 2)

		var resp scoreResponse
		for _, id := range req.StudentIDs {
			resp.Scores = append(resp.Scores, scoreEntry{StudentID: id, Positivity: 0.5, Intensity: 0.5, Radicalism: 0.5})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	config := DefaultClientConfig(srv.URL)
	config.MaxBatch = 2
	config.Logger = logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	c := NewClient(config)

	got, err := c.ScoreStudents(context.Background(), []student.ID{"s001", "s002", "s003"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 2, requests)
}

func TestScoreStudentsRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(scoreResponse{Scores: []scoreEntry{
			{StudentID: "s001", Positivity: 0.5, Intensity: 0.5, Radicalism: 0.5},
		}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.ScoreStudents(context.Background(), []student.ID{"s001"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, attempts)
}

func TestScoreStudentsDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ScoreStudents(context.Background(), []student.ID{"s001"})
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, 1, attempts)
}

func TestScoreStudentsRejectsOutOfRangeIndicators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Scores: []scoreEntry{
			{StudentID: "s001", Positivity: 1.7, Intensity: 0.5, Radicalism: 0.5},
		}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ScoreStudents(context.Background(), []student.ID{"s001"})
	assert.ErrorIs(t, err, shared.ErrOracleBadResponse)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := c.ScoreStudents(context.Background(), []student.ID{"s001"})
		require.Error(t, err)
	}
	assert.True(t, c.breaker.IsOpen())
}
