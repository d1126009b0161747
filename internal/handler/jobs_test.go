package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/jobs"
)

func TestJobHandler(t *testing.T) {
	s := jobs.NewScheduler(testLogger)
	done := make(chan struct{}, 1)
	require.NoError(t, s.Register("renewal-alerts", "0 0 8 * * *", func(context.Context) error {
		done <- struct{}{}
		return nil
	}))
	h := NewJobHandler(s, testLogger)

	rec := serve(http.MethodGet, "/jobs", "/jobs", h.List, "", uuid.Nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []jobs.Job `json:"data"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "renewal-alerts", list.Data[0].Name)

	rec = serve(http.MethodPost, "/jobs/{name}/run", "/jobs/renewal-alerts/run", h.Run, "", uuid.Nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	<-done
	s.Stop()

	rec = serve(http.MethodPost, "/jobs/{name}/run", "/jobs/nope/run", h.Run, "", uuid.Nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
