package store

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis/v7"
	"github.com/lei/pipeline-trigger/internal/models"
)

func sampleRecord(id string) *models.SubmissionRecord {
	jobName := "projects/p/locations/us-central1/pipelineJobs/beans-1"
	return &models.SubmissionRecord{
		ID:           id,
		PipelineID:   "beans",
		DisplayName:  "beans-run",
		TemplatePath: "https://us-central1-kfp.pkg.dev/p/r/beans/v1",
		JobName:      jobName,
		Response: models.Response{
			StatusCode:     http.StatusOK,
			PipelineStatus: models.PipelineStatusRunning,
			Message:        "Pipeline job beans-run is running.",
			JobName:        &jobName,
		},
		SubmittedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	want := sampleRecord("3f1c2a9e-0000-4000-8000-000000000001")
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.JobName != want.JobName || got.Response.PipelineStatus != models.PipelineStatusRunning {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if got.Response.JobName == nil || *got.Response.JobName != want.JobName {
		t.Errorf("Get() response job name = %v", got.Response.JobName)
	}
	if !got.SubmittedAt.Equal(want.SubmittedAt) {
		t.Errorf("Get() submitted_at = %v, want %v", got.SubmittedAt, want.SubmittedAt)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestRedis(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	store := NewRedisWithClient(client, time.Hour)
	defer store.Close()

	exerciseStore(t, store)

	key := submissionKey("3f1c2a9e-0000-4000-8000-000000000001")
	if !s.Exists(key) {
		t.Errorf("expected key %s in redis", key)
	}
	if ttl := s.TTL(key); ttl != time.Hour {
		t.Errorf("TTL(%s) = %v, want 1h", key, ttl)
	}
}

func TestRedis_CorruptRecord(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer s.Close()

	s.Set(submissionKey("bad"), "{not json")

	store := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}), 0)
	defer store.Close()

	if _, err := store.Get(context.Background(), "bad"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get(bad) error = %v, want decode error", err)
	}
}
