package progressserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"galaxydl/internal/models"
)

func TestSubmitAndGetTaskReachesCompleted(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	done := make(chan struct{})
	resp := s.Submit(func(report func(float64)) error {
		report(0.5)
		close(done)
		return nil
	})
	if resp.Status != "pending" {
		t.Fatalf("Submit response status = %q, want pending", resp.Status)
	}

	<-done

	var st models.TaskStatus
	waitForStatus(t, srv.URL+"/api/tasks/"+resp.TaskID, &st, func(s models.TaskStatus) bool {
		return s.Status == "completed"
	})
	if st.Progress == nil || *st.Progress != 1 {
		t.Fatalf("expected progress 1 on completion, got %+v", st.Progress)
	}
}

func TestSubmitFailurePropagatesError(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp := s.Submit(func(report func(float64)) error {
		return errors.New("boom")
	})

	var st models.TaskStatus
	waitForStatus(t, srv.URL+"/api/tasks/"+resp.TaskID, &st, func(s models.TaskStatus) bool {
		return s.Status == "failed"
	})
	if st.Error == nil || *st.Error != "boom" {
		t.Fatalf("expected error %q, got %+v", "boom", st.Error)
	}
}

func TestGetTaskUnknownIDReturns404(t *testing.T) {
	s := New()
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tasks/does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func waitForStatus(t *testing.T, url string, out *models.TaskStatus, done func(models.TaskStatus) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatal(err)
		}
		var st models.TaskStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			resp.Body.Close()
			t.Fatal(err)
		}
		resp.Body.Close()
		if done(st) {
			*out = st
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for task status")
}
