package store

import (
	"errors"
	"testing"
)

func TestSessionRepository_StartEnd(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess, err := repo.Start("192.168.1.100", "rtsp://192.168.1.100/1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(sess.ID) != 36 {
		t.Errorf("ID = %q, want a UUID", sess.ID)
	}

	got, err := repo.GetByID(sess.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Camera != "192.168.1.100" || got.Source != "rtsp://192.168.1.100/1" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.EndedAt != nil {
		t.Error("new session should be open")
	}

	if err := repo.End(sess.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	got, _ = repo.GetByID(sess.ID)
	if got.EndedAt == nil {
		t.Fatal("ended session should have EndedAt")
	}
	if got.EndedAt.Before(got.StartedAt) {
		t.Errorf("EndedAt %v before StartedAt %v", got.EndedAt, got.StartedAt)
	}

	if err := repo.End(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second End() error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Sessions().GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if err := s.Sessions().End("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("End() error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	list, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() on empty store = %d sessions", len(list))
	}

	first, _ := repo.Start("cam", "0")
	second, _ := repo.Start("cam", "1")

	list, err = repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() = %d sessions, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("List() should be newest first, got %s then %s", list[0].Source, list[1].Source)
	}
}
