package store

import (
	"context"
	"testing"

	"palmreader/pkg/domain"
)

func TestMemoryStoreEnsureUserIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		id, err := s.EnsureUser(ctx, domain.User{ID: 42, FirstName: "Ann"})
		if err != nil {
			t.Fatalf("ensure user: %v", err)
		}
		if id != 42 {
			t.Fatalf("id = %d, want 42", id)
		}
	}
	if n := len(s.Users()); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}
}

func TestMemoryStoreRejectsOrphans(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.RecordUpload(ctx, domain.Upload{UserID: 1, FileID: "f"}); err == nil {
		t.Fatalf("expected error for upload of unknown user")
	}
	if err := s.RecordReading(ctx, domain.Reading{UserID: 1, UploadID: 99}); err == nil {
		t.Fatalf("expected error for reading of unknown upload")
	}
}
