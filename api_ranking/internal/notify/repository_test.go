package notify

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"frameworks/pkg/testutil"
)

func TestPostgresRepositoryInsert(t *testing.T) {
	db, mock := testutil.NewMockDB(t)

	rec := Record{
		ID:          uuid.New(),
		RecipientID: 12,
		Kind:        KindSpotPromoted,
		ContextKey:  "place:9",
		Title:       "Your post is now a spot",
		CreatedAt:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO lookout.notifications`).
		WithArgs(rec.ID, int64(12), "SPOT_PROMOTED", "place:9", rec.Title, "", "{}", rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPostgresRepository(db).Insert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.ExpectationsMet(t, mock)
}
