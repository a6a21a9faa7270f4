package monographs

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestSave_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+monographs\b.*ON\s+CONFLICT\s+\(id\).*WHERE\s+monographs\.user_id\s*=\s*EXCLUDED\.user_id\s*$`
	mock.ExpectExec(q).WithArgs("n1", "u1", true, int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &models.Monograph{ID: "n1", UserID: "u1", SelfDestruct: true, DatePublished: 42})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
}

func TestSave_OwnedByOther(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+monographs`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Save(context.Background(), &models.Monograph{ID: "n1", UserID: "u2"})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
}

func TestGet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,\s*user_id,\s*self_destruct,\s*date_published\s+FROM\s+monographs\s+WHERE\s+id\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "self_destruct", "date_published"}).AddRow("n1", "u1", false, int64(7)))
	mock.ExpectQuery(q).WithArgs("n2").WillReturnError(sql.ErrNoRows)

	got, err := repo.Get(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.UserID != "u1" || got.DatePublished != 7 {
		t.Fatalf("unexpected monograph: %+v", got)
	}

	if _, err := repo.Get(context.Background(), "n2"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^DELETE\s+FROM\s+monographs\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "n1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(context.Background(), "n1"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	if err := r.Save(ctx, &models.Monograph{ID: "n1", UserID: "u1"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := r.Save(ctx, &models.Monograph{ID: "n1", UserID: "u1", SelfDestruct: true}); err != nil {
		t.Fatalf("republish error: %v", err)
	}
	if err := r.Save(ctx, &models.Monograph{ID: "n1", UserID: "u2"}); !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
	got, err := r.Get(ctx, "n1")
	if err != nil || !got.SelfDestruct {
		t.Fatalf("unexpected: %+v, %v", got, err)
	}
	if err := r.Delete(ctx, "n1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := r.Delete(ctx, "n1"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}
