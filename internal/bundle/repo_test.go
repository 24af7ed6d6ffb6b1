package bundle

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepoMock(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Repo{DB: mock}, mock
}

func TestDeleteVariant_GuardedByOpenBundles(t *testing.T) {
	repo, mock := setupRepoMock(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bundle_items").WithArgs("var-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	err := repo.DeleteVariant(context.Background(), "var-1")
	assert.ErrorIs(t, err, ErrVariantInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteVariant_RemovesUnreferenced(t *testing.T) {
	repo, mock := setupRepoMock(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bundle_items").WithArgs("var-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM variants").WithArgs("var-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.DeleteVariant(context.Background(), "var-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteVariant_NotFound(t *testing.T) {
	repo, mock := setupRepoMock(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bundle_items").WithArgs("var-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM variants").WithArgs("var-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.DeleteVariant(context.Background(), "var-1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
