package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/longle289/TrustAustralia/models"
	"github.com/longle289/TrustAustralia/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByEmail_CaseInsensitive(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormUserRepository(gormDB)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE LOWER(email) = LOWER($1)`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "created_at"}).
			AddRow(id.String(), "jane@example.com", "Jane", time.Now()))

	user, err := repo.FindByEmail(context.Background(), " Jane@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormUserRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	_, err = repo.FindByEmail(context.Background(), "")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestNotificationLogs(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewNotificationRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "notification_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	orderID := uuid.New()
	entry := &models.NotificationLog{
		OrderID:   &orderID,
		Recipient: "buyer@example.com",
		Type:      models.TypeOrderConfirmation,
		Channel:   models.ChannelEmail,
		Status:    models.NotificationSent,
	}
	require.NoError(t, repo.SaveLog(context.Background(), entry))
	assert.Equal(t, int64(7), entry.ID)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "notification_logs" WHERE order_id = $1 ORDER BY created_at ASC, id ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient", "type", "status", "retry_count"}).
			AddRow(7, "buyer@example.com", models.TypeOrderConfirmation, models.NotificationFailed, 0).
			AddRow(8, "buyer@example.com", models.TypeOrderConfirmation, models.NotificationSent, 1))

	logs, err := repo.ListForOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.NotificationFailed, logs[0].Status)
	assert.Equal(t, 1, logs[1].RetryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
