//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/logger"
)

// openTestDB connects to OCR_TEST_DATABASE_URL, applies migrations and
// empties every table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("OCR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test - OCR_TEST_DATABASE_URL environment variable required")
	}

	ctx := context.Background()
	db, err := Open(ctx, url, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, logger.Discard()))
	_, err = db.ExecContext(ctx, `
		TRUNCATE ocr_tasks, ocr_results, ocr_task_progress, ocr_task_queue, ocr_dead_letters
	`)
	require.NoError(t, err)
	return db
}

func testSpec() domain.TaskSpec {
	return domain.TaskSpec{
		DocumentID: "doc-1",
		FilePath:   "/data/doc-1/scan.pdf",
		Languages:  []string{"en"},
		Priority:   domain.PriorityNormal,
		MaxRetries: 2,
	}
}
