package jobstore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// RunMigrations creates the jobs/job_results tables and their indexes,
// following the teacher's legal_audit.RunMigrations shape: AutoMigrate
// for the base table shape, then raw SQL for indexes GORM tags can't
// express (partial indexes, the job_results uniqueness on job_id is
// already covered by the uniqueIndex tag).
func RunMigrations(db *gorm.DB, log *logger.Logger) error {
	log.Info("running job store migrations")

	if err := db.AutoMigrate(&Job{}, &JobResult{}); err != nil {
		return fmt.Errorf("failed to migrate job store tables: %w", err)
	}

	if err := createIndexes(db, log); err != nil {
		return fmt.Errorf("failed to create job store indexes: %w", err)
	}

	log.Info("job store migrations completed")
	return nil
}

func createIndexes(db *gorm.DB, log *logger.Logger) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);",
		"CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at);",
		"CREATE INDEX IF NOT EXISTS idx_jobs_client_id ON jobs (client_id) WHERE client_id != '';",
		"CREATE INDEX IF NOT EXISTS idx_jobs_status_created_at ON jobs (status, created_at) WHERE status = 'queued';",
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			log.Warn("failed to create index", "sql", stmt, "error", err)
		}
	}
	return nil
}
