package psql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"franklin/internal/domain/entity"
)

// JobRecord is the row layout of franklin_requests.
type JobRecord struct {
	RequestID   string         `gorm:"column:request_id;primaryKey"`
	Status      string         `gorm:"column:status;not null;index"`
	Stage       string         `gorm:"column:stage;not null"`
	Progress    int            `gorm:"column:progress;not null"`
	Message     string         `gorm:"column:message;type:text"`
	Question    string         `gorm:"column:question;type:text;not null"`
	Answer      string         `gorm:"column:answer;type:text"`
	Result      datatypes.JSON `gorm:"column:result"`
	Error       datatypes.JSON `gorm:"column:error"`
	StartTime   time.Time      `gorm:"column:start_time;not null"`
	LastUpdated time.Time      `gorm:"column:last_updated;not null;index"`
	EndTime     *time.Time     `gorm:"column:end_time;index"`
}

func (JobRecord) TableName() string { return "franklin_requests" }

type GormJobRepo struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{DB: db, now: time.Now}
}

// Migrate creates or updates the franklin_requests table.
func (r *GormJobRepo) Migrate() error {
	return r.DB.AutoMigrate(&JobRecord{})
}

func (r *GormJobRepo) Get(ctx context.Context, id string) (*entity.Job, error) {
	var rec JobRecord
	if err := r.DB.WithContext(ctx).First(&rec, "request_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return rec.toJob()
}

func (r *GormJobRepo) Put(ctx context.Context, job *entity.Job) error {
	rec, err := recordFrom(job)
	if err != nil {
		return err
	}
	if err := r.DB.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Merge reads, patches and writes the row inside one transaction. Postgres
// takes a row lock; sqlite serializes writers on its own.
func (r *GormJobRepo) Merge(ctx context.Context, id string, patch entity.JobPatch) (*entity.Job, error) {
	var updated *entity.Job

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var rec JobRecord
		if err := q.First(&rec, "request_id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrJobNotFound
			}
			return err
		}

		job, err := rec.toJob()
		if err != nil {
			return err
		}
		if err := job.Apply(patch, r.now()); err != nil {
			return err
		}

		next, err := recordFrom(job)
		if err != nil {
			return err
		}
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		updated = job
		return nil
	})

	if errors.Is(err, entity.ErrJobNotFound) || errors.Is(err, entity.ErrJobTerminal) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("merge job %s: %w", id, err)
	}
	return updated, nil
}

func (r *GormJobRepo) Delete(ctx context.Context, id string) error {
	if err := r.DB.WithContext(ctx).Delete(&JobRecord{}, "request_id = ?", id).Error; err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (r *GormJobRepo) List(ctx context.Context) ([]*entity.Job, error) {
	var recs []JobRecord
	if err := r.DB.WithContext(ctx).Order("last_updated desc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*entity.Job, 0, len(recs))
	for i := range recs {
		job, err := recs[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func recordFrom(job *entity.Job) (*JobRecord, error) {
	rec := &JobRecord{
		RequestID:   job.ID,
		Status:      string(job.Status),
		Stage:       string(job.Stage),
		Progress:    job.Progress,
		Message:     job.Message,
		Question:    job.Question,
		Answer:      job.Answer,
		StartTime:   job.StartTime,
		LastUpdated: job.LastUpdated,
		EndTime:     job.EndTime,
	}
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result of %s: %w", job.ID, err)
		}
		rec.Result = datatypes.JSON(b)
	}
	if job.Error != nil {
		b, err := json.Marshal(job.Error)
		if err != nil {
			return nil, fmt.Errorf("encode error of %s: %w", job.ID, err)
		}
		rec.Error = datatypes.JSON(b)
	}
	return rec, nil
}

func (rec *JobRecord) toJob() (*entity.Job, error) {
	job := &entity.Job{
		ID:          rec.RequestID,
		Status:      entity.JobStatus(rec.Status),
		Stage:       entity.JobStage(rec.Stage),
		Progress:    rec.Progress,
		Message:     rec.Message,
		Question:    rec.Question,
		Answer:      rec.Answer,
		StartTime:   rec.StartTime,
		LastUpdated: rec.LastUpdated,
		EndTime:     rec.EndTime,
	}
	if len(rec.Result) > 0 && string(rec.Result) != "null" {
		var res entity.JobResult
		if err := json.Unmarshal(rec.Result, &res); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", rec.RequestID, err)
		}
		job.Result = &res
	}
	if len(rec.Error) > 0 && string(rec.Error) != "null" {
		var je entity.JobError
		if err := json.Unmarshal(rec.Error, &je); err != nil {
			return nil, fmt.Errorf("decode error of %s: %w", rec.RequestID, err)
		}
		job.Error = &je
	}
	return job, nil
}
