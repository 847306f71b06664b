package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/worker"
	"github.com/google/uuid"
)

// Upload is a PDF submitted directly rather than found in the mailbox
type Upload struct {
	Filename string
	Data     []byte
	Sender   string
}

// Submit creates a job for a manual upload and processes it in the background.
// Oversized or empty uploads are rejected before a job is created.
func (p *Pipeline) Submit(ctx context.Context, extractor Extractor, upload Upload) (domain.Job, error) {
	if len(upload.Data) == 0 {
		return domain.Job{}, fmt.Errorf("uploaded file is empty")
	}
	if int64(len(upload.Data)) > p.maxBytes {
		return domain.Job{}, fmt.Errorf("%w: %.1f MB exceeds the %.0f MB limit",
			domain.ErrAttachmentTooLarge, megabytes(int64(len(upload.Data))), megabytes(p.maxBytes))
	}

	filename := upload.Filename
	if filename == "" {
		filename = "upload.pdf"
	}

	job, _, err := p.store.Create(domain.Source{
		MessageID:  "upload-" + uuid.New().String(),
		Sender:     upload.Sender,
		Subject:    "Manual upload: " + filename,
		ReceivedAt: p.now(),
		Origin:     domain.OriginUpload,
	}, domain.Attachment{Filename: filename, Data: upload.Data})
	if err != nil {
		return domain.Job{}, fmt.Errorf("create upload job: %w", err)
	}

	p.logger.Info("Manual upload accepted",
		slog.String("job_id", job.ID),
		slog.String("filename", filename),
	)

	p.uploads.Start()
	err = p.uploads.Enqueue(ctx, worker.Task{
		JobID: job.ID,
		Run: func(ctx context.Context) error {
			p.Process(ctx, extractor, job)
			return nil
		},
		OnDrop: func(err error) {
			p.fail(p.logger.With(slog.String("job_id", job.ID)), job.ID,
				fmt.Errorf("upload abandoned at shutdown: %w", err))
		},
	})
	if err != nil {
		p.fail(p.logger.With(slog.String("job_id", job.ID)), job.ID, err)
		return domain.Job{}, fmt.Errorf("queue upload: %w", err)
	}

	return job, nil
}
