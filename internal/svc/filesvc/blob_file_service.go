package filesvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
	"github.com/mkrupp/homecase-filevault/internal/repo/blob"
	"github.com/mkrupp/homecase-filevault/internal/repo/file"
)

// BlobFileService implements FileService on top of the file ledger and a
// blob repository. The ledger is the source of truth for ownership; blobs
// are only touched after the ownership check passed.
type BlobFileService struct {
	fileRepo file.Repository
	blobRepo blob.Repository
	cfg      FileConfig
	log      logging.Logger
}

var _ FileService = (*BlobFileService)(nil)

// NewBlobFileService creates a new BlobFileService.
func NewBlobFileService(
	fileRepo file.Repository,
	blobRepo blob.Repository,
	cfg FileConfig,
) *BlobFileService {
	return &BlobFileService{
		fileRepo: fileRepo,
		blobRepo: blobRepo,
		cfg:      cfg,
		log:      logging.GetLogger("svc.filesvc.blob_file_service"),
	}
}

// MaxSize implements FileService.MaxSize.
func (fileSvc *BlobFileService) MaxSize() int64 {
	return fileSvc.cfg.MaxSize
}

// Upload implements FileService.Upload.
//
// The blob is written first; the record is created only once the content is
// complete. If the record cannot be created the blob is removed again, so a
// failed upload leaves neither.
func (fileSvc *BlobFileService) Upload(
	ctx context.Context,
	ownerID domain.UserID,
	rawFilename string,
	r io.Reader,
) (record *domain.FileRecord, err error) {
	log := fileSvc.log.With(logging.Group("file", "owner", ownerID, "rawFilename", rawFilename))

	defer func() {
		observe("upload", err)

		if err != nil {
			log.ErrorContext(ctx, "file upload failed", "error", err)
		} else {
			uploadedBytesTotal.Add(float64(record.Size))
			log.DebugContext(ctx, "file uploaded", logging.Group("file", "id", record.ID, "size", record.Size))
		}
	}()

	if strings.TrimSpace(rawFilename) == "" {
		return nil, domain.ErrEmptyFilename
	}

	safeName, err := blob.SanitizeName(rawFilename)
	if err != nil {
		return nil, fmt.Errorf("sanitize name: %w", err)
	}

	storagePath, size, err := fileSvc.blobRepo.Save(ctx, ownerID, safeName, r, fileSvc.cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("save blob: %w", err)
	}

	fileID, err := fileSvc.fileRepo.Create(ctx, safeName, storagePath, ownerID, size)
	if err != nil {
		if delErr := fileSvc.blobRepo.Delete(ctx, storagePath); delErr != nil {
			log.WarnContext(ctx, "orphaned blob after failed record", "error", delErr)
		}

		return nil, fmt.Errorf("create record: %w", err)
	}

	record, err = fileSvc.fileRepo.Get(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	return record, nil
}

// List implements FileService.List.
func (fileSvc *BlobFileService) List(ctx context.Context, ownerID domain.UserID) (records []domain.FileRecord, err error) {
	log := fileSvc.log.With(logging.Group("file", "owner", ownerID))

	defer func() {
		observe("list", err)

		if err != nil {
			log.ErrorContext(ctx, "file list failed", "error", err)
		} else {
			log.DebugContext(ctx, "files listed", "count", len(records))
		}
	}()

	records, err = fileSvc.fileRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	return records, nil
}

// PrepareDownload implements FileService.PrepareDownload.
func (fileSvc *BlobFileService) PrepareDownload(
	ctx context.Context,
	ownerID domain.UserID,
	fileID domain.FileID,
) (download *Download, err error) {
	log := fileSvc.log.With(logging.Group("file", "id", fileID, "owner", ownerID))

	defer func() {
		observe("download", err)

		if err != nil {
			log.ErrorContext(ctx, "file prepare download failed", "error", err)
		} else {
			log.DebugContext(ctx, "file download prepared")
		}
	}()

	return fileSvc.prepare(ctx, ownerID, fileID)
}

// PrepareView implements FileService.PrepareView.
func (fileSvc *BlobFileService) PrepareView(
	ctx context.Context,
	ownerID domain.UserID,
	fileID domain.FileID,
) (view *View, err error) {
	log := fileSvc.log.With(logging.Group("file", "id", fileID, "owner", ownerID))

	defer func() {
		observe("view", err)

		if err != nil {
			log.ErrorContext(ctx, "file prepare view failed", "error", err)
		} else {
			log.DebugContext(ctx, "file view prepared", "mimeType", view.MIMEType)
		}
	}()

	download, err := fileSvc.prepare(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	return &View{
		Download: *download,
		MIMEType: fileSvc.blobRepo.ResolveMIME(ctx, download.StoragePath),
	}, nil
}

// Open implements FileService.Open.
func (fileSvc *BlobFileService) Open(ctx context.Context, download *Download) (*domain.Blob, error) {
	content, err := fileSvc.blobRepo.Open(ctx, download.StoragePath)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return nil, fmt.Errorf("open file %d: %w", download.ID, domain.ErrMissingBlob)
		}

		return nil, fmt.Errorf("open file %d: %w", download.ID, err)
	}

	return content, nil
}

// Delete implements FileService.Delete.
func (fileSvc *BlobFileService) Delete(ctx context.Context, ownerID domain.UserID, fileID domain.FileID) (err error) {
	log := fileSvc.log.With(logging.Group("file", "id", fileID, "owner", ownerID))

	defer func() {
		observe("delete", err)

		if err != nil {
			log.ErrorContext(ctx, "file delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "file deleted")
		}
	}()

	record, err := fileSvc.authorize(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	// an absent blob is logged by the repository and not an error here
	if err := fileSvc.blobRepo.Delete(ctx, record.StoragePath); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}

	if err := fileSvc.fileRepo.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	return nil
}

func (fileSvc *BlobFileService) prepare(
	ctx context.Context,
	ownerID domain.UserID,
	fileID domain.FileID,
) (*Download, error) {
	record, err := fileSvc.authorize(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	exists, err := fileSvc.blobRepo.Exists(ctx, record.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("check blob: %w", err)
	} else if !exists {
		return nil, fmt.Errorf("file %d: %w", fileID, domain.ErrMissingBlob)
	}

	return &Download{
		ID:          record.ID,
		Filename:    record.Filename,
		StoragePath: record.StoragePath,
		Size:        record.Size,
	}, nil
}

// authorize loads the record and checks that ownerID owns it. It never
// touches the blob store.
func (fileSvc *BlobFileService) authorize(
	ctx context.Context,
	ownerID domain.UserID,
	fileID domain.FileID,
) (*domain.FileRecord, error) {
	record, err := fileSvc.fileRepo.Get(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	if record.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: user %d is not owner of file %d", domain.ErrUnauthorized, ownerID, fileID)
	}

	return record, nil
}
