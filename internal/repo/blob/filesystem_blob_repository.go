package blob

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"  // registers bmp for image.DecodeConfig
	_ "golang.org/x/image/tiff" // registers tiff for image.DecodeConfig
	_ "golang.org/x/image/webp" // registers webp for image.DecodeConfig

	"github.com/mkrupp/homecase-filevault/internal/domain"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
)

const (
	// MIMETypeDefault is returned when a content type cannot be determined.
	MIMETypeDefault = "application/octet-stream"

	sniffLen = 512
)

// extTypes covers common extensions missing from the mime package's builtin
// table, so results do not depend on the host's mime.types.
//
//nolint:gochecknoglobals
var extTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".zip":  "application/zip",
}

// FileSystemBlobRepositoryConfig holds configuration for the filesystem-based blob repository.
type FileSystemBlobRepositoryConfig struct {
	// Basedir is the root directory for blob storage
	Basedir string `env:"BASEDIR" envDefault:"var/storage/blob"`
}

// FileSystemRepository implements Repository on the local filesystem.
//
// Blobs are laid out as <basedir>/<owner id>/<uuid>-<safe name>. The random
// uuid makes paths unique per upload, so equal names from different users
// (or the same user) never share a path. All access goes through an os.Root,
// which refuses paths that escape the base directory, symlinks included.
type FileSystemRepository struct {
	root *os.Root
	cfg  FileSystemBlobRepositoryConfig
	log  logging.Logger
}

var _ Repository = (*FileSystemRepository)(nil)

// NewFileSystemBlobRepository creates the base directory if needed and opens it as root.
func NewFileSystemBlobRepository(
	ctx context.Context,
	cfg FileSystemBlobRepositoryConfig,
) (_ *FileSystemRepository, err error) {
	log := logging.GetLogger("repo.blob.filesystem_repository").With(
		logging.Group("repo", "basedir", cfg.Basedir),
	)

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "init storage failed", "error", err)
		} else {
			log.DebugContext(ctx, "init storage")
		}
	}()

	if err := os.MkdirAll(cfg.Basedir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	root, err := os.OpenRoot(cfg.Basedir)
	if err != nil {
		return nil, fmt.Errorf("open root: %w", err)
	}

	return &FileSystemRepository{
		root: root,
		cfg:  cfg,
		log:  log,
	}, nil
}

// Close releases the root directory handle.
func (fsRepo *FileSystemRepository) Close() error {
	if err := fsRepo.root.Close(); err != nil {
		return fmt.Errorf("close root: %w", err)
	}

	return nil
}

// Save implements Repository.Save.
//
//nolint:cyclop
func (fsRepo *FileSystemRepository) Save(
	ctx context.Context,
	ownerID domain.UserID,
	safeName string,
	r io.Reader,
	maxSize int64,
) (storagePath string, size int64, err error) {
	if sanitized, err := SanitizeName(safeName); err != nil {
		return "", 0, err
	} else if sanitized != safeName {
		return "", 0, fmt.Errorf("%w: name is not sanitized", domain.ErrInvalidName)
	}

	ownerDir := strconv.FormatInt(int64(ownerID), 10)
	blobPath := path.Join(ownerDir, uuid.NewString()+"-"+safeName)

	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "path", blobPath))
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored", "size", size)
		}
	}()

	if err := fsRepo.root.Mkdir(ownerDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", 0, ioFailure("mkdir", err)
	}

	file, err := fsRepo.root.OpenFile(blobPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", 0, domain.ErrNameCollision
		}

		return "", 0, ioFailure("create", err)
	}

	// from here on a failure must not leave a partial blob behind
	committed := false

	defer func() {
		if !committed {
			_ = file.Close()
			_ = fsRepo.root.Remove(blobPath)
		}
	}()

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}

	size, err = io.Copy(file, src)
	if err != nil {
		return "", 0, ioFailure("write", err)
	}

	if maxSize > 0 && size > maxSize {
		return "", 0, fmt.Errorf("%w: exceeds %d bytes", domain.ErrFileTooLarge, maxSize)
	}

	if err := file.Sync(); err != nil {
		return "", 0, ioFailure("sync", err)
	}

	if err := file.Close(); err != nil {
		return "", 0, ioFailure("close", err)
	}

	committed = true

	return blobPath, size, nil
}

// Open implements Repository.Open.
func (fsRepo *FileSystemRepository) Open(ctx context.Context, storagePath string) (*domain.Blob, error) {
	if err := checkStoragePath(storagePath); err != nil {
		return nil, err
	}

	file, err := fsRepo.root.Open(storagePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrBlobNotFound
		}

		return nil, ioFailure("open", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, ioFailure("stat", err)
	}

	if info.IsDir() {
		_ = file.Close()

		return nil, domain.ErrBlobNotFound
	}

	fsRepo.log.DebugContext(ctx, "blob opened", logging.Group("blob", "path", storagePath, "size", info.Size()))

	return &domain.Blob{
		ReadSeekCloser: file,
		Size:           info.Size(),
		ModTime:        info.ModTime(),
	}, nil
}

// Exists implements Repository.Exists.
func (fsRepo *FileSystemRepository) Exists(_ context.Context, storagePath string) (bool, error) {
	if err := checkStoragePath(storagePath); err != nil {
		return false, err
	}

	info, err := fsRepo.root.Stat(storagePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, ioFailure("stat", err)
	}

	return info.Mode().IsRegular(), nil
}

// Delete implements Repository.Delete.
func (fsRepo *FileSystemRepository) Delete(ctx context.Context, storagePath string) (err error) {
	log := fsRepo.log.With(logging.Group("blob", "path", storagePath))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "blob delete failed", "error", err)
		}
	}()

	if err := checkStoragePath(storagePath); err != nil {
		return err
	}

	if err := fsRepo.root.Remove(storagePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.WarnContext(ctx, "blob already absent")

			return nil
		}

		return ioFailure("remove", err)
	}

	log.DebugContext(ctx, "blob deleted")

	return nil
}

// ResolveMIME implements Repository.ResolveMIME. The file extension is
// consulted first, then the first bytes of the content are sniffed.
func (fsRepo *FileSystemRepository) ResolveMIME(ctx context.Context, storagePath string) string {
	ext := strings.ToLower(path.Ext(storagePath))

	if mimeType, ok := extTypes[ext]; ok {
		return mimeType
	}

	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}

	blob, err := fsRepo.Open(ctx, storagePath)
	if err != nil {
		return MIMETypeDefault
	}
	defer blob.Close()

	return sniffMIME(blob)
}

func sniffMIME(rs io.ReadSeeker) string {
	head := make([]byte, sniffLen)

	n, err := io.ReadFull(rs, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return MIMETypeDefault
	}

	if n == 0 {
		return MIMETypeDefault
	}

	if mimeType := http.DetectContentType(head[:n]); mimeType != MIMETypeDefault {
		return mimeType
	}

	// net/http does not know TIFF; ask the image decoders
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return MIMETypeDefault
	}

	if _, format, err := image.DecodeConfig(rs); err == nil {
		return "image/" + format
	}

	return MIMETypeDefault
}

// checkStoragePath rejects paths that are not local to the root before any
// filesystem access; os.Root enforces the same on access.
func checkStoragePath(storagePath string) error {
	if storagePath == "" || !fs.ValidPath(storagePath) || storagePath == "." {
		return fmt.Errorf("%w: storage path outside root", domain.ErrInvalidName)
	}

	return nil
}

// ioFailure classifies err as ErrIOFailure and strips the path from
// *fs.PathError so storage locations do not leak into error messages.
func ioFailure(op string, err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}

	return fmt.Errorf("%s: %w: %w", op, domain.ErrIOFailure, err)
}
