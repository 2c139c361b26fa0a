package filesvc_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"

	qt "github.com/frankban/quicktest"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	"github.com/mkrupp/homecase-filevault/internal/infra/database"
	"github.com/mkrupp/homecase-filevault/internal/repo/blob"
	"github.com/mkrupp/homecase-filevault/internal/repo/file"
	"github.com/mkrupp/homecase-filevault/internal/repo/user"
	"github.com/mkrupp/homecase-filevault/internal/svc/filesvc"
)

// countingBlobRepository records every filesystem access of the wrapped repository.
type countingBlobRepository struct {
	blob.Repository

	calls atomic.Int64
}

func (r *countingBlobRepository) Open(ctx context.Context, storagePath string) (*domain.Blob, error) {
	r.calls.Add(1)

	return r.Repository.Open(ctx, storagePath) //nolint:wrapcheck
}

func (r *countingBlobRepository) Exists(ctx context.Context, storagePath string) (bool, error) {
	r.calls.Add(1)

	return r.Repository.Exists(ctx, storagePath) //nolint:wrapcheck
}

func (r *countingBlobRepository) Delete(ctx context.Context, storagePath string) error {
	r.calls.Add(1)

	return r.Repository.Delete(ctx, storagePath) //nolint:wrapcheck
}

func (r *countingBlobRepository) ResolveMIME(ctx context.Context, storagePath string) string {
	r.calls.Add(1)

	return r.Repository.ResolveMIME(ctx, storagePath)
}

type fixture struct {
	svc     *filesvc.BlobFileService
	blobs   *countingBlobRepository
	files   *file.SQLiteFileRepository
	basedir string
	alice   domain.UserID
	bob     domain.UserID
}

const testMaxSize = 1024

func setupFileService(c *qt.C) *fixture {
	c.Helper()

	ctx := context.Background()
	dir := c.TempDir()

	db, err := database.Open(ctx, database.SQLiteConfig{
		Path:        filepath.Join(dir, "filevault.db"),
		BusyTimeout: 5000,
	})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	basedir := filepath.Join(dir, "blobs")

	blobRepo, err := blob.NewFileSystemBlobRepository(ctx, blob.FileSystemBlobRepositoryConfig{Basedir: basedir})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = blobRepo.Close() })

	users := user.NewSQLiteUserRepository(db)

	alice, err := users.CreateUser(ctx, "alice", []byte("hash-a"))
	c.Assert(err, qt.IsNil)

	bob, err := users.CreateUser(ctx, "bob", []byte("hash-b"))
	c.Assert(err, qt.IsNil)

	blobs := &countingBlobRepository{Repository: blobRepo}
	files := file.NewSQLiteFileRepository(db)

	return &fixture{
		svc:     filesvc.NewBlobFileService(files, blobs, filesvc.FileConfig{MaxSize: testMaxSize}),
		blobs:   blobs,
		files:   files,
		basedir: basedir,
		alice:   alice,
		bob:     bob,
	}
}

func (fx *fixture) upload(c *qt.C, owner domain.UserID, name, content string) *domain.FileRecord {
	c.Helper()

	record, err := fx.svc.Upload(context.Background(), owner, name, strings.NewReader(content))
	c.Assert(err, qt.IsNil)

	return record
}

func (fx *fixture) read(c *qt.C, owner domain.UserID, id domain.FileID) []byte {
	c.Helper()

	ctx := context.Background()

	download, err := fx.svc.PrepareDownload(ctx, owner, id)
	c.Assert(err, qt.IsNil)

	content, err := fx.svc.Open(ctx, download)
	c.Assert(err, qt.IsNil)

	defer content.Close()

	data, err := io.ReadAll(content)
	c.Assert(err, qt.IsNil)

	return data
}

func (fx *fixture) blobCount(c *qt.C) int {
	c.Helper()

	count := 0

	err := filepath.WalkDir(fx.basedir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}

		return err
	})
	c.Assert(err, qt.IsNil)

	return count
}

func TestBlobFileService_AliceAndBob(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	record := fx.upload(c, fx.alice, "report.txt", "hi")

	aliceFiles, err := fx.svc.List(ctx, fx.alice)
	c.Assert(err, qt.IsNil)
	c.Assert(aliceFiles, qt.HasLen, 1)
	c.Assert(aliceFiles[0].Filename, qt.Equals, "report.txt")
	c.Assert(aliceFiles[0].Size, qt.Equals, int64(2))

	bobFiles, err := fx.svc.List(ctx, fx.bob)
	c.Assert(err, qt.IsNil)
	c.Assert(bobFiles, qt.HasLen, 0)

	_, err = fx.svc.PrepareDownload(ctx, fx.bob, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrUnauthorized)

	_, err = fx.svc.PrepareView(ctx, fx.bob, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrUnauthorized)

	err = fx.svc.Delete(ctx, fx.bob, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrUnauthorized)

	// Bob's attempts changed nothing
	c.Assert(fx.read(c, fx.alice, record.ID), qt.DeepEquals, []byte("hi"))
}

func TestBlobFileService_OwnershipCheckedBeforeFilesystem(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	record := fx.upload(c, fx.alice, "secret.txt", "top secret")
	before := fx.blobs.calls.Load()

	_, err := fx.svc.PrepareDownload(ctx, fx.bob, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrUnauthorized)

	_, err = fx.svc.PrepareView(ctx, fx.bob, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrUnauthorized)

	err = fx.svc.Delete(ctx, fx.bob, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrUnauthorized)

	c.Assert(fx.blobs.calls.Load(), qt.Equals, before)
}

func TestBlobFileService_RoundTrip(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)

	content := string(bytes.Repeat([]byte{0x00, 0xff, 'a', '\n'}, 200))
	record := fx.upload(c, fx.alice, "data.bin", content)

	c.Assert(fx.read(c, fx.alice, record.ID), qt.DeepEquals, []byte(content))
	c.Assert(record.OwnerID, qt.Equals, fx.alice)
	c.Assert(record.CreatedAt > 0, qt.IsTrue)
}

func TestBlobFileService_UploadRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		content  string
		wantErr  error
	}{
		{name: "empty filename", filename: "", content: "x", wantErr: domain.ErrEmptyFilename},
		{name: "blank filename", filename: "   ", content: "x", wantErr: domain.ErrEmptyFilename},
		{name: "nothing left after sanitizing", filename: "../..", content: "x", wantErr: domain.ErrInvalidName},
		{name: "only non-ascii", filename: "日本語", content: "x", wantErr: domain.ErrInvalidName},
		{name: "too large", filename: "big.bin", content: strings.Repeat("x", testMaxSize+1), wantErr: domain.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := qt.New(t)
			fx := setupFileService(c)
			ctx := context.Background()

			_, err := fx.svc.Upload(ctx, fx.alice, tt.filename, strings.NewReader(tt.content))
			c.Assert(err, qt.ErrorIs, tt.wantErr)

			records, err := fx.svc.List(ctx, fx.alice)
			c.Assert(err, qt.IsNil)
			c.Assert(records, qt.HasLen, 0)
			c.Assert(fx.blobCount(c), qt.Equals, 0)
		})
	}
}

func TestBlobFileService_UploadInterruptedLeavesNothing(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	errClientGone := errors.New("client went away")
	body := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errClientGone))

	_, err := fx.svc.Upload(ctx, fx.alice, "interrupted.txt", body)
	c.Assert(err, qt.ErrorIs, domain.ErrIOFailure)
	c.Assert(err, qt.ErrorIs, errClientGone)

	records, err := fx.svc.List(ctx, fx.alice)
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 0)
	c.Assert(fx.blobCount(c), qt.Equals, 0)
}

func TestBlobFileService_UploadAtSizeLimit(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)

	record := fx.upload(c, fx.alice, "exact.bin", strings.Repeat("x", testMaxSize))
	c.Assert(record.Size, qt.Equals, int64(testMaxSize))
}

func TestBlobFileService_UploadUnknownOwnerLeavesNoBlob(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)

	_, err := fx.svc.Upload(context.Background(), 999, "orphan.txt", strings.NewReader("x"))
	c.Assert(err, qt.ErrorIs, file.ErrOwnerNotFound)
	c.Assert(fx.blobCount(c), qt.Equals, 0)
}

func TestBlobFileService_TraversalNameStaysUnderRoot(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)

	record := fx.upload(c, fx.alice, "../../etc/passwd", "root:x:0:0")
	c.Assert(record.Filename, qt.Equals, "etc_passwd")

	stored, err := fx.files.Get(context.Background(), record.ID)
	c.Assert(err, qt.IsNil)

	full, err := filepath.Abs(filepath.Join(fx.basedir, filepath.FromSlash(stored.StoragePath)))
	c.Assert(err, qt.IsNil)

	root, err := filepath.Abs(fx.basedir)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.HasPrefix(full, root+string(filepath.Separator)), qt.IsTrue)

	c.Assert(fx.read(c, fx.alice, record.ID), qt.DeepEquals, []byte("root:x:0:0"))
}

func TestBlobFileService_SameNameDifferentUsers(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)

	aliceRecord := fx.upload(c, fx.alice, "report.txt", "alice's report")
	bobRecord := fx.upload(c, fx.bob, "report.txt", "bob's report")
	againRecord := fx.upload(c, fx.alice, "report.txt", "alice's second report")

	c.Assert(fx.read(c, fx.alice, aliceRecord.ID), qt.DeepEquals, []byte("alice's report"))
	c.Assert(fx.read(c, fx.bob, bobRecord.ID), qt.DeepEquals, []byte("bob's report"))
	c.Assert(fx.read(c, fx.alice, againRecord.ID), qt.DeepEquals, []byte("alice's second report"))

	records, err := fx.svc.List(context.Background(), fx.alice)
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 2)
	c.Assert(records[0].ID, qt.Equals, aliceRecord.ID)
	c.Assert(records[1].ID, qt.Equals, againRecord.ID)
}

func TestBlobFileService_Delete(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	record := fx.upload(c, fx.alice, "gone.txt", "bye")

	c.Assert(fx.svc.Delete(ctx, fx.alice, record.ID), qt.IsNil)

	records, err := fx.svc.List(ctx, fx.alice)
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 0)
	c.Assert(fx.blobCount(c), qt.Equals, 0)

	_, err = fx.svc.PrepareDownload(ctx, fx.alice, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrFileNotFound)

	err = fx.svc.Delete(ctx, fx.alice, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrFileNotFound)
}

func TestBlobFileService_UnknownID(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	_, err := fx.svc.PrepareDownload(ctx, fx.alice, 4242)
	c.Assert(err, qt.ErrorIs, domain.ErrFileNotFound)

	_, err = fx.svc.PrepareView(ctx, fx.bob, 4242)
	c.Assert(err, qt.ErrorIs, domain.ErrFileNotFound)

	err = fx.svc.Delete(ctx, fx.alice, 4242)
	c.Assert(err, qt.ErrorIs, domain.ErrFileNotFound)
}

func TestBlobFileService_ConcurrentDelete(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)

	record := fx.upload(c, fx.alice, "contested.txt", "x")

	const workers = 8

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		notFound  atomic.Int64
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := fx.svc.Delete(context.Background(), fx.alice, record.ID)

			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrFileNotFound):
				notFound.Add(1)
			default:
				t.Errorf("unexpected delete error: %v", err)
			}
		}()
	}

	wg.Wait()

	c.Assert(successes.Load(), qt.Equals, int64(1))
	c.Assert(notFound.Load(), qt.Equals, int64(workers-1))
	c.Assert(fx.blobCount(c), qt.Equals, 0)
}

func TestBlobFileService_ConcurrentUploads(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)

	const workers = 10

	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			owner := fx.alice
			if i%2 == 1 {
				owner = fx.bob
			}

			if _, err := fx.svc.Upload(context.Background(), owner, "same.txt", strings.NewReader("x")); err != nil {
				t.Errorf("upload %d: %v", i, err)
			}
		}()
	}

	wg.Wait()

	aliceFiles, err := fx.svc.List(context.Background(), fx.alice)
	c.Assert(err, qt.IsNil)
	c.Assert(aliceFiles, qt.HasLen, workers/2)

	c.Assert(fx.blobCount(c), qt.Equals, workers)
}

func TestBlobFileService_MissingBlob(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	record := fx.upload(c, fx.alice, "vanishing.txt", "now you see me")

	stored, err := fx.files.Get(ctx, record.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(os.Remove(filepath.Join(fx.basedir, filepath.FromSlash(stored.StoragePath))), qt.IsNil)

	_, err = fx.svc.PrepareDownload(ctx, fx.alice, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrMissingBlob)
	c.Assert(errors.Is(err, domain.ErrFileNotFound), qt.IsFalse)

	_, err = fx.svc.PrepareView(ctx, fx.alice, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrMissingBlob)

	// the owner is still not leaked to others
	_, err = fx.svc.PrepareDownload(ctx, fx.bob, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrUnauthorized)

	// listing only reads the ledger
	records, err := fx.svc.List(ctx, fx.alice)
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 1)

	// delete tolerates the missing blob and still removes the record
	c.Assert(fx.svc.Delete(ctx, fx.alice, record.ID), qt.IsNil)

	_, err = fx.svc.PrepareDownload(ctx, fx.alice, record.ID)
	c.Assert(err, qt.ErrorIs, domain.ErrFileNotFound)
}

func TestBlobFileService_OpenAfterBlobVanished(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	record := fx.upload(c, fx.alice, "race.txt", "x")

	download, err := fx.svc.PrepareDownload(ctx, fx.alice, record.ID)
	c.Assert(err, qt.IsNil)

	c.Assert(os.Remove(filepath.Join(fx.basedir, filepath.FromSlash(download.StoragePath))), qt.IsNil)

	_, err = fx.svc.Open(ctx, download)
	c.Assert(err, qt.ErrorIs, domain.ErrMissingBlob)
	c.Assert(strings.Contains(err.Error(), fx.basedir), qt.IsFalse)
}

func TestBlobFileService_PrepareView(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupFileService(c)
	ctx := context.Background()

	tests := []struct {
		filename string
		content  string
		want     string
	}{
		{filename: "pic.png", content: "\x89PNG\r\n\x1a\n", want: "image/png"},
		{filename: "doc.pdf", content: "%PDF-1.4", want: "application/pdf"},
		{filename: "notes", content: "plain words", want: "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		record := fx.upload(c, fx.alice, tt.filename, tt.content)

		view, err := fx.svc.PrepareView(ctx, fx.alice, record.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(view.MIMEType, qt.Equals, tt.want, qt.Commentf("%s", tt.filename))
		c.Assert(view.Filename, qt.Equals, tt.filename)
	}
}
