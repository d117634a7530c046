// Package blob implements the large-payload spillover side channel
// (component A): Upload/Read/Delete against a local folder, fronted by
// gin HTTP handlers, used whenever a response exceeds the direct-data
// size threshold.
//
// The default backing store is a local folder - grounded on the
// distilled spec's own note that "the default implementation is a
// local folder" - with HTTP route wiring adapted from the teacher's
// cmd/main.go route-group idiom (gin.RouterGroup per concern, handlers
// living in their owning package rather than in main).
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hubfabric/hubd/internal/huberrors"
	"github.com/hubfabric/hubd/internal/logger"
)

// Config controls the blob store.
type Config struct {
	// Dir is the on-disk folder backing the whole store (every folder
	// ever passed to Upload lives under it). Created if absent. This is
	// an implementation detail of the local-folder backend, distinct
	// from TempFolder below.
	Dir string
	// TempFolder is the logical folder name the executor's spillover
	// uploads use (component I's size decision). AutoDeleteTempFiles
	// only applies to reads of blobs under this folder - a blob
	// uploaded by a caller through some other folder via the general
	// HTTP upload surface is never auto-deleted on read.
	TempFolder string
	// AutoDeleteTempFiles removes a blob under TempFolder immediately
	// after its first successful Read, matching the spec's read-once
	// cleanup policy.
	AutoDeleteTempFiles bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{Dir: "./data/blobs", TempFolder: "signalr-temp", AutoDeleteTempFiles: true}
}

// Store is the local-folder blob side channel.
type Store struct {
	cfg Config
	mu  sync.Mutex // not locked by any method; concurrent read-once deletes of one path tolerate os.ErrNotExist instead
}

// New constructs a Store, creating Dir if it does not exist.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: creating store dir: %w", err)
	}
	return &Store{cfg: cfg}, nil
}

// resolvedPath maps an opaque blob path to its on-disk location,
// rejecting any attempt to escape Dir via path traversal.
func (s *Store) resolvedPath(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(s.cfg.Dir, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.cfg.Dir)+string(os.PathSeparator)) && full != filepath.Clean(s.cfg.Dir) {
		return "", huberrors.ClientError("blob path escapes store root")
	}
	return full, nil
}

// Upload writes data under folder and returns the opaque path the
// HTTP upload surface embeds in its response.
func (s *Store) Upload(ctx context.Context, folder string, data io.Reader) (string, error) {
	return s.uploadNamed(folder, uuid.NewString(), data)
}

// UploadNamed writes data under folder with a name derived from
// namePrefix and a fresh token (`<namePrefix>_<token>.json`), matching
// the executor's spillover naming convention, and returns the opaque
// path embedded in a Blob response envelope.
func (s *Store) UploadNamed(ctx context.Context, folder, namePrefix string, data io.Reader) (string, error) {
	return s.uploadNamed(folder, fmt.Sprintf("%s_%s.json", namePrefix, uuid.NewString()), data)
}

func (s *Store) uploadNamed(folder, name string, data io.Reader) (string, error) {
	relPath := filepath.Join(folder, name)
	full, err := s.resolvedPath(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("blob: creating folder: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("blob: creating file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("blob: writing file: %w", err)
	}
	return relPath, nil
}

// Read opens path for reading. If AutoDeleteTempFiles is set and path
// lies under TempFolder (every path, when TempFolder is empty), the file
// is unlinked once the returned ReadCloser is closed - readers still see
// a consistent stream since the inode stays alive until every fd using
// it is released (the teacher's upload handlers rely on the same POSIX
// unlink-after-open idiom for scratch files).
func (s *Store) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolvedPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, huberrors.BlobMissing(path)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: opening file: %w", err)
	}
	if s.cfg.AutoDeleteTempFiles && s.underTempFolder(path) {
		return &autoDeleteReader{f: f, fullPath: full}, nil
	}
	return f, nil
}

// underTempFolder reports whether path's leading folder component
// matches the configured TempFolder, scoping read-once cleanup to
// spillover blobs only.
func (s *Store) underTempFolder(path string) bool {
	if s.cfg.TempFolder == "" {
		return true
	}
	clean := strings.TrimPrefix(filepath.Clean("/"+path), "/")
	top := strings.SplitN(clean, string(os.PathSeparator), 2)[0]
	return top == s.cfg.TempFolder
}

// Delete removes path. Missing files are not an error: delete is
// idempotent, mirroring the registry's idempotent-close posture.
func (s *Store) Delete(ctx context.Context, path string) error {
	full, err := s.resolvedPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: deleting file: %w", err)
	}
	return nil
}

type autoDeleteReader struct {
	f        *os.File
	fullPath string
}

func (r *autoDeleteReader) Read(p []byte) (int, error) { return r.f.Read(p) }

func (r *autoDeleteReader) Close() error {
	cerr := r.f.Close()
	if rerr := os.Remove(r.fullPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		logger.Blob().Warn().Err(rerr).Str("path", r.fullPath).Msg("failed to auto-delete blob after read")
	}
	return cerr
}

// RegisterRoutes wires the blob HTTP surface onto group, matching the
// teacher's pattern of handlers owned by their package rather than main.
// Callers apply the JWT auth guard to group before calling this.
func RegisterRoutes(group *gin.RouterGroup, store *Store) {
	group.POST("/upload/:folder", func(c *gin.Context) {
		folder := c.Param("folder")
		file, err := c.FormFile("file")
		if err != nil {
			huberrors.AbortWithError(c, huberrors.ClientError("missing \"file\" form field"))
			return
		}
		src, err := file.Open()
		if err != nil {
			huberrors.AbortWithError(c, huberrors.ClientError("could not open uploaded file"))
			return
		}
		defer src.Close()

		path, err := store.Upload(c.Request.Context(), folder, src)
		if err != nil {
			huberrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"path": path})
	})

	group.GET("/upload/*path", func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("path"), "/")
		rc, err := store.Read(c.Request.Context(), path)
		if err != nil {
			huberrors.HandleError(c, err)
			return
		}
		defer rc.Close()
		c.Status(http.StatusOK)
		c.Header("Content-Type", "application/octet-stream")
		io.Copy(c.Writer, rc)
	})

	group.DELETE("/upload", func(c *gin.Context) {
		path := c.Query("path")
		if path == "" {
			huberrors.AbortWithError(c, huberrors.ClientError("missing path query parameter"))
			return
		}
		if err := store.Delete(c.Request.Context(), path); err != nil {
			huberrors.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
