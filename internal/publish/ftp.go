package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/snowseason/internal/log"
	"github.com/lox/snowseason/internal/metrics"
)

// Conn is the subset of an FTP session the uploader needs.
type Conn interface {
	Login(user, password string) error
	MakeDir(path string) error
	ChangeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// Dialer opens an FTP session to addr.
type Dialer func(ctx context.Context, addr string) (Conn, error)

// Config describes the publish target.
type Config struct {
	Addr      string
	User      string
	Password  string
	RemoteDir string
	Timeout   time.Duration
	// MaxElapsed bounds the total time spent retrying.
	MaxElapsed time.Duration
}

// ErrNoTarget is returned when no server address is configured.
var ErrNoTarget = errors.New("publish: no ftp address configured")

// Uploader copies report artifacts to an FTP server.
type Uploader struct {
	cfg        Config
	dial       Dialer
	newBackOff func() backoff.BackOff
}

func NewUploader(cfg Config) *Uploader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 2 * time.Minute
	}
	u := &Uploader{cfg: cfg}
	u.dial = func(ctx context.Context, addr string) (Conn, error) {
		return ftp.Dial(addr, ftp.DialWithTimeout(u.cfg.Timeout), ftp.DialWithContext(ctx))
	}
	u.newBackOff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = u.cfg.MaxElapsed
		return bo
	}
	return u
}

// UploadDir uploads every regular file directly inside dir. It returns the
// number of files uploaded.
func (u *Uploader) UploadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("publish: read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return u.UploadFiles(ctx, paths)
}

// UploadFiles uploads paths into the remote directory. Connection and
// transfer failures are retried with exponential backoff; files already sent
// are not sent again. Login failures and unreadable local files are not
// retried.
func (u *Uploader) UploadFiles(ctx context.Context, paths []string) (int, error) {
	if u.cfg.Addr == "" {
		return 0, ErrNoTarget
	}
	if len(paths) == 0 {
		return 0, nil
	}

	done := make(map[string]bool, len(paths))
	operation := func() error {
		conn, err := u.dial(ctx, u.cfg.Addr)
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login(u.cfg.User, u.cfg.Password); err != nil {
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}
		if u.cfg.RemoteDir != "" {
			// The directory usually exists already.
			_ = conn.MakeDir(u.cfg.RemoteDir)
			if err := conn.ChangeDir(u.cfg.RemoteDir); err != nil {
				return fmt.Errorf("ftp cwd %s: %w", u.cfg.RemoteDir, err)
			}
		}

		for _, p := range paths {
			if done[p] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			if err := u.stor(conn, p); err != nil {
				return err
			}
			done[p] = true
			metrics.UploadsTotal.WithLabelValues("ok").Inc()
			log.Infof("publish: uploaded %s", path.Join(u.cfg.RemoteDir, filepath.Base(p)))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warnf("publish: %v, retrying in %s", err, wait)
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(u.newBackOff(), ctx), notify)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Add(float64(len(paths) - len(done)))
		return len(done), fmt.Errorf("publish: %w", err)
	}
	return len(done), nil
}

func (u *Uploader) stor(conn Conn, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("open %s: %w", p, err))
	}
	defer f.Close()

	if err := conn.Stor(filepath.Base(p), f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", filepath.Base(p), err)
	}
	return nil
}
