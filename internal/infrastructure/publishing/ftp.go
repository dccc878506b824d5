package publishing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"go.uber.org/zap"
)

const defaultFTPTimeout = 10 * time.Second

// ftpConn is the subset of *ftp.ServerConn used for uploads
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	return ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
}

// FTPPublisher uploads documents over FTP
type FTPPublisher struct {
	timeout time.Duration
	dial    ftpDialer
	logger  *zap.Logger
}

// NewFTPPublisher creates an FTP publisher; a zero timeout means 10s
func NewFTPPublisher(timeout time.Duration, logger *zap.Logger) *FTPPublisher {
	if timeout <= 0 {
		timeout = defaultFTPTimeout
	}
	return &FTPPublisher{
		timeout: timeout,
		dial:    dialFTP,
		logger:  logger,
	}
}

// Publish logs in, moves to cfg.Path (creating it when missing) and stores the document
func (p *FTPPublisher) Publish(ctx context.Context, cfg tenancy.FTPConfig, doc Document) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := cfg.Address()
	conn, err := p.dial(ctx, addr, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("ftp: connect to %s: %w", addr, err)
	}
	defer func() {
		if qerr := conn.Quit(); qerr != nil {
			p.logger.Debug("FTP quit failed", zap.String("host", cfg.Host), zap.Error(qerr))
		}
	}()

	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		return nil, fmt.Errorf("ftp: login as %s: %w", cfg.User, err)
	}

	dir := cfg.Path
	if dir != "" && dir != "/" {
		if err := conn.ChangeDir(dir); err != nil {
			if err := conn.MakeDir(dir); err != nil {
				return nil, fmt.Errorf("ftp: create directory %s: %w", dir, err)
			}
			if err := conn.ChangeDir(dir); err != nil {
				return nil, fmt.Errorf("ftp: change directory %s: %w", dir, err)
			}
		}
	} else {
		dir = "/"
	}

	name := fileName(doc)
	if err := conn.Stor(name, bytes.NewReader(doc.Content)); err != nil {
		return nil, fmt.Errorf("ftp: store %s: %w", name, err)
	}

	location := "ftp://" + cfg.Host + path.Join("/", dir, name)
	p.logger.Info("Published document over FTP",
		zap.String("host", cfg.Host),
		zap.String("file", name),
		zap.Int("bytes", len(doc.Content)))

	return &Result{Location: location}, nil
}
