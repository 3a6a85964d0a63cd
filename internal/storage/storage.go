package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotExist возвращается Get, если объекта нет
var ErrNotExist = errors.New("storage: object does not exist")

// Storage - хранилище архивов журнала аудита
type Storage interface {
	// Save записывает объект по ключу, перезаписывая существующий
	Save(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get открывает объект на чтение
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds storage configuration
type Config struct {
	Type      string // local, s3
	BasePath  string // For local storage
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // custom S3 endpoint (minio, r2)
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg)
	case "s3":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
