package storage

import (
	"context"
	"fmt"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader - внешнее хранилище файлов (логотипы команд).
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// TeamLogoKey формирует ключ объекта для логотипа команды.
func TeamLogoKey(teamID int, ext string) string {
	return fmt.Sprintf("teams/%d/logo%s", teamID, ext)
}
