// Package integrity сверяет содержимое файла с сохраненным отпечатком.
package integrity

import (
	"fmt"
	"io"

	"github.com/maynagashev/filehost/internal/fingerprint"
	"github.com/maynagashev/filehost/models"
)

// Verify пересчитывает отпечаток retrieved и сравнивает его с record.Fingerprint.
// Запись не изменяется. Ошибка возвращается только если не удалось прочитать поток
// или сохраненный отпечаток поврежден.
func Verify(record *models.Artifact, retrieved io.Reader) (models.Verdict, error) {
	stored, err := fingerprint.Parse(record.Fingerprint)
	if err != nil {
		return "", fmt.Errorf("сохраненный отпечаток файла %d некорректен: %w", record.ID, err)
	}
	actual, err := fingerprint.Compute(retrieved)
	if err != nil {
		return "", err
	}
	return Compare(stored, actual), nil
}

// Compare сравнивает два отпечатка.
func Compare(stored, actual fingerprint.Digest) models.Verdict {
	if stored != actual {
		return models.VerdictCorrupted
	}
	return models.VerdictIntact
}
