package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/maynagashev/filehost/internal/authz"
	"github.com/maynagashev/filehost/internal/fingerprint"
	"github.com/maynagashev/filehost/internal/integrity"
	"github.com/maynagashev/filehost/internal/repository"
	"github.com/maynagashev/filehost/internal/storage"
	"github.com/maynagashev/filehost/internal/tracing"
	"github.com/maynagashev/filehost/models"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ArtifactService определяет интерфейс для работы с загруженными файлами.
// Каждая операция получает личность пользователя явно.
type ArtifactService interface {
	Upload(ctx context.Context, identity models.Identity, name string, content io.Reader) (*models.Artifact, error)
	Share(ctx context.Context, identity models.Identity, artifactID int64, granteeUsername string) error
	Delete(ctx context.Context, identity models.Identity, artifactID int64) error
	// Download возвращает содержимое вместе с результатом проверки целостности.
	// Download.Content нужно закрыть.
	Download(ctx context.Context, identity models.Identity, artifactID int64) (*Download, error)
	Info(ctx context.Context, identity models.Identity, artifactID int64) (*models.Artifact, error)
	List(ctx context.Context, identity models.Identity) ([]models.ArtifactListItem, error)
	Verify(ctx context.Context, identity models.Identity, artifactID int64) (*models.VerifyResponse, error)
	OwnerPurger
}

// Download - результат скачивания файла.
type Download struct {
	Artifact *models.Artifact
	Verdict  models.Verdict
	Content  io.ReadCloser
}

// ArtifactConfig задает политику проверки целостности при скачивании.
type ArtifactConfig struct {
	// VerifyOnDownload включает пересчет отпечатка перед отдачей файла.
	VerifyOnDownload bool
	// ServeCorrupted разрешает отдавать файл с несовпавшим отпечатком (с вердиктом corrupted).
	ServeCorrupted bool
	// SpoolDir - каталог временных файлов для проверки; пустой означает os.TempDir().
	SpoolDir string
}

const maxNameLength = 200

var _ ArtifactService = (*artifactService)(nil)

type artifactService struct {
	artifacts repository.ArtifactRepository
	users     repository.UserRepository
	storage   storage.FileStorage
	cfg       ArtifactConfig
}

// NewArtifactService создает новый экземпляр сервиса файлов.
func NewArtifactService(
	artifacts repository.ArtifactRepository,
	users repository.UserRepository,
	fileStorage storage.FileStorage,
	cfg ArtifactConfig,
) ArtifactService {
	return &artifactService{
		artifacts: artifacts,
		users:     users,
		storage:   fileStorage,
		cfg:       cfg,
	}
}

// sanitizeName оставляет от имени файла только последний сегмент без управляющих символов.
func sanitizeName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '/' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: не указано имя файла", ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name, nil
}

// sourceReader запоминает ошибку чтения исходного потока, чтобы отличить ее от ошибок хранилища.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}

// Upload сохраняет содержимое, одновременно вычисляя отпечаток, и только затем создает запись.
// Если запись создать не удалось, сохраненные байты удаляются.
func (s *artifactService) Upload(
	ctx context.Context,
	identity models.Identity,
	name string,
	content io.Reader,
) (_ *models.Artifact, err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.Upload", attribute.Int64("user.id", identity.ID))
	defer func() { end(err) }()

	if identity.IsZero() {
		return nil, fmt.Errorf("%w: не указан владелец", ErrValidation)
	}
	cleanName, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("user_%d/%s_%s", identity.ID, uuid.NewString(), cleanName)
	hasher := fingerprint.NewHasher()
	src := &sourceReader{r: content}

	location, err := s.storage.Store(ctx, key, io.TeeReader(src, hasher))
	if err != nil {
		if src.err != nil {
			zap.S().Warnf("[ArtifactService] Загрузка '%s' пользователем %d прервана: %v", cleanName, identity.ID, src.err)
			return nil, fmt.Errorf("%w: %w", ErrIntegrityComputation, &fingerprint.ComputationError{Err: src.err})
		}
		zap.S().Errorf("[ArtifactService] Ошибка сохранения '%s' пользователя %d: %v", cleanName, identity.ID, err)
		return nil, fmt.Errorf("ошибка сохранения файла: %w", err)
	}

	digest := hasher.Sum()
	record, err := s.artifacts.CreateArtifact(ctx, &models.Artifact{
		OwnerID:     identity.ID,
		Name:        cleanName,
		Location:    location,
		Fingerprint: digest.String(),
		SizeBytes:   hasher.Written(),
	})
	if err != nil {
		s.releaseContent(ctx, location)
		zap.S().Errorf("[ArtifactService] Ошибка создания записи для '%s': %v", location, err)
		return nil, mapRepoError(err, "ошибка создания записи о файле")
	}

	zap.S().Infof("[ArtifactService] Пользователь %d загрузил файл %d (%d байт, отпечаток %s)",
		identity.ID, record.ID, record.SizeBytes, record.Fingerprint)
	return record, nil
}

// authorize загружает запись и проверяет право на действие.
// Отсутствующая запись и запрет различаются здесь, но на границе отдаются одинаково.
func (s *artifactService) authorize(
	ctx context.Context,
	identity models.Identity,
	artifactID int64,
	action authz.Action,
) (*models.Artifact, error) {
	record, err := s.artifacts.GetArtifact(ctx, artifactID)
	if err != nil {
		if errors.Is(err, repository.ErrArtifactNotFound) {
			zap.S().Infof("[ArtifactService] Пользователь %d запросил несуществующий файл %d", identity.ID, artifactID)
		}
		return nil, mapRepoError(err, "ошибка получения записи о файле")
	}
	if !authz.CanAccess(identity, record, action) {
		zap.S().Warnf("[ArtifactService] Пользователю %d запрещено действие '%s' над файлом %d",
			identity.ID, action, artifactID)
		return nil, ErrForbidden
	}
	return record, nil
}

// Share открывает доступ на чтение пользователю с указанным именем.
func (s *artifactService) Share(
	ctx context.Context,
	identity models.Identity,
	artifactID int64,
	granteeUsername string,
) (err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.Share",
		attribute.Int64("user.id", identity.ID), attribute.Int64("artifact.id", artifactID))
	defer func() { end(err) }()

	granteeUsername = strings.TrimSpace(granteeUsername)
	if granteeUsername == "" {
		return fmt.Errorf("%w: не указан получатель", ErrValidation)
	}

	record, err := s.authorize(ctx, identity, artifactID, authz.ActionShare)
	if err != nil {
		return err
	}

	// Имя разрешается в момент запроса: переименование после этого не влияет на выданный доступ
	grantee, err := s.users.GetUserByUsername(ctx, granteeUsername)
	if err != nil {
		return mapRepoError(err, "ошибка поиска получателя")
	}
	if grantee.ID == identity.ID {
		return fmt.Errorf("%w: нельзя открыть доступ самому себе", ErrValidation)
	}

	if err = s.artifacts.AddShare(ctx, record.ID, grantee.ID); err != nil {
		return mapRepoError(err, "ошибка открытия доступа")
	}

	zap.S().Infof("[ArtifactService] Пользователь %d открыл доступ к файлу %d пользователю %d",
		identity.ID, record.ID, grantee.ID)
	return nil
}

// Delete удаляет запись и освобождает содержимое.
func (s *artifactService) Delete(ctx context.Context, identity models.Identity, artifactID int64) (err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.Delete",
		attribute.Int64("user.id", identity.ID), attribute.Int64("artifact.id", artifactID))
	defer func() { end(err) }()

	record, err := s.authorize(ctx, identity, artifactID, authz.ActionDelete)
	if err != nil {
		return err
	}
	if err = s.artifacts.DeleteArtifact(ctx, record.ID, identity.ID); err != nil {
		return mapRepoError(err, "ошибка удаления записи о файле")
	}
	s.releaseContent(ctx, record.Location)

	zap.S().Infof("[ArtifactService] Пользователь %d удалил файл %d", identity.ID, record.ID)
	return nil
}

// releaseContent удаляет содержимое. Ошибка только логируется: запись уже удалена или не создана.
func (s *artifactService) releaseContent(ctx context.Context, location string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), location); err != nil {
		zap.S().Warnf("[ArtifactService] Не удалось освободить содержимое '%s': %v", location, err)
	}
}

// Download проверяет право чтения и, если включено, целостность содержимого до отдачи первого байта.
func (s *artifactService) Download(
	ctx context.Context,
	identity models.Identity,
	artifactID int64,
) (_ *Download, err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.Download",
		attribute.Int64("user.id", identity.ID), attribute.Int64("artifact.id", artifactID))
	defer func() { end(err) }()

	record, err := s.authorize(ctx, identity, artifactID, authz.ActionRead)
	if err != nil {
		return nil, err
	}

	content, err := s.retrieve(ctx, record)
	if err != nil {
		return nil, err
	}
	if !s.cfg.VerifyOnDownload {
		return &Download{Artifact: record, Verdict: models.VerdictUnverified, Content: content}, nil
	}
	defer content.Close()

	spool, verdict, err := s.spoolAndVerify(record, content)
	if err != nil {
		return nil, err
	}
	if verdict == models.VerdictCorrupted {
		zap.S().Errorf("[ArtifactService] Отпечаток файла %d (%s) не совпадает с сохраненным", record.ID, record.Location)
		if !s.cfg.ServeCorrupted {
			_ = spool.Close()
			return nil, ErrIntegrityMismatch
		}
	}

	zap.S().Infof("[ArtifactService] Пользователь %d скачивает файл %d (вердикт: %s)", identity.ID, record.ID, verdict)
	return &Download{Artifact: record, Verdict: verdict, Content: spool}, nil
}

// retrieve открывает содержимое. Отсутствие байт при существующей записи - нарушение целостности.
func (s *artifactService) retrieve(ctx context.Context, record *models.Artifact) (io.ReadCloser, error) {
	content, err := s.storage.Retrieve(ctx, record.Location)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			zap.S().Errorf("[ArtifactService] Содержимое файла %d отсутствует в хранилище (%s)", record.ID, record.Location)
			return nil, fmt.Errorf("%w: содержимое отсутствует", ErrIntegrityMismatch)
		}
		zap.S().Errorf("[ArtifactService] Ошибка чтения файла %d из хранилища: %v", record.ID, err)
		return nil, fmt.Errorf("ошибка чтения файла из хранилища: %w", err)
	}
	return content, nil
}

// spoolFile - временная копия содержимого, удаляемая при закрытии.
type spoolFile struct {
	*os.File
}

func (f spoolFile) Close() error {
	err := f.File.Close()
	if rmErr := os.Remove(f.Name()); rmErr != nil {
		zap.S().Warnf("[ArtifactService] Не удалось удалить временный файл '%s': %v", f.Name(), rmErr)
	}
	return err
}

// spoolAndVerify копирует содержимое во временный файл, одновременно вычисляя отпечаток.
func (s *artifactService) spoolAndVerify(record *models.Artifact, content io.Reader) (io.ReadCloser, models.Verdict, error) {
	stored, err := fingerprint.Parse(record.Fingerprint)
	if err != nil {
		return nil, "", fmt.Errorf("сохраненный отпечаток файла %d некорректен: %w", record.ID, err)
	}

	f, err := os.CreateTemp(s.cfg.SpoolDir, "filehost-download-*")
	if err != nil {
		return nil, "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	spool := spoolFile{File: f}

	hasher := fingerprint.NewHasher()
	src := &sourceReader{r: content}
	if _, err = io.Copy(io.MultiWriter(f, hasher), src); err != nil {
		_ = spool.Close()
		if src.err != nil {
			zap.S().Errorf("[ArtifactService] Ошибка чтения файла %d при проверке: %v", record.ID, src.err)
			return nil, "", fmt.Errorf("%w: %w", ErrIntegrityComputation, &fingerprint.ComputationError{Err: src.err})
		}
		return nil, "", fmt.Errorf("ошибка записи временного файла: %w", err)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		_ = spool.Close()
		return nil, "", fmt.Errorf("ошибка перемотки временного файла: %w", err)
	}

	return spool, integrity.Compare(stored, hasher.Sum()), nil
}

// Info возвращает метаданные файла.
func (s *artifactService) Info(
	ctx context.Context,
	identity models.Identity,
	artifactID int64,
) (_ *models.Artifact, err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.Info",
		attribute.Int64("user.id", identity.ID), attribute.Int64("artifact.id", artifactID))
	defer func() { end(err) }()

	return s.authorize(ctx, identity, artifactID, authz.ActionRead)
}

// List возвращает файлы пользователя и открытые ему, в порядке загрузки.
func (s *artifactService) List(ctx context.Context, identity models.Identity) (_ []models.ArtifactListItem, err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.List", attribute.Int64("user.id", identity.ID))
	defer func() { end(err) }()

	records, err := s.artifacts.ListVisibleTo(ctx, identity.ID)
	if err != nil {
		return nil, mapRepoError(err, "ошибка получения списка файлов")
	}

	items := make([]models.ArtifactListItem, 0, len(records))
	for _, record := range records {
		items = append(items, models.ArtifactListItem{
			Artifact: record,
			Owned:    record.IsOwnedBy(identity.ID),
		})
	}
	zap.S().Debugf("[ArtifactService] Пользователю %d доступно %d файлов", identity.ID, len(items))
	return items, nil
}

// Verify пересчитывает отпечаток хранимого содержимого без отдачи байт.
func (s *artifactService) Verify(
	ctx context.Context,
	identity models.Identity,
	artifactID int64,
) (_ *models.VerifyResponse, err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.Verify",
		attribute.Int64("user.id", identity.ID), attribute.Int64("artifact.id", artifactID))
	defer func() { end(err) }()

	record, err := s.authorize(ctx, identity, artifactID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	result := &models.VerifyResponse{ID: record.ID, Fingerprint: record.Fingerprint}

	content, err := s.retrieve(ctx, record)
	if err != nil {
		if errors.Is(err, ErrIntegrityMismatch) {
			result.Verdict = models.VerdictCorrupted
			return result, nil
		}
		return nil, err
	}
	defer content.Close()

	result.Verdict, err = integrity.Verify(record, content)
	if err != nil {
		if errors.Is(err, fingerprint.ErrComputation) {
			return nil, fmt.Errorf("%w: %w", ErrIntegrityComputation, err)
		}
		return nil, err
	}
	if result.Verdict == models.VerdictCorrupted {
		zap.S().Errorf("[ArtifactService] Проверка файла %d: отпечаток не совпадает с сохраненным", record.ID)
	}
	return result, nil
}

// PurgeOwner удаляет все файлы пользователя и убирает его из чужих списков доступа.
func (s *artifactService) PurgeOwner(ctx context.Context, identity models.Identity) (err error) {
	ctx, end := tracing.Track(ctx, "ArtifactService.PurgeOwner", attribute.Int64("user.id", identity.ID))
	defer func() { end(err) }()

	owned, err := s.artifacts.ListOwnedBy(ctx, identity.ID)
	if err != nil {
		return mapRepoError(err, "ошибка получения файлов пользователя")
	}
	for _, record := range owned {
		err = s.artifacts.DeleteArtifact(ctx, record.ID, identity.ID)
		if err != nil && !errors.Is(err, repository.ErrArtifactNotFound) {
			return mapRepoError(err, "ошибка удаления файла пользователя")
		}
		s.releaseContent(ctx, record.Location)
	}
	if err = s.artifacts.RemoveGrantee(ctx, identity.ID); err != nil {
		return mapRepoError(err, "ошибка удаления доступов пользователя")
	}

	zap.S().Infof("[ArtifactService] Удалено %d файлов пользователя %d", len(owned), identity.ID)
	return nil
}
