package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maynagashev/filehost/internal/middleware"
	"github.com/maynagashev/filehost/internal/services"
	"github.com/maynagashev/filehost/models"
	"go.uber.org/zap"
)

// UploadField - имя поля multipart-формы с содержимым файла.
const UploadField = "document"

// DefaultMaxUploadBytes используется, если лимит не задан.
const DefaultMaxUploadBytes int64 = 100 << 20

// ArtifactHandler обрабатывает HTTP-запросы, связанные с файлами.
type ArtifactHandler struct {
	service        services.ArtifactService
	maxUploadBytes int64
}

// NewArtifactHandler создает новый экземпляр ArtifactHandler.
func NewArtifactHandler(s services.ArtifactService, maxUploadBytes int64) *ArtifactHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ArtifactHandler{service: s, maxUploadBytes: maxUploadBytes}
}

// identityOrFail достает личность пользователя, положенную middleware.Authenticator.
func identityOrFail(w http.ResponseWriter, r *http.Request, op string) (models.Identity, bool) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		zap.S().Errorf("[%s] Не удалось получить пользователя из контекста", op)
		http.Error(w, internalBody, http.StatusInternalServerError)
		return models.Identity{}, false
	}
	return identity, true
}

// artifactID разбирает {id} из пути.
func artifactID(w http.ResponseWriter, r *http.Request, op string) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		zap.S().Infof("[%s] Неверный ID файла: %q", op, raw)
		http.Error(w, "Неверный ID файла", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// List возвращает файлы пользователя и открытые ему.
func (h *ArtifactHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "ArtifactHandler:List"
	identity, ok := identityOrFail(w, r, op)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), identity)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, op, http.StatusOK, items)
}

// Upload читает multipart-форму потоком и передает поле document в сервис без буферизации.
func (h *ArtifactHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const op = "ArtifactHandler:Upload"
	identity, ok := identityOrFail(w, r, op)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		zap.S().Infof("[%s] Запрос не является multipart-формой: %v", op, err)
		http.Error(w, "Ожидается multipart/form-data", http.StatusBadRequest)
		return
	}

	for {
		part, partErr := mr.NextPart()
		if errors.Is(partErr, io.EOF) {
			break
		}
		if partErr != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(partErr, &maxBytesErr) {
				writeServiceError(w, op, partErr)
				return
			}
			zap.S().Infof("[%s] Ошибка чтения multipart-формы: %v", op, partErr)
			http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
			return
		}
		if part.FormName() != UploadField {
			_ = part.Close()
			continue
		}

		record, uploadErr := h.service.Upload(r.Context(), identity, part.FileName(), part)
		_ = part.Close()
		if uploadErr != nil {
			writeServiceError(w, op, uploadErr)
			return
		}

		w.Header().Set("Location", "/api/files/"+strconv.FormatInt(record.ID, 10))
		writeJSON(w, op, http.StatusCreated, models.UploadResponse{
			ID:          record.ID,
			Location:    record.Location,
			Fingerprint: record.Fingerprint,
		})
		return
	}

	zap.S().Infof("[%s] В форме нет поля '%s'", op, UploadField)
	http.Error(w, "Не передан файл в поле "+UploadField, http.StatusBadRequest)
}

// Info возвращает метаданные файла.
func (h *ArtifactHandler) Info(w http.ResponseWriter, r *http.Request) {
	const op = "ArtifactHandler:Info"
	identity, ok := identityOrFail(w, r, op)
	if !ok {
		return
	}
	id, ok := artifactID(w, r, op)
	if !ok {
		return
	}

	record, err := h.service.Info(r.Context(), identity, id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, op, http.StatusOK, record)
}

// Download отдает содержимое файла. Результат проверки передается в заголовке X-Integrity-Verdict.
func (h *ArtifactHandler) Download(w http.ResponseWriter, r *http.Request) {
	const op = "ArtifactHandler:Download"
	identity, ok := identityOrFail(w, r, op)
	if !ok {
		return
	}
	id, ok := artifactID(w, r, op)
	if !ok {
		return
	}

	d, err := h.service.Download(r.Context(), identity, id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	defer func() {
		if closeErr := d.Content.Close(); closeErr != nil {
			zap.S().Warnf("[%s] Ошибка закрытия содержимого: %v", op, closeErr)
		}
	}()

	w.Header().Set(HeaderIntegrityVerdict, string(d.Verdict))
	w.Header().Set(HeaderFingerprint, d.Artifact.Fingerprint)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": d.Artifact.Name,
	}))
	if d.Verdict == models.VerdictIntact {
		// Размер известен точно только для проверенного содержимого
		w.Header().Set("Content-Length", strconv.FormatInt(d.Artifact.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, d.Content)
	if err != nil {
		zap.S().Warnf("[%s] Ошибка отправки файла %d пользователю %d: %v", op, id, identity.ID, err)
		return
	}
	zap.S().Infof("[%s] Файл %d отправлен пользователю %d (%d байт)", op, id, identity.ID, written)
}

// Verify пересчитывает отпечаток хранимого файла.
func (h *ArtifactHandler) Verify(w http.ResponseWriter, r *http.Request) {
	const op = "ArtifactHandler:Verify"
	identity, ok := identityOrFail(w, r, op)
	if !ok {
		return
	}
	id, ok := artifactID(w, r, op)
	if !ok {
		return
	}

	res, err := h.service.Verify(r.Context(), identity, id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.Header().Set(HeaderIntegrityVerdict, string(res.Verdict))
	writeJSON(w, op, http.StatusOK, res)
}

// Share открывает доступ к файлу другому пользователю.
func (h *ArtifactHandler) Share(w http.ResponseWriter, r *http.Request) {
	const op = "ArtifactHandler:Share"
	identity, ok := identityOrFail(w, r, op)
	if !ok {
		return
	}
	id, ok := artifactID(w, r, op)
	if !ok {
		return
	}

	var req models.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		zap.S().Infof("[%s] Ошибка декодирования запроса: %v", op, err)
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}

	if err := h.service.Share(r.Context(), identity, id, req.Username); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete удаляет файл.
func (h *ArtifactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	const op = "ArtifactHandler:Delete"
	identity, ok := identityOrFail(w, r, op)
	if !ok {
		return
	}
	id, ok := artifactID(w, r, op)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, id); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
