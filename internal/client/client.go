package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maynagashev/filehost/models"
)

// Client определяет интерфейс для взаимодействия с API сервера filehost.
type Client interface {
	// Register регистрирует нового пользователя.
	Register(ctx context.Context, username, password string) error
	// Login аутентифицирует пользователя, запоминает и возвращает JWT токен.
	Login(ctx context.Context, username, password string) (string, error)
	// Logout отзывает текущий токен на сервере.
	Logout(ctx context.Context) error
	// DeleteAccount удаляет учетную запись вместе с файлами.
	DeleteAccount(ctx context.Context) error
	// List возвращает файлы пользователя и открытые ему.
	List(ctx context.Context) ([]models.ArtifactListItem, error)
	// Upload загружает содержимое под указанным именем.
	Upload(ctx context.Context, name string, content io.Reader) (*models.UploadResponse, error)
	// Info возвращает метаданные файла.
	Info(ctx context.Context, id int64) (*models.Artifact, error)
	// Download скачивает файл. Download.Content нужно закрыть.
	Download(ctx context.Context, id int64) (*Download, error)
	// Verify запрашивает проверку целостности хранимого файла.
	Verify(ctx context.Context, id int64) (*models.VerifyResponse, error)
	// Share открывает доступ к файлу пользователю с указанным именем.
	Share(ctx context.Context, id int64, username string) error
	// Delete удаляет файл.
	Delete(ctx context.Context, id int64) error
	// SetAuthToken устанавливает JWT токен для аутентифицированных запросов.
	SetAuthToken(token string)
}

// Download - скачанный файл и результат проверки целостности на сервере.
type Download struct {
	Filename    string
	Fingerprint string
	Verdict     models.Verdict
	Size        int64 // -1, если сервер не сообщил размер
	Content     io.ReadCloser
}

// Заголовки ответа на скачивание.
const (
	headerIntegrityVerdict = "X-Integrity-Verdict"
	headerFingerprint      = "X-Fingerprint"
	uploadField            = "document"
	maxErrorBody           = 4 << 10
	defaultTimeout         = 30 * time.Second
)

// httpClient реализует интерфейс Client для взаимодействия с сервером по HTTP.
type httpClient struct {
	baseURL    string       // Базовый URL сервера, например "http://localhost:8080"
	httpClient *http.Client // HTTP клиент для выполнения запросов
	authToken  string       // JWT токен для аутентифицированных запросов
}

// NewHTTPClient создает новый экземпляр API клиента.
// Таймаут ограничивает только установку соединения и получение заголовков ответа,
// тело больших файлов читается без ограничения по времени.
func NewHTTPClient(baseURL string) Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = defaultTimeout
	return &httpClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
	}
}

// SetAuthToken устанавливает JWT токен.
func (c *httpClient) SetAuthToken(token string) {
	c.authToken = token
}

// newRequest собирает запрос к пути API. Для auth=true добавляется заголовок Authorization.
func (c *httpClient) newRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	auth bool,
) (*http.Request, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования URL %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса %s %s: %w", method, path, err)
	}
	if auth {
		if c.authToken == "" {
			return nil, ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return req, nil
}

// do выполняет запрос и проверяет код ответа. При успехе тело ответа нужно закрыть.
func (c *httpClient) do(req *http.Request, expected int) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode != expected {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}
	return resp, nil
}

// doJSON отправляет JSON (если in != nil) и декодирует ответ в out (если out != nil).
func (c *httpClient) doJSON(
	ctx context.Context,
	method, path string,
	in any,
	out any,
	expected int,
	auth bool,
) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ошибка кодирования запроса: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body, auth)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req, expected)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка декодирования ответа: %w", err)
	}
	return nil
}

// Register отправляет запрос на регистрацию на сервер.
func (c *httpClient) Register(ctx context.Context, username, password string) error {
	req := models.RegisterRequest{Username: username, Password: password}
	return c.doJSON(ctx, http.MethodPost, "/api/register", req, nil, http.StatusCreated, false)
}

// Login отправляет запрос на вход на сервер и сохраняет токен.
func (c *httpClient) Login(ctx context.Context, username, password string) (string, error) {
	var resp models.LoginResponse
	req := models.LoginRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", req, &resp, http.StatusOK, false); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("сервер вернул пустой токен")
	}
	c.authToken = resp.Token
	return resp.Token, nil
}

// Logout отзывает токен и забывает его.
func (c *httpClient) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/logout", nil, nil, http.StatusNoContent, true); err != nil {
		return err
	}
	c.authToken = ""
	return nil
}

// DeleteAccount удаляет учетную запись и забывает токен.
func (c *httpClient) DeleteAccount(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/account", nil, nil, http.StatusNoContent, true); err != nil {
		return err
	}
	c.authToken = ""
	return nil
}

// List получает список файлов.
func (c *httpClient) List(ctx context.Context) ([]models.ArtifactListItem, error) {
	var items []models.ArtifactListItem
	if err := c.doJSON(ctx, http.MethodGet, "/api/files", nil, &items, http.StatusOK, true); err != nil {
		return nil, err
	}
	return items, nil
}

// Upload передает содержимое multipart-формой потоком, не загружая файл в память.
func (c *httpClient) Upload(ctx context.Context, name string, content io.Reader) (*models.UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(uploadField, name)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/files", pr, true)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req, http.StatusCreated)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	defer resp.Body.Close()

	var result models.UploadResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ошибка декодирования ответа на загрузку: %w", err)
	}
	return &result, nil
}

func filePath(id int64, suffix string) string {
	return "/api/files/" + strconv.FormatInt(id, 10) + suffix
}

// Info получает метаданные файла.
func (c *httpClient) Info(ctx context.Context, id int64) (*models.Artifact, error) {
	var record models.Artifact
	if err := c.doJSON(ctx, http.MethodGet, filePath(id, ""), nil, &record, http.StatusOK, true); err != nil {
		return nil, err
	}
	return &record, nil
}

// Download начинает скачивание файла.
func (c *httpClient) Download(ctx context.Context, id int64) (*Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, filePath(id, "/download"), nil, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}

	d := &Download{
		Fingerprint: resp.Header.Get(headerFingerprint),
		Verdict:     models.Verdict(resp.Header.Get(headerIntegrityVerdict)),
		Size:        resp.ContentLength,
		Content:     resp.Body,
	}
	if _, params, parseErr := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); parseErr == nil {
		d.Filename = params["filename"]
	}
	return d, nil
}

// Verify запрашивает проверку целостности файла.
func (c *httpClient) Verify(ctx context.Context, id int64) (*models.VerifyResponse, error) {
	var res models.VerifyResponse
	if err := c.doJSON(ctx, http.MethodGet, filePath(id, "/verify"), nil, &res, http.StatusOK, true); err != nil {
		return nil, err
	}
	return &res, nil
}

// Share открывает доступ к файлу.
func (c *httpClient) Share(ctx context.Context, id int64, username string) error {
	req := models.ShareRequest{Username: username}
	return c.doJSON(ctx, http.MethodPost, filePath(id, "/share"), req, nil, http.StatusNoContent, true)
}

// Delete удаляет файл.
func (c *httpClient) Delete(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, filePath(id, ""), nil, nil, http.StatusNoContent, true)
}

// StatusError - ответ сервера с неожиданным кодом.
type StatusError struct {
	StatusCode int
	Message    string
	Verdict    models.Verdict
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("сервер вернул статус %d", e.StatusCode)
	}
	return fmt.Sprintf("сервер вернул статус %d: %s", e.StatusCode, e.Message)
}

// Is сопоставляет код ответа с ошибками пакета.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrAuthorization:
		return e.StatusCode == http.StatusUnauthorized
	case ErrAccessDenied:
		return e.StatusCode == http.StatusForbidden
	case ErrCorrupted:
		return e.StatusCode == http.StatusConflict && e.Verdict == models.VerdictCorrupted
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrTooLarge:
		return e.StatusCode == http.StatusRequestEntityTooLarge
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

func responseError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(msg)),
		Verdict:    models.Verdict(resp.Header.Get(headerIntegrityVerdict)),
	}
}

// Ошибки клиента. Проверяются через errors.Is.
var (
	ErrAuthorization = errors.New("ошибка авторизации")
	ErrNotLoggedIn   = errors.New("токен аутентификации отсутствует, выполните вход")
	ErrAccessDenied  = errors.New("доступ запрещен")
	ErrCorrupted     = errors.New("файл на сервере поврежден")
	ErrConflict      = errors.New("конфликт")
	ErrTooLarge      = errors.New("файл превышает допустимый размер")
	ErrRateLimited   = errors.New("слишком много запросов")
)
