package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	api "github.com/maynagashev/filehost/internal/client"
	"github.com/maynagashev/filehost/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagServer    = "server"
	flagTokenFile = "token-file"
	flagVerbose   = "verbose"
	flagPassword  = "password"

	defaultServer = "http://localhost:8080"

	// Код выхода, когда файл на сервере поврежден.
	exitCorrupted = 2
)

// newClient подменяется в тестах.
var newClient = api.NewHTTPClient

func newApp() *cli.App {
	return &cli.App{
		Name:  "filehost",
		Usage: "Загрузка файлов на сервер filehost, совместный доступ и проверка целостности",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagServer,
				Aliases: []string{"s"},
				Value:   defaultServer,
				Usage:   "Адрес сервера",
				EnvVars: []string{"FILEHOST_SERVER"},
			},
			&cli.StringFlag{
				Name:    flagTokenFile,
				Usage:   "Файл для хранения токена (по умолчанию в каталоге конфигурации пользователя)",
				EnvVars: []string{"FILEHOST_TOKEN_FILE"},
			},
			&cli.BoolFlag{
				Name:  flagVerbose,
				Usage: "Подробный вывод в stderr",
			},
		},
		Before: func(c *cli.Context) error {
			level := "warn"
			if c.Bool(flagVerbose) {
				level = "debug"
			}
			_, _, err := logger.New(level, true)
			return err
		},
		Commands: []*cli.Command{
			registerCommand(),
			loginCommand(),
			logoutCommand(),
			uploadCommand(),
			listCommand(),
			infoCommand(),
			downloadCommand(),
			shareCommand(),
			deleteCommand(),
			verifyCommand(),
			deleteAccountCommand(),
		},
		// Код выхода выставляет main, чтобы Run можно было вызывать из тестов
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// tokenPath возвращает путь к файлу токена.
func tokenPath(c *cli.Context) (string, error) {
	if p := c.String(flagTokenFile); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("не удалось определить каталог конфигурации, укажите --%s: %w", flagTokenFile, err)
	}
	return filepath.Join(dir, "filehost", "token"), nil
}

func saveToken(c *cli.Context, token string) error {
	path, err := tokenPath(c)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("ошибка создания каталога для токена: %w", err)
	}
	if err = os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("ошибка сохранения токена: %w", err)
	}
	zap.S().Debugf("Токен сохранен в %s", path)
	return nil
}

func removeToken(c *cli.Context) error {
	path, err := tokenPath(c)
	if err != nil {
		return err
	}
	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления токена: %w", err)
	}
	return nil
}

// authorizedClient создает клиента с сохраненным токеном.
func authorizedClient(c *cli.Context) (api.Client, error) {
	path, err := tokenPath(c)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.New("вы не вошли в систему, выполните 'filehost login'")
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения токена: %w", err)
	}

	client := newClient(c.String(flagServer))
	client.SetAuthToken(strings.TrimSpace(string(data)))
	return client, nil
}

// password берет пароль из флага или читает строку из stdin.
func password(c *cli.Context) (string, error) {
	if p := c.String(flagPassword); p != "" {
		return p, nil
	}
	fmt.Fprint(c.App.ErrWriter, "Пароль: ")
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("ошибка чтения пароля: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("пароль не может быть пустым")
	}
	return line, nil
}

// argID разбирает идентификатор файла из позиционного аргумента.
func argID(c *cli.Context, pos int) (int64, error) {
	raw := c.Args().Get(pos)
	if raw == "" {
		return 0, fmt.Errorf("не указан ID файла, использование: %s", c.Command.ArgsUsage)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("неверный ID файла: %q", raw)
	}
	return id, nil
}

func argString(c *cli.Context, pos int, what string) (string, error) {
	v := c.Args().Get(pos)
	if v == "" {
		return "", fmt.Errorf("не указан %s, использование: %s", what, c.Command.ArgsUsage)
	}
	return v, nil
}
