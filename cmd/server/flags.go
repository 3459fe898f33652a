package main

import (
	"fmt"

	"github.com/maynagashev/filehost/internal/config"
	"github.com/spf13/pflag"
)

const envConfigPath = "FILEHOST_CONFIG"

// flagValues хранит значения флагов командной строки.
// Флаги, не указанные явно, не перекрывают значения из файла и окружения.
type flagValues struct {
	ConfigPath  string
	Port        string
	CertFile    string
	KeyFile     string
	DatabaseDSN string

	set *pflag.FlagSet
}

// parseFlags разбирает аргументы командной строки (без имени программы).
func parseFlags(args []string, lookupEnv func(string) (string, bool)) (*flagValues, error) {
	fv := &flagValues{}
	fs := pflag.NewFlagSet("filehost-server", pflag.ContinueOnError)

	fs.StringVarP(&fv.ConfigPath, "config", "c", "",
		fmt.Sprintf("Путь к YAML-файлу конфигурации (env: %s)", envConfigPath))
	fs.StringVar(&fv.Port, "port", "", "Порт HTTP(S)-сервера (env: SERVER_PORT)")
	fs.StringVar(&fv.CertFile, "cert-file", "", "Путь к файлу TLS-сертификата (env: SERVER_CERT_FILE)")
	fs.StringVar(&fv.KeyFile, "key-file", "", "Путь к файлу TLS-ключа (env: SERVER_KEY_FILE)")
	fs.StringVar(&fv.DatabaseDSN, "database-dsn", "", "Строка подключения к базе данных (env: DATABASE_DSN)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("ошибка разбора флагов: %w", err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("неожиданные аргументы: %v", fs.Args())
	}

	if !fs.Changed("config") {
		if value, ok := lookupEnv(envConfigPath); ok {
			fv.ConfigPath = value
		}
	}
	fv.set = fs
	return fv, nil
}

// apply переносит явно указанные флаги в конфигурацию.
func (fv *flagValues) apply(cfg *config.Config) {
	if fv.set.Changed("port") {
		cfg.Server.Port = fv.Port
	}
	if fv.set.Changed("cert-file") {
		cfg.Server.CertFile = fv.CertFile
	}
	if fv.set.Changed("key-file") {
		cfg.Server.KeyFile = fv.KeyFile
	}
	if fv.set.Changed("database-dsn") {
		cfg.Database.DSN = fv.DatabaseDSN
	}
}

// loadConfig собирает конфигурацию: значения по умолчанию, файл, окружение, флаги.
func loadConfig(args []string, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	fv, err := parseFlags(args, lookupEnv)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(fv.ConfigPath)
	if err != nil {
		return nil, err
	}
	fv.apply(cfg)
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return cfg, nil
}
