package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	api "github.com/maynagashev/filehost/internal/client"
	"github.com/maynagashev/filehost/models"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func passwordFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    flagPassword,
		Aliases: []string{"p"},
		Usage:   "Пароль (если не указан, читается из stdin)",
		EnvVars: []string{"FILEHOST_PASSWORD"},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Зарегистрировать нового пользователя",
		ArgsUsage: "USERNAME",
		Flags:     []cli.Flag{passwordFlag()},
		Action: func(c *cli.Context) error {
			username, err := argString(c, 0, "пользователь")
			if err != nil {
				return err
			}
			pass, err := password(c)
			if err != nil {
				return err
			}
			if err = newClient(c.String(flagServer)).Register(c.Context, username, pass); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Пользователь %s зарегистрирован\n", username)
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Войти и сохранить токен",
		ArgsUsage: "USERNAME",
		Flags:     []cli.Flag{passwordFlag()},
		Action: func(c *cli.Context) error {
			username, err := argString(c, 0, "пользователь")
			if err != nil {
				return err
			}
			pass, err := password(c)
			if err != nil {
				return err
			}
			token, err := newClient(c.String(flagServer)).Login(c.Context, username, pass)
			if err != nil {
				return err
			}
			if err = saveToken(c, token); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Вход выполнен как %s\n", username)
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Отозвать токен и удалить его локально",
		Action: func(c *cli.Context) error {
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			// Просроченный или уже отозванный токен все равно удаляем локально
			if err = client.Logout(c.Context); err != nil && !errors.Is(err, api.ErrAuthorization) {
				return err
			}
			if err = removeToken(c); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "Выход выполнен")
			return nil
		},
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Загрузить файл",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Имя файла на сервере (по умолчанию имя локального файла)"},
		},
		Action: func(c *cli.Context) error {
			path, err := argString(c, 0, "файл")
			if err != nil {
				return err
			}
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("ошибка открытия файла: %w", err)
			}
			defer f.Close()

			name := c.String("name")
			if name == "" {
				name = filepath.Base(path)
			}
			zap.S().Debugf("Загрузка %s как %s", path, name)

			res, err := client.Upload(c.Context, name, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Загружен файл %d\nОтпечаток: %s\n", res.ID, res.Fingerprint)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Показать свои файлы и открытые вам",
		Action: func(c *cli.Context) error {
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			items, err := client.List(c.Context)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(c.App.Writer, "Файлов нет")
				return nil
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tИМЯ\tРАЗМЕР\tДОСТУП\tЗАГРУЖЕН")
			for _, item := range items {
				access := "общий"
				if item.Owned {
					access = "владелец"
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
					item.ID, item.Name, item.SizeBytes, access, item.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Показать сведения о файле",
		ArgsUsage: "ID",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return err
			}
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			a, err := client.Info(c.Context, id)
			if err != nil {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "ID:        %d\n", a.ID)
			fmt.Fprintf(w, "Имя:       %s\n", a.Name)
			fmt.Fprintf(w, "Размер:    %d\n", a.SizeBytes)
			fmt.Fprintf(w, "Отпечаток: %s\n", a.Fingerprint)
			fmt.Fprintf(w, "Загружен:  %s\n", a.CreatedAt.Local().Format(time.DateTime))
			if len(a.SharedWith) > 0 {
				fmt.Fprintf(w, "Доступ:    %v\n", a.SharedWith)
			}
			return nil
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Скачать файл",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Куда сохранить (по умолчанию имя файла на сервере)"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return err
			}
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			d, err := client.Download(c.Context, id)
			if errors.Is(err, api.ErrCorrupted) {
				return cli.Exit("файл на сервере поврежден, скачивание отменено", exitCorrupted)
			}
			if err != nil {
				return err
			}
			defer d.Content.Close()

			dest := c.String("output")
			if dest == "" {
				dest = filepath.Base(d.Filename)
				if dest == "" || dest == "." || dest == string(filepath.Separator) {
					dest = "file_" + strconv.FormatInt(id, 10)
				}
			}
			if err = writeFile(dest, d.Content); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Сохранено в %s\nЦелостность: %s\n", dest, d.Verdict)
			if d.Verdict == models.VerdictCorrupted {
				return cli.Exit("внимание: файл поврежден", exitCorrupted)
			}
			return nil
		},
	}
}

// writeFile пишет во временный файл рядом с dest и переименовывает его после успешной записи.
func writeFile(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".filehost-*")
	if err != nil {
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("ошибка скачивания: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("ошибка записи файла: %w", err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("ошибка сохранения файла: %w", err)
	}
	return nil
}

func shareCommand() *cli.Command {
	return &cli.Command{
		Name:      "share",
		Usage:     "Открыть пользователю доступ на чтение",
		ArgsUsage: "ID USERNAME",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return err
			}
			username, err := argString(c, 1, "пользователь")
			if err != nil {
				return err
			}
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			if err = client.Share(c.Context, id, username); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Файл %d открыт пользователю %s\n", id, username)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Удалить файл",
		ArgsUsage: "ID",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return err
			}
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			if err = client.Delete(c.Context, id); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Файл %d удален\n", id)
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Проверить целостность файла на сервере",
		ArgsUsage: "ID",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return err
			}
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			res, err := client.Verify(c.Context, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Файл %d: %s\n", id, res.Verdict)
			if res.Verdict == models.VerdictCorrupted {
				return cli.Exit("файл поврежден", exitCorrupted)
			}
			return nil
		},
	}
}

func deleteAccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-account",
		Usage: "Удалить учетную запись вместе со всеми файлами",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Подтвердить удаление"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return errors.New("удаление необратимо, повторите команду с флагом --yes")
			}
			client, err := authorizedClient(c)
			if err != nil {
				return err
			}
			if err = client.DeleteAccount(c.Context); err != nil {
				return err
			}
			if err = removeToken(c); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "Учетная запись удалена")
			return nil
		},
	}
}
