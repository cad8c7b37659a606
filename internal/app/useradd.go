package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hitoshi/bookmarkman/internal/auth"
	"github.com/hitoshi/bookmarkman/internal/config"
	"github.com/hitoshi/bookmarkman/internal/database"
	"github.com/hitoshi/bookmarkman/internal/repository"
)

// passwordEnv は非対話環境でuseraddにパスワードを渡す環境変数。
const passwordEnv = "BOOKMARKMAN_PASSWORD"

// errNoPasswordSource は端末も環境変数も無い場合のエラー。
var errNoPasswordSource = errors.New("パスワードを入力できません: 端末から実行するか " + passwordEnv + " を設定してください")

// readPassword はパスワードを取得する。テストで差し替える。
var readPassword = readPasswordFromTerminal

// runUseradd はユーザーを作成する。args[0]にメールアドレスを受け取る。
func runUseradd(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: bookmarkman useradd <email>")
	}
	email := args[0]

	password, err := readPassword(os.Stderr)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	authService := auth.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	u, err := authService.CreateUser(ctx, email, password)
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", u.ID),
		slog.String("email", u.Email),
	)
	return nil
}

// readPasswordFromTerminal は環境変数、なければ端末からエコーなしでパスワードを読む。
func readPasswordFromTerminal(prompt io.Writer) (string, error) {
	if p := os.Getenv(passwordEnv); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoPasswordSource
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("パスワードの読み取りに失敗しました: %w", err)
	}

	fmt.Fprint(prompt, "Password (again): ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("パスワードの読み取りに失敗しました: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("パスワードが一致しません")
	}
	return string(first), nil
}
