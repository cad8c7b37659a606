package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bookmarkman/internal/model"
)

const (
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordBytes = 72
)

// ValidatePassword はパスワードポリシーを検証する。
// 8文字以上で、大文字・数字・記号をそれぞれ1文字以上含む必要がある。
func ValidatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return model.NewWeakPasswordError(fmt.Sprintf("%d文字以上必要です", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return model.NewWeakPasswordError(fmt.Sprintf("%dバイト以下にしてください", maxPasswordBytes))
	}

	var hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "大文字")
	}
	if !hasDigit {
		missing = append(missing, "数字")
	}
	if !hasSpecial {
		missing = append(missing, "記号")
	}
	if len(missing) > 0 {
		return model.NewWeakPasswordError(strings.Join(missing, "・") + "が含まれていません")
	}
	return nil
}

// NormalizeEmail はメールアドレスを検証し、前後の空白を除いた値を返す。
// 表示名付きの形式（"Name <a@example.com>"）は受け付けない。
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", model.NewInvalidEmailError()
	}
	return trimmed, nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// comparePassword はハッシュとパスワードを照合する。
// hashが空の場合もダミーハッシュと照合し、ユーザーの有無で応答時間が変わらないようにする。
func comparePassword(hash, password string) bool {
	if hash == "" {
		dummyHashOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
