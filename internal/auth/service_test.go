package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bookmarkman/internal/model"
	"github.com/hitoshi/bookmarkman/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error {
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func newTestService(users *mockUserRepo, sessions *mockSessionRepo) *Service {
	return NewService(users, sessions, ServiceConfig{SessionMaxAge: 3600, BcryptCost: bcrypt.MinCost})
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

func TestSignup_CreatesUserAndSession(t *testing.T) {
	var createdUser *model.User
	var createdSession *model.Session

	svc := newTestService(
		&mockUserRepo{createFn: func(_ context.Context, u *model.User) error {
			createdUser = u
			return nil
		}},
		&mockSessionRepo{createFn: func(_ context.Context, s *model.Session) error {
			createdSession = s
			return nil
		}},
	)

	user, session, err := svc.Signup(context.Background(), " alice@example.com ", "Passw0rd!")
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}

	if createdUser == nil || createdSession == nil {
		t.Fatal("user and session should be persisted")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email = %q, want trimmed address", user.Email)
	}
	if user.PasswordHash == "Passw0rd!" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Passw0rd!")) != nil {
		t.Error("password should be stored as a bcrypt hash")
	}
	if session.UserID != user.ID {
		t.Errorf("session userID = %q, want %q", session.UserID, user.ID)
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if d := time.Until(session.ExpiresAt); d < 59*time.Minute || d > time.Hour {
		t.Errorf("session expires in %v, want about 1h", d)
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		code     string
	}{
		{"メールアドレス未入力", "", "Passw0rd!", model.ErrCodeMissingFields},
		{"パスワード未入力", "a@example.com", "", model.ErrCodeMissingFields},
		{"メール形式不正", "not-an-email", "Passw0rd!", model.ErrCodeInvalidEmail},
		{"表示名付き", "Alice <a@example.com>", "Passw0rd!", model.ErrCodeInvalidEmail},
		{"短いパスワード", "a@example.com", "Pa0!", model.ErrCodeWeakPassword},
		{"大文字なし", "a@example.com", "passw0rd!", model.ErrCodeWeakPassword},
		{"数字なし", "a@example.com", "Password!", model.ErrCodeWeakPassword},
		{"記号なし", "a@example.com", "Passw0rdx", model.ErrCodeWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockUserRepo{
				createFn: func(_ context.Context, _ *model.User) error {
					t.Fatal("user should not be created")
					return nil
				},
			}, &mockSessionRepo{})

			_, _, err := svc.Signup(context.Background(), tt.email, tt.password)
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc := newTestService(&mockUserRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.User, error) {
			return &model.User{ID: "existing"}, nil
		},
	}, &mockSessionRepo{})

	_, _, err := svc.Signup(context.Background(), "a@example.com", "Passw0rd!")
	assertAPIErrorCode(t, err, model.ErrCodeEmailTaken)
}

// 事前チェック後に一意制約違反となった場合もEMAIL_TAKENを返す
func TestSignup_DuplicateEmailRace(t *testing.T) {
	svc := newTestService(&mockUserRepo{
		createFn: func(_ context.Context, _ *model.User) error {
			return repository.ErrDuplicateEmail
		},
	}, &mockSessionRepo{})

	_, _, err := svc.Signup(context.Background(), "a@example.com", "Passw0rd!")
	assertAPIErrorCode(t, err, model.ErrCodeEmailTaken)
}

func TestLogin_ValidCredentials_CreatesSession(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	var createdSession *model.Session

	svc := newTestService(
		&mockUserRepo{findByEmailFn: func(_ context.Context, _ string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: "a@example.com", PasswordHash: string(hash)}, nil
		}},
		&mockSessionRepo{createFn: func(_ context.Context, s *model.Session) error {
			createdSession = s
			return nil
		}},
	)

	user, session, err := svc.Login(context.Background(), "a@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if user.ID != "user-1" || session.UserID != "user-1" {
		t.Errorf("user = %q, session user = %q", user.ID, session.UserID)
	}
	if createdSession == nil {
		t.Error("session should be persisted")
	}
}

// 登録時に除去される前後の空白はログイン時にも除去して照合する
func TestLogin_TrimsEmailLikeSignup(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	var storedEmail, lookedUp string

	svc := newTestService(
		&mockUserRepo{
			findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
				lookedUp = email
				if email == storedEmail {
					return &model.User{ID: "user-1", Email: storedEmail, PasswordHash: string(hash)}, nil
				}
				return nil, nil
			},
			createFn: func(_ context.Context, u *model.User) error {
				storedEmail = u.Email
				return nil
			},
		},
		&mockSessionRepo{},
	)

	if _, err := svc.CreateUser(context.Background(), " a@example.com ", "Passw0rd!"); err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}

	user, _, err := svc.Login(context.Background(), " a@example.com ", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if lookedUp != "a@example.com" || user.ID != "user-1" {
		t.Errorf("looked up %q, user = %+v", lookedUp, user)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)

	tests := []struct {
		name string
		user *model.User
	}{
		{"パスワード不一致", &model.User{ID: "user-1", PasswordHash: string(hash)}},
		{"ユーザー不在", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(
				&mockUserRepo{findByEmailFn: func(_ context.Context, _ string) (*model.User, error) {
					return tt.user, nil
				}},
				&mockSessionRepo{createFn: func(_ context.Context, _ *model.Session) error {
					t.Fatal("session should not be created")
					return nil
				}},
			)

			_, _, err := svc.Login(context.Background(), "a@example.com", "Wrong0ne!")
			assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
		})
	}
}

func TestLogin_MissingFields(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	_, _, err := svc.Login(context.Background(), "", "")
	assertAPIErrorCode(t, err, model.ErrCodeMissingFields)
}

func TestLogin_RepositoryError_ReturnsWrappedError(t *testing.T) {
	svc := newTestService(&mockUserRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}, &mockSessionRepo{})

	_, _, err := svc.Login(context.Background(), "a@example.com", "Passw0rd!")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("repository error should not be an APIError: %v", err)
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deleted string
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	})

	if err := svc.Logout(context.Background(), "session-to-delete"); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if deleted != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deleted, "session-to-delete")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})
	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("expected error for empty session ID")
	}
}

func TestGetCurrentUser(t *testing.T) {
	users := &mockUserRepo{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		if id == "user-1" {
			return &model.User{ID: "user-1", Email: "a@example.com"}, nil
		}
		return nil, nil
	}}

	t.Run("有効なセッション", func(t *testing.T) {
		svc := newTestService(users, &mockSessionRepo{findByIDFn: func(_ context.Context, _ string) (*model.Session, error) {
			return &model.Session{ID: "s", UserID: "user-1"}, nil
		}})
		user, err := svc.GetCurrentUser(context.Background(), "s")
		if err != nil || user.ID != "user-1" {
			t.Errorf("GetCurrentUser() = %v, %v", user, err)
		}
	})

	t.Run("期限切れセッション", func(t *testing.T) {
		svc := newTestService(users, &mockSessionRepo{})
		if _, err := svc.GetCurrentUser(context.Background(), "s"); err == nil {
			t.Error("expected error for missing session")
		}
	})

	t.Run("ユーザー削除済み", func(t *testing.T) {
		svc := newTestService(users, &mockSessionRepo{findByIDFn: func(_ context.Context, _ string) (*model.Session, error) {
			return &model.Session{ID: "s", UserID: "gone"}, nil
		}})
		if _, err := svc.GetCurrentUser(context.Background(), "s"); err == nil {
			t.Error("expected error for missing user")
		}
	})
}

func TestValidatePassword_Accepts(t *testing.T) {
	for _, pw := range []string{"Passw0rd!", "Ab1#efgh", "LONGPASSWORD1$"} {
		if err := ValidatePassword(pw); err != nil {
			t.Errorf("ValidatePassword(%q) = %v", pw, err)
		}
	}
}

func TestValidatePassword_TooLong(t *testing.T) {
	pw := "A1!" + strings.Repeat("a", maxPasswordBytes)
	if err := ValidatePassword(pw); err == nil {
		t.Error("password longer than 72 bytes should be rejected")
	}
}
