package identitysvc

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/identity"
	emailsvc "github.com/unitrack/unitrack/services/email"
	memorystore "github.com/unitrack/unitrack/storage/docstore/memory"
)

var (
	ctx    = context.Background()
	logger = core.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
)

func testConf(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		AppName:              "UniTrack",
		SecretKey:            []byte("poiuytrewq"),
		FrontendBaseURL:      "http://localhost:8080",
		SessionTTL:           24 * time.Hour,
		PasswordResetTimeout: 3 * 24 * time.Hour,
		SessionCachePath:     t.TempDir() + "/session",
	}
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	conf := testConf(t)
	return NewProvider(memorystore.Open(), emailsvc.NewConsoleServiceMock(*conf), conf, logger)
}

func TestProvider_CreateUserAndSignIn(t *testing.T) {
	p := newTestProvider(t)

	usr, err := p.CreateUser(ctx, "Awe@Test.cd ", "s3cr3t!")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if usr.Email != "awe@test.cd" {
		t.Errorf("Email = %q, want cleaned and lowered", usr.Email)
	}
	if cur, ok := p.CurrentUser(); !ok || cur.UID != usr.UID {
		t.Errorf("CurrentUser() = %+v, %v; want the new user signed in", cur, ok)
	}

	// duplicate email
	if _, err = p.CreateUser(ctx, "awe@test.cd", "0th3rpwd"); identity.CodeOf(err) != identity.CodeEmailInUse {
		t.Errorf("CreateUser() duplicate error = %v, want CodeEmailInUse", err)
	}

	if err = p.SignOut(); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, ok := p.CurrentUser(); ok {
		t.Error("CurrentUser() still set after SignOut()")
	}

	if _, err = p.SignIn(ctx, "awe@test.cd", "s3cr3t!"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if _, err = p.SignIn(ctx, "awe@test.cd", "wrong"); identity.CodeOf(err) != identity.CodeWrongPassword {
		t.Errorf("SignIn() wrong password error = %v, want CodeWrongPassword", err)
	}
	if _, err = p.SignIn(ctx, "ghost@test.cd", "s3cr3t!"); identity.CodeOf(err) != identity.CodeUserNotFound {
		t.Errorf("SignIn() unknown email error = %v, want CodeUserNotFound", err)
	}
	if _, err = p.SignIn(ctx, "not an email", "s3cr3t!"); identity.CodeOf(err) != identity.CodeInvalidEmail {
		t.Errorf("SignIn() bad email error = %v, want CodeInvalidEmail", err)
	}
}

func TestProvider_CreateUser_weakPassword(t *testing.T) {
	p := newTestProvider(t)

	if _, err := p.CreateUser(ctx, "awe@test.cd", "12345"); identity.CodeOf(err) != identity.CodeWeakPassword {
		t.Errorf("CreateUser() error = %v, want CodeWeakPassword", err)
	}
	// six characters is the floor
	if _, err := p.CreateUser(ctx, "awe@test.cd", "123456"); err != nil {
		t.Errorf("CreateUser() error = %v, want minimum-length password accepted", err)
	}
}

func TestProvider_stateStream(t *testing.T) {
	p := newTestProvider(t)

	var events []*identity.User
	stop := p.OnStateChange(func(usr *identity.User) { events = append(events, usr) })

	usr, err := p.CreateUser(ctx, "awe@test.cd", "s3cr3t!")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	p.SignOut()

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0] == nil || events[0].UID != usr.UID {
		t.Errorf("first event = %+v, want the signed-in user", events[0])
	}
	if events[1] != nil {
		t.Errorf("second event = %+v, want nil on sign-out", events[1])
	}

	// deregistered listeners stay quiet
	stop()
	p.SignIn(ctx, "awe@test.cd", "s3cr3t!")
	if len(events) != 2 {
		t.Errorf("got %d events after stop, want 2", len(events))
	}
}

func TestProvider_sessionRestore(t *testing.T) {
	conf := testConf(t)
	store := memorystore.Open()
	mailSvc := emailsvc.NewConsoleServiceMock(*conf)

	p := NewProvider(store, mailSvc, conf, logger)
	usr, err := p.CreateUser(ctx, "awe@test.cd", "s3cr3t!")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	// a new provider over the same cache restores the session
	p2 := NewProvider(store, mailSvc, conf, logger)
	cur, ok := p2.CurrentUser()
	if !ok {
		t.Fatal("CurrentUser() = none, want restored session")
	}
	if cur.UID != usr.UID || cur.Email != usr.Email {
		t.Errorf("restored = %+v, want %+v", cur, usr)
	}

	// sign-out clears the cache for the next start
	if err = p2.SignOut(); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	p3 := NewProvider(store, mailSvc, conf, logger)
	if _, ok = p3.CurrentUser(); ok {
		t.Error("CurrentUser() restored after SignOut()")
	}
}

func TestProvider_Reauthenticate(t *testing.T) {
	p := newTestProvider(t)

	if err := p.Reauthenticate(ctx, "s3cr3t!"); identity.CodeOf(err) != identity.CodeNoCurrentUser {
		t.Errorf("Reauthenticate() signed out error = %v, want CodeNoCurrentUser", err)
	}

	p.CreateUser(ctx, "awe@test.cd", "s3cr3t!")
	if err := p.Reauthenticate(ctx, "s3cr3t!"); err != nil {
		t.Errorf("Reauthenticate() error = %v", err)
	}
	if err := p.Reauthenticate(ctx, "wrong"); identity.CodeOf(err) != identity.CodeWrongPassword {
		t.Errorf("Reauthenticate() wrong password error = %v, want CodeWrongPassword", err)
	}
}

func TestProvider_UpdatePassword(t *testing.T) {
	p := newTestProvider(t)

	if err := p.UpdatePassword(ctx, "n3wpwd!"); identity.CodeOf(err) != identity.CodeNoCurrentUser {
		t.Errorf("UpdatePassword() signed out error = %v, want CodeNoCurrentUser", err)
	}

	p.CreateUser(ctx, "awe@test.cd", "s3cr3t!")
	if err := p.UpdatePassword(ctx, "short"); identity.CodeOf(err) != identity.CodeWeakPassword {
		t.Errorf("UpdatePassword() error = %v, want CodeWeakPassword", err)
	}
	if err := p.UpdatePassword(ctx, "n3wpwd!"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	p.SignOut()
	if _, err := p.SignIn(ctx, "awe@test.cd", "s3cr3t!"); identity.CodeOf(err) != identity.CodeWrongPassword {
		t.Errorf("SignIn() with old password error = %v, want CodeWrongPassword", err)
	}
	if _, err := p.SignIn(ctx, "awe@test.cd", "n3wpwd!"); err != nil {
		t.Errorf("SignIn() with new password error = %v", err)
	}
}

func TestProvider_passwordReset(t *testing.T) {
	p := newTestProvider(t)
	now := time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC)
	p.NowFunc = func() time.Time { return now }

	if err := p.SendPasswordReset(ctx, "ghost@test.cd"); identity.CodeOf(err) != identity.CodeUserNotFound {
		t.Errorf("SendPasswordReset() unknown email error = %v, want CodeUserNotFound", err)
	}

	p.CreateUser(ctx, "awe@test.cd", "s3cr3t!")
	if err := p.SendPasswordReset(ctx, "awe@test.cd"); err != nil {
		t.Fatalf("SendPasswordReset() error = %v", err)
	}

	tests := []struct {
		name        string
		mangleUID   func(string) string
		mangleToken func(string) string
		verifyAt    time.Time
		wantErr     error
	}{
		{name: "valid", verifyAt: now},
		{name: "still valid at limit", verifyAt: now.Add(3 * 24 * time.Hour)},
		{name: "expired", verifyAt: now.Add(4*24*time.Hour + time.Hour), wantErr: errTokenExpired},
		{name: "garbage uid", mangleUID: func(string) string { return "???" }, verifyAt: now, wantErr: errInvalidToken},
		{name: "garbage token", mangleToken: func(string) string { return "lol" }, verifyAt: now, wantErr: errInvalidToken},
		{name: "empty token", mangleToken: func(string) string { return "" }, verifyAt: now, wantErr: errInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// tokens are bound to the account's current hash; mint one fresh
			p.NowFunc = func() time.Time { return now }
			acct, err := p.getAccountByEmail(ctx, "awe@test.cd")
			if err != nil {
				t.Fatalf("getAccountByEmail() error = %v", err)
			}
			token, err := p.makeResetToken(acct)
			if err != nil {
				t.Fatalf("makeResetToken() error = %v", err)
			}
			uid := encodeUID(acct)
			if tt.mangleUID != nil {
				uid = tt.mangleUID(uid)
			}
			if tt.mangleToken != nil {
				token = tt.mangleToken(token)
			}

			p.NowFunc = func() time.Time { return tt.verifyAt }
			err = p.ConfirmPasswordReset(ctx, uid, token, "n3wpwd!")
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("ConfirmPasswordReset() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConfirmPasswordReset() error = %v", err)
			}

			// the password change invalidates the token
			if err = p.ConfirmPasswordReset(ctx, uid, token, "an0therpwd"); err != errInvalidToken {
				t.Errorf("ConfirmPasswordReset() reuse error = %v, want errInvalidToken", err)
			}
		})
	}
}
