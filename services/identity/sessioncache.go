package identitysvc

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/identity"
)

// sessionClaims is the cached-session token payload; the signed-in user is
// restored from it at process start.
type sessionClaims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

func storeCachedSession(conf *core.Config, usr identity.User) error {
	now := time.Now()
	claims := &sessionClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.UID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(conf.SessionTTL).Unix(),
		},
		Email: usr.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(conf.SecretKey)
	if err != nil {
		return errors.Wrap(err, "signing session token")
	}

	if err = os.MkdirAll(filepath.Dir(conf.SessionCachePath), 0700); err != nil {
		return errors.Wrap(err, "creating session cache dir")
	}
	return errors.Wrap(ioutil.WriteFile(conf.SessionCachePath, []byte(ss), 0600), "writing session cache")
}

// loadCachedSession returns (nil, nil) when no session is cached.
func loadCachedSession(conf *core.Config) (*identity.User, error) {
	raw, err := ioutil.ReadFile(conf.SessionCachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading session cache")
	}

	claims := new(sessionClaims)
	token, err := jwt.ParseWithClaims(string(raw), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(conf.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Wrap(err, "parsing session token")
	}
	return &identity.User{UID: claims.Subject, Email: claims.Email}, nil
}

func clearCachedSession(conf *core.Config) error {
	if err := os.Remove(conf.SessionCachePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "clearing session cache")
	}
	return nil
}
