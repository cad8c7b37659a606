package security

import (
	"crypto/sha256"
	"fmt"

	"github.com/gorilla/securecookie"
)

// CookieCodec はCookie値の署名と検証を行う。
// セッションIDを改ざんされた値と区別するために使う。
type CookieCodec struct {
	sc *securecookie.SecureCookie
}

// NewCookieCodec はSESSION_SECRETからHMAC鍵を導出してCookieCodecを生成する。
// maxAgeは署名のタイムスタンプ有効期間（秒）。
func NewCookieCodec(secret string, maxAge int) *CookieCodec {
	hashKey := sha256.Sum256([]byte(secret))
	sc := securecookie.New(hashKey[:], nil)
	sc.MaxAge(maxAge)
	sc.SetSerializer(securecookie.NopEncoder{})
	return &CookieCodec{sc: sc}
}

// Encode はCookie名に紐づけて値を署名する。
func (c *CookieCodec) Encode(name, value string) (string, error) {
	encoded, err := c.sc.Encode(name, []byte(value))
	if err != nil {
		return "", fmt.Errorf("failed to encode cookie %s: %w", name, err)
	}
	return encoded, nil
}

// Decode は署名を検証して元の値を返す。
func (c *CookieCodec) Decode(name, encoded string) (string, error) {
	var value []byte
	if err := c.sc.Decode(name, encoded, &value); err != nil {
		return "", fmt.Errorf("failed to decode cookie %s: %w", name, err)
	}
	return string(value), nil
}
