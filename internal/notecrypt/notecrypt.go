// Package notecrypt はパスワード付きノートの暗号化を提供する。
//
// 保存形式は salt(32バイト) とFernetトークンの連結で、長さの前置はない。
// 鍵はPBKDF2-HMAC-SHA256（100,000回、32バイト）でパスワードとsaltから導出する。
// 既存データを復号できるよう、この形式と定数は変更しないこと。
package notecrypt

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize は保存データ先頭のsaltの長さ。
	SaltSize = 32
	// Iterations はPBKDF2の反復回数。
	Iterations = 100000
	// KeySize は導出する鍵の長さ。前半16バイトが署名鍵、後半16バイトが暗号鍵。
	KeySize = 32
)

// noExpiry はトークンの経過時間を検証しないことを表す。ノートに有効期限はない。
const noExpiry time.Duration = -1

// ErrInvalidToken はパスワード違いまたはデータ破損で復号できない場合に返す。
var ErrInvalidToken = errors.New("notecrypt: invalid token")

// DeriveKey はpasswordとsaltから鍵を導出する。
func DeriveKey(password, salt []byte) *fernet.Key {
	var key fernet.Key
	copy(key[:], pbkdf2.Key(password, salt, Iterations, KeySize, sha256.New))
	return &key
}

// Encrypt はcontentを暗号化し、salt‖tokenを返す。
func Encrypt(content, password []byte) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("notecrypt: failed to generate salt: %w", err)
	}

	token, err := fernet.EncryptAndSign(content, DeriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("notecrypt: failed to encrypt: %w", err)
	}

	out := make([]byte, 0, SaltSize+len(token))
	out = append(out, salt...)
	return append(out, token...), nil
}

// Decrypt はsalt‖tokenを復号する。
// パスワード違いとデータ破損はErrInvalidTokenになる。
func Decrypt(stored, password []byte) ([]byte, error) {
	salt, token, err := SplitSalt(stored)
	if err != nil {
		return nil, err
	}
	return decryptToken(token, DeriveKey(password, salt))
}

// decryptToken はトークンを検証して復号する。
// 末尾の'='を省いたトークンも受け付ける。
func decryptToken(token []byte, key *fernet.Key) ([]byte, error) {
	token = bytes.TrimSpace(token)
	if rem := len(token) % 4; rem != 0 {
		token = append(append([]byte(nil), token...), bytes.Repeat([]byte("="), 4-rem)...)
	}

	plain := fernet.VerifyAndDecrypt(token, noExpiry, []*fernet.Key{key})
	if plain == nil {
		return nil, ErrInvalidToken
	}
	return plain, nil
}

// SplitSalt は保存データを先頭SaltSizeバイトのsaltと残りのトークンに分ける。
func SplitSalt(stored []byte) (salt, token []byte, err error) {
	if len(stored) <= SaltSize {
		return nil, nil, ErrInvalidToken
	}
	return stored[:SaltSize], stored[SaltSize:], nil
}
