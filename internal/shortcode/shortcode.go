// Package shortcode は衝突確認付きのランダムな識別子生成を提供する。
// 短縮URLのエイリアスとAPIキーの生成に使用する。
package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// Alphanumeric はエイリアス用の文字集合。
	Alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// APIKeyCharset はAPIキー用の文字集合。英数字に記号を加える。
	APIKeyCharset = Alphanumeric + "!@%^&?<>:;+=-_~"

	// DefaultMaxAttempts は長さを伸ばす前に試行する回数。
	DefaultMaxAttempts = 10
	// DefaultMaxGrowth は長さを伸ばす最大回数。
	DefaultMaxGrowth = 3
)

// ErrExhausted は長さを伸ばしても空きが見つからなかった場合に返す。
var ErrExhausted = errors.New("shortcode: no free code found")

// ExistenceChecker は生成したコードが使用済みかどうかを確認する。
type ExistenceChecker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// ExistenceFunc は関数をExistenceCheckerとして扱うためのアダプタ。
type ExistenceFunc func(ctx context.Context, code string) (bool, error)

// Exists はf(ctx, code)を呼ぶ。
func (f ExistenceFunc) Exists(ctx context.Context, code string) (bool, error) {
	return f(ctx, code)
}

// Config はGeneratorの設定。
type Config struct {
	Charset     string
	Length      int
	MaxAttempts int // 0以下はDefaultMaxAttempts
	MaxGrowth   int // 0以下はDefaultMaxGrowth
}

// Generator はストアに存在しないコードを生成する。
// 事前確認は遅延削減のためのもので、最終的な一意性は一意制約で保証する。
type Generator struct {
	checker     ExistenceChecker
	charset     string
	length      int
	maxAttempts int
	maxGrowth   int
}

// NewGenerator はGeneratorを生成する。
func NewGenerator(checker ExistenceChecker, cfg Config) (*Generator, error) {
	if len(cfg.Charset) < 2 {
		return nil, fmt.Errorf("shortcode: charset must have at least 2 characters")
	}
	if cfg.Length <= 0 {
		return nil, fmt.Errorf("shortcode: length must be positive: %d", cfg.Length)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxGrowth <= 0 {
		cfg.MaxGrowth = DefaultMaxGrowth
	}
	return &Generator{
		checker:     checker,
		charset:     cfg.Charset,
		length:      cfg.Length,
		maxAttempts: cfg.MaxAttempts,
		maxGrowth:   cfg.MaxGrowth,
	}, nil
}

// Generate は未使用のコードを返す。
// 衝突した場合はコード全体を引き直し、MaxAttempts回続けて衝突したら長さを1伸ばす。
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for length := g.length; length <= g.length+g.maxGrowth; length++ {
		for attempt := 0; attempt < g.maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			code, err := Random(g.charset, length)
			if err != nil {
				return "", err
			}

			if g.checker == nil {
				return code, nil
			}
			exists, err := g.checker.Exists(ctx, code)
			if err != nil {
				return "", fmt.Errorf("shortcode: existence check failed: %w", err)
			}
			if !exists {
				return code, nil
			}
		}
	}
	return "", ErrExhausted
}

// Random はcharsetから一様にlength文字を選んだ文字列を返す。
func Random(charset string, length int) (string, error) {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("shortcode: failed to read random: %w", err)
		}
		b[i] = charset[n.Int64()]
	}
	return string(b), nil
}
