package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/goauthz/pkg/database"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/google/uuid"
)

// CaptchaTTL 验证码有效期
const CaptchaTTL = 2 * time.Minute

// Challenge 验证码题目
type Challenge struct {
	ID       string `json:"uuid"`
	Question string `json:"question"`
}

// Captcha 算术验证码，答案保存在 captcha_codes:{id}
type Captcha struct {
	cache *database.Cache
	rand  func(n int) int
}

// NewCaptcha 创建验证码存储
func NewCaptcha(cache *database.Cache) *Captcha {
	return &Captcha{cache: cache, rand: rand.IntN}
}

func captchaKey(id string) string {
	return "captcha_codes:" + id
}

// Generate 生成一道两位数以内的算术题
func (c *Captcha) Generate(ctx context.Context) (*Challenge, error) {
	a, b := c.rand(10), c.rand(10)
	var (
		op     string
		answer int
	)
	switch c.rand(3) {
	case 0:
		op, answer = "+", a+b
	case 1:
		op, answer = "-", a-b
	default:
		op, answer = "*", a*b
	}

	id := uuid.NewString()
	if err := c.cache.Set(ctx, captchaKey(id), strconv.Itoa(answer), CaptchaTTL); err != nil {
		return nil, fmt.Errorf("save captcha: %w", err)
	}
	return &Challenge{ID: id, Question: fmt.Sprintf("%d %s %d = ?", a, op, b)}, nil
}

// Verify 校验答案，无论对错验证码都只能使用一次
func (c *Captcha) Verify(ctx context.Context, id, answer string) error {
	if id == "" || answer == "" {
		return apperrors.ErrCaptchaInvalid
	}
	expected, err := c.cache.Get(ctx, captchaKey(id))
	if errors.Is(err, database.ErrCacheMiss) {
		return apperrors.BadRequest("验证码已失效")
	}
	if err != nil {
		return apperrors.Internal("", err)
	}
	if err := c.cache.Del(ctx, captchaKey(id)); err != nil {
		return apperrors.Internal("", err)
	}
	if !strings.EqualFold(strings.TrimSpace(answer), expected) {
		return apperrors.ErrCaptchaInvalid
	}
	return nil
}
