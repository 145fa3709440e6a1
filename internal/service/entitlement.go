package service

import (
	"fmt"
	"path/filepath"
	"strings"

	"slidedrop/internal/repository"
)

// Tier 是账户订阅等级。
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

// ParseTier 把存储中的等级字符串规范化，未知或空值按 free 处理。
func ParseTier(raw string) Tier {
	switch t := Tier(strings.ToLower(strings.TrimSpace(raw))); t {
	case TierStarter, TierPro, TierBusiness:
		return t
	default:
		return TierFree
	}
}

func (t Tier) allowsOffice() bool { return t != TierFree }

func (t Tier) allowsRemoteConversion() bool { return t == TierPro || t == TierBusiness }

// CheckEntitlement 判断等级是否允许以指定模式发布该格式，纯函数，不做任何 I/O。
//
//	free:          pdf（raw 与 interactive）
//	starter:       + 办公文档，仅 raw
//	pro/business:  + 办公文档 interactive（远程转换）
func CheckEntitlement(tier Tier, ft repository.FileType, mode repository.DisplayMode) error {
	if !ft.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFileType, ft)
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: display_mode %q", ErrInvalidInput, mode)
	}
	if ft.Rasterizable() {
		return nil
	}

	if !tier.allowsOffice() {
		return fmt.Errorf("%w: %s files require the starter plan", ErrNotEntitled, ft)
	}
	if mode == repository.DisplayModeInteractive && !tier.allowsRemoteConversion() {
		return fmt.Errorf("%w: interactive %s decks require the pro plan", ErrNotEntitled, ft)
	}
	return nil
}

// DetectFileType 根据文件扩展名识别格式。
func DetectFileType(fileName string) (repository.FileType, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: missing file extension", ErrUnsupportedFileType)
	}
	ft := repository.FileType(ext)
	if !ft.Valid() {
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedFileType, ext)
	}
	return ft, nil
}
