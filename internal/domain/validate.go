package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// Standards は受け付ける規格タグの一覧。
var Standards = []string{"SGP.01", "SGP.02", "SGP.21", "SGP.22"}

// ValidateICCID は空白を除去したICCIDが19桁または20桁の数字であることを検証する。
func ValidateICCID(s string) (string, error) {
	v := stripSpace(s)
	if v == "" {
		return "", fmt.Errorf("%w: ICCID is required", ErrInvalidFormat)
	}
	if (len(v) != 19 && len(v) != 20) || !isDigits(v) {
		return "", fmt.Errorf("%w: ICCID must be 19 or 20 digits", ErrInvalidFormat)
	}
	return v, nil
}

// ValidateIMSI はIMSIが6〜15桁の数字であることを検証する。空文字列は未指定として扱う。
func ValidateIMSI(s string) (string, error) {
	v := stripSpace(s)
	if v == "" {
		return "", nil
	}
	if len(v) < 6 || len(v) > 15 || !isDigits(v) {
		return "", fmt.Errorf("%w: IMSI must be 6 to 15 digits", ErrInvalidFormat)
	}
	return v, nil
}

// ValidateHexKey は鍵がexpectedBits/4文字の16進数であることを検証し、大文字に正規化する。
func ValidateHexKey(s string, expectedBits int) (string, error) {
	v := strings.TrimSpace(s)
	want := expectedBits / 4
	if len(v) != want {
		return "", fmt.Errorf("%w: key must be %d hex characters, got %d", ErrInvalidFormat, want, len(v))
	}
	for i := 0; i < len(v); i++ {
		if !isHex(v[i]) {
			return "", fmt.Errorf("%w: key contains non-hex character %q", ErrInvalidFormat, v[i])
		}
	}
	return strings.ToUpper(v), nil
}

// ValidateStandard は規格タグを検証する。空文字列はデフォルト値の使用を意味し、エラーではない。
func ValidateStandard(s string) (string, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", nil
	}
	for _, std := range Standards {
		if strings.EqualFold(v, std) {
			return std, nil
		}
	}
	return "", fmt.Errorf("%w: %q (expected one of %s)", ErrUnknownStandard, v, strings.Join(Standards, ", "))
}

// ValidateStatus はプロファイルステータスを検証する。空文字列はデフォルト値の使用を意味する。
func ValidateStatus(s string) (ProfileStatus, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch ProfileStatus(v) {
	case "":
		return "", nil
	case ProfileStatusEnabled, ProfileStatusDisabled:
		return ProfileStatus(v), nil
	}
	return "", fmt.Errorf("%w: status must be enabled or disabled", ErrInvalidFormat)
}

// ValidateDraft はドラフトの各フィールドを検証・正規化し、失敗をValidationErrorsに蓄積する。
// 不正な値は元の値のまま残す。
func ValidateDraft(d *ProfileDraft) {
	d.Name = strings.TrimSpace(d.Name)

	if v, err := ValidateICCID(d.ICCID); err != nil {
		d.AddError(FieldICCID, err)
	} else {
		d.ICCID = v
	}
	if v, err := ValidateIMSI(d.IMSI); err != nil {
		d.AddError(FieldIMSI, err)
	} else {
		d.IMSI = v
	}
	validateOptionalKey(d, FieldKi, &d.Ki)
	validateOptionalKey(d, FieldOPC, &d.OPC)
	if v, err := ValidateStandard(d.Standard); err != nil {
		d.AddError(FieldStandard, err)
	} else {
		d.Standard = v
	}
	if v, err := ValidateStatus(d.Status); err != nil {
		d.AddError(FieldStatus, err)
	} else {
		d.Status = string(v)
	}
}

func validateOptionalKey(d *ProfileDraft, field Field, value *string) {
	if strings.TrimSpace(*value) == "" {
		*value = ""
		return
	}
	v, err := ValidateHexKey(*value, 128)
	if err != nil {
		d.AddError(field, fmt.Errorf("%s: %w", strings.ToUpper(string(field)), err))
		return
	}
	*value = v
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
