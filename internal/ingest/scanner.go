// Package ingest はプロファイル取り込みパイプライン（テキスト・CSV・JSONの解析と重複解決）を提供する。
package ingest

import (
	"fmt"
	"strings"

	"euicc-profile-service/internal/domain"
)

// fieldAliases はテキスト中のキー（小文字・空白正規化済み）をフィールドに対応付ける。
var fieldAliases = map[string]domain.Field{
	"name":          domain.FieldName,
	"profile name":  domain.FieldName,
	"profile_name":  domain.FieldName,
	"iccid":         domain.FieldICCID,
	"icc-id":        domain.FieldICCID,
	"icc_id":        domain.FieldICCID,
	"imsi":          domain.FieldIMSI,
	"ki":            domain.FieldKi,
	"key":           domain.FieldKi,
	"opc":           domain.FieldOPC,
	"op":            domain.FieldOPC,
	"operator code": domain.FieldOPC,
	"standard":      domain.FieldStandard,
	"spec":          domain.FieldStandard,
	"specification": domain.FieldStandard,
	"status":        domain.FieldStatus,
	"state":         domain.FieldStatus,
}

// lineEndings はCRLFと単独のCRをLFにそろえる。
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ScanText は貼り付けられたテキストを空行で区切られたブロックに分割し、ドラフトを生成する。
// ICCIDを含まないブロックは破棄し、ICCIDが不正なブロックはエラー付きで出力する。
// 出力順は入力中のブロック順と一致する。
func ScanText(text string) []domain.ProfileDraft {
	drafts := []domain.ProfileDraft{}
	var block []string

	flush := func() {
		if d, ok := scanBlock(block); ok {
			drafts = append(drafts, d)
		}
		block = block[:0]
	}

	for _, line := range strings.Split(lineEndings.Replace(text), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	return drafts
}

// scanBlock は1ブロック分の `key: value` 行をドラフトに変換する。
func scanBlock(lines []string) (domain.ProfileDraft, bool) {
	if len(lines) == 0 {
		return domain.ProfileDraft{}, false
	}

	values := make(map[domain.Field]string)
	var repeated []domain.Field
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field, known := normalizeKey(key)
		if !known {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, seen := values[field]; seen {
			repeated = append(repeated, field)
			continue
		}
		values[field] = value
	}

	if values[domain.FieldICCID] == "" {
		return domain.ProfileDraft{}, false
	}

	d := domain.ProfileDraft{
		Name:     values[domain.FieldName],
		ICCID:    values[domain.FieldICCID],
		IMSI:     values[domain.FieldIMSI],
		Ki:       values[domain.FieldKi],
		OPC:      values[domain.FieldOPC],
		Standard: values[domain.FieldStandard],
		Status:   values[domain.FieldStatus],
	}
	domain.ValidateDraft(&d)
	for _, f := range repeated {
		d.AddError(f, fmt.Errorf("%w: %s specified more than once in block", domain.ErrInvalidFormat, f))
	}
	return d, true
}

func normalizeKey(key string) (domain.Field, bool) {
	k := strings.Join(strings.Fields(strings.ToLower(key)), " ")
	f, ok := fieldAliases[k]
	return f, ok
}
