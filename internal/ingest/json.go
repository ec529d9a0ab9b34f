package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"euicc-profile-service/internal/domain"
)

// jsonFields は要素から読み取るフィールド。出力されるエラーの順序を固定するためスライスで持つ。
var jsonFields = []domain.Field{
	domain.FieldName,
	domain.FieldICCID,
	domain.FieldIMSI,
	domain.FieldKi,
	domain.FieldOPC,
	domain.FieldStandard,
	domain.FieldStatus,
}

// ParseJSON は `{"profiles": [...]}` 形式のペイロードをドラフトに変換する。
// トップレベルの形が不正な場合はErrMalformedPayloadを返す。
// 各要素のフィールド内容は再検証し、受け取ったvalidation_errorsは無視する。
func ParseJSON(data []byte) ([]domain.ProfileDraft, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", domain.ErrMalformedPayload)
	}

	raw, ok := top["profiles"]
	if !ok {
		return nil, fmt.Errorf("%w: payload has no profiles field", domain.ErrMalformedPayload)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		return nil, fmt.Errorf("%w: profiles must be an array", domain.ErrMalformedPayload)
	}

	drafts := make([]domain.ProfileDraft, 0, len(elems))
	for i, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil || obj == nil {
			return nil, fmt.Errorf("%w: profiles[%d] must be an object", domain.ErrMalformedPayload, i)
		}

		values := make(map[domain.Field]string, len(jsonFields))
		var nonString []domain.Field
		for _, f := range jsonFields {
			v, ok := fieldText(obj[string(f)])
			if !ok {
				nonString = append(nonString, f)
			}
			values[f] = v
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
		markNonString(&d, nonString)
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// markNonString は文字列でない値を受け取ったフィールドのエラーを型エラー1件に置き換える。
func markNonString(d *domain.ProfileDraft, fields []domain.Field) {
	if len(fields) == 0 {
		return
	}
	kept := d.ValidationErrors[:0]
	for _, ve := range d.ValidationErrors {
		if !slices.Contains(fields, ve.Field) {
			kept = append(kept, ve)
		}
	}
	d.ValidationErrors = kept
	for _, f := range fields {
		d.AddError(f, fmt.Errorf("%w: %s must be a string", domain.ErrInvalidFormat, f))
	}
}

// fieldText は文字列値を取り出す。欠落とnullは空文字として扱う。
// 文字列以外の値はJSONリテラルのまま返し、ok=falseとする。
func fieldText(raw json.RawMessage) (string, bool) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return "", true
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s, true
		}
	}
	return string(v), false
}
