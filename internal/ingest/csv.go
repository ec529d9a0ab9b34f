package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"euicc-profile-service/internal/domain"
)

var csvColumns = map[string]domain.Field{
	"name":     domain.FieldName,
	"iccid":    domain.FieldICCID,
	"imsi":     domain.FieldIMSI,
	"ki":       domain.FieldKi,
	"opc":      domain.FieldOPC,
	"standard": domain.FieldStandard,
	"status":   domain.FieldStatus,
}

// ParseCSV はヘッダー行付きのCSVを読み込み、各データ行をドラフトに変換する。
// 構造の不正（空入力・iccid列なし・列数不一致・引用符の不整合）は全体をErrMalformedPayloadで失敗させる。
// ICCIDが空の行は破棄せずエラー付きで出力する。
func ParseCSV(r io.Reader) ([]domain.ProfileDraft, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: CSV input is empty", domain.ErrMalformedPayload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading CSV header: %v", domain.ErrMalformedPayload, err)
	}

	columns := make(map[domain.Field]int)
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		field, ok := csvColumns[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := columns[field]; dup {
			return nil, fmt.Errorf("%w: duplicate CSV column %q", domain.ErrMalformedPayload, field)
		}
		columns[field] = i
	}
	if _, ok := columns[domain.FieldICCID]; !ok {
		return nil, fmt.Errorf("%w: CSV header has no iccid column", domain.ErrMalformedPayload)
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	drafts := make([]domain.ProfileDraft, 0, len(records))
	for _, rec := range records {
		get := func(f domain.Field) string {
			if i, ok := columns[f]; ok {
				return rec[i]
			}
			return ""
		}
		d := domain.ProfileDraft{
			Name:     get(domain.FieldName),
			ICCID:    get(domain.FieldICCID),
			IMSI:     get(domain.FieldIMSI),
			Ki:       get(domain.FieldKi),
			OPC:      get(domain.FieldOPC),
			Standard: get(domain.FieldStandard),
			Status:   get(domain.FieldStatus),
		}
		domain.ValidateDraft(&d)
		drafts = append(drafts, d)
	}
	return drafts, nil
}
