package ingest

import (
	"euicc-profile-service/internal/domain"
)

// ICCIDSet は保存済みICCIDのスナップショット。
type ICCIDSet map[string]struct{}

// NewICCIDSet はICCIDの一覧からスナップショットを生成する。
func NewICCIDSet(iccids []string) ICCIDSet {
	set := make(ICCIDSet, len(iccids))
	for _, id := range iccids {
		set[id] = struct{}{}
	}
	return set
}

// Contains はICCIDがスナップショットに含まれるかを返す。
func (s ICCIDSet) Contains(iccid string) bool {
	_, ok := s[iccid]
	return ok
}

// Resolution は重複解決の結果。Acceptedは入力順に並ぶ保存対象のプロファイル。
type Resolution struct {
	Accepted []*domain.Profile
	Skipped  []domain.SkippedProfile
}

// Resolve はドラフトを入力順に評価し、取り込み対象とスキップ対象に振り分ける。
//   - 検証エラーを持つドラフトは invalid としてスキップする。
//   - 保存済み、または同じバッチ内で先に受け入れたICCIDは duplicate としてスキップする。
//   - それ以外はデフォルト値（status=disabled, standard=SGP.22）を補って受け入れる。
//
// 重複判定は渡されたスナップショットに対してのみ行い、existingは変更しない。
func Resolve(drafts []domain.ProfileDraft, existing ICCIDSet) *Resolution {
	res := &Resolution{
		Accepted: make([]*domain.Profile, 0, len(drafts)),
		Skipped:  []domain.SkippedProfile{},
	}
	accepted := make(map[string]struct{}, len(drafts))

	for _, d := range drafts {
		if !d.Valid() {
			res.Skipped = append(res.Skipped, domain.SkippedProfile{
				ICCID:  d.ICCID,
				Reason: domain.SkipReasonInvalid,
				Errors: d.ValidationErrors,
			})
			continue
		}
		if _, dup := accepted[d.ICCID]; dup || existing.Contains(d.ICCID) {
			res.Skipped = append(res.Skipped, domain.SkippedProfile{
				ICCID:  d.ICCID,
				Reason: domain.SkipReasonDuplicate,
			})
			continue
		}

		accepted[d.ICCID] = struct{}{}
		res.Accepted = append(res.Accepted, ProfileFromDraft(d))
	}
	return res
}

// ProfileFromDraft は検証済みドラフトから保存用プロファイルを生成し、省略値にデフォルトを補う。
func ProfileFromDraft(d domain.ProfileDraft) *domain.Profile {
	p := &domain.Profile{
		Name:     d.Name,
		ICCID:    d.ICCID,
		IMSI:     d.IMSI,
		Ki:       d.Ki,
		OPC:      d.OPC,
		Standard: d.Standard,
		Status:   domain.ProfileStatus(d.Status),
	}
	if p.Name == "" {
		p.Name = domain.DefaultProfileName(p.ICCID)
	}
	if p.Standard == "" {
		p.Standard = domain.DefaultStandard
	}
	if p.Status == "" {
		p.Status = domain.ProfileStatusDisabled
	}
	return p
}
