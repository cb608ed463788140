// Package model はドメインモデルを定義する。
package model

import "time"

// Setup はユーザーが登録したPC構成（プロフィールドキュメント）を表す。
// ユーザーごとに最大1件存在し、キーはユーザーID。
// CPU/Motherboard/RAM/Storage/PSUは必須、GPU/PCCaseは任意。
type Setup struct {
	UserID      string
	CPU         string
	Motherboard string
	GPU         string
	RAM         string
	Storage     string
	PSU         string
	PCCase      string
	UpdatedAt   time.Time
}

// SetupPatch はSetupの部分更新（マージ書き込み）のペイロードを表す。
// nilのフィールドは「変更しない」を意味し、既存の値が維持される。
// 空文字列のポインタは「空に上書きする」を意味する。
type SetupPatch struct {
	CPU         *string
	Motherboard *string
	GPU         *string
	RAM         *string
	Storage     *string
	PSU         *string
	PCCase      *string
}

// IsEmpty はパッチに変更対象フィールドが1つも含まれないかどうかを返す。
func (p *SetupPatch) IsEmpty() bool {
	return p.CPU == nil && p.Motherboard == nil && p.GPU == nil &&
		p.RAM == nil && p.Storage == nil && p.PSU == nil && p.PCCase == nil
}

// Apply はパッチを既存のSetupに適用した結果を返す。
// マージ規則: パッチに存在するフィールドは上書き、存在しないフィールドは維持。
// サーバー側のUPSERTとクライアント側の楽観的更新で同一の規則を使う。
func (p *SetupPatch) Apply(base Setup) Setup {
	merged := base
	if p.CPU != nil {
		merged.CPU = *p.CPU
	}
	if p.Motherboard != nil {
		merged.Motherboard = *p.Motherboard
	}
	if p.GPU != nil {
		merged.GPU = *p.GPU
	}
	if p.RAM != nil {
		merged.RAM = *p.RAM
	}
	if p.Storage != nil {
		merged.Storage = *p.Storage
	}
	if p.PSU != nil {
		merged.PSU = *p.PSU
	}
	if p.PCCase != nil {
		merged.PCCase = *p.PCCase
	}
	return merged
}

// requiredSetupFields は初回保存時に必須となるフィールド名。
var requiredSetupFields = []string{"cpu", "motherboard", "ram", "storage", "psu"}

// MissingRequiredFields はマージ結果に対して未入力の必須フィールド名を返す。
// すべて入力済みの場合は空スライスを返す。
func (s *Setup) MissingRequiredFields() []string {
	var missing []string
	values := map[string]string{
		"cpu":         s.CPU,
		"motherboard": s.Motherboard,
		"ram":         s.RAM,
		"storage":     s.Storage,
		"psu":         s.PSU,
	}
	for _, name := range requiredSetupFields {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
