package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/buildman/internal/model"
)

// Mode はReconcilerの状態を表す。
type Mode int

const (
	// ModeViewing は同期済みドキュメントの閲覧状態。
	ModeViewing Mode = iota
	// ModeEditing はドラフト編集状態。
	ModeEditing
	// ModeSaving は保存のリモート呼び出し中。
	ModeSaving
)

// String はログ出力用の文字列表現を返す。
func (m Mode) String() string {
	switch m {
	case ModeEditing:
		return "editing"
	case ModeSaving:
		return "saving"
	default:
		return "viewing"
	}
}

// Buffer は編集中のドラフト。ドキュメントと同じ形のフィールドを持ち、
// 保存が成功するまでリモートには一切書き込まれない。
type Buffer struct {
	CPU         string
	Motherboard string
	GPU         string
	RAM         string
	Storage     string
	PSU         string
	PCCase      string
}

// bufferFromDoc は現在のドキュメントからドラフトを初期化する。
// docがnil（未登録）の場合は空のドラフトを返す。
func bufferFromDoc(doc *model.Setup) Buffer {
	if doc == nil {
		return Buffer{}
	}
	return Buffer{
		CPU:         doc.CPU,
		Motherboard: doc.Motherboard,
		GPU:         doc.GPU,
		RAM:         doc.RAM,
		Storage:     doc.Storage,
		PSU:         doc.PSU,
		PCCase:      doc.PCCase,
	}
}

// toPatch はドラフト全体をマージ書き込みのペイロードに変換する。
// 編集フォームは全フィールドを表示・編集するため、すべてのフィールドを明示的に上書きする
// （空にしたフィールドは空文字列で上書きされる）。
func (b *Buffer) toPatch() model.SetupPatch {
	return model.SetupPatch{
		CPU:         &b.CPU,
		Motherboard: &b.Motherboard,
		GPU:         &b.GPU,
		RAM:         &b.RAM,
		Storage:     &b.Storage,
		PSU:         &b.PSU,
		PCCase:      &b.PCCase,
	}
}

// missingRequired はドラフト上で未入力の必須フィールド名を返す。
func (b *Buffer) missingRequired() []string {
	patch := b.toPatch()
	merged := patch.Apply(model.Setup{})
	return merged.MissingRequiredFields()
}

// Saver はReconcilerが必要とする保存操作。Storeの部分集合として定義する。
type Saver interface {
	Save(ctx context.Context, identityID string, patch model.SetupPatch) (*model.Setup, error)
}

// Reconciler は閲覧表示と編集ドラフトの間の遷移を調停する状態機械。
// リモート書き込みは明示的なSave呼び出し1回につき高々1回しか発生しない。
// ドラフトのフィールド変更が保存を引き起こすことはない。
type Reconciler struct {
	store Saver

	mu     sync.Mutex
	mode   Mode
	doc    *model.Setup
	buffer Buffer
}

// NewReconciler はViewing状態のReconcilerを生成する。
// docがnilの場合は「未登録」の閲覧状態から始まる。
func NewReconciler(store Saver, doc *model.Setup) *Reconciler {
	return &Reconciler{store: store, mode: ModeViewing, doc: doc}
}

// Mode は現在の状態を返す。
func (r *Reconciler) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Document は閲覧中のドキュメントを返す。未登録の場合はnil。
func (r *Reconciler) Document() *model.Setup {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

// BeginEdit はViewingからEditingへ遷移し、現在のドキュメントからドラフトを初期化する。
// Viewing以外の状態からは遷移できない。
func (r *Reconciler) BeginEdit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != ModeViewing {
		return fmt.Errorf("cannot begin edit in %s mode", r.mode)
	}

	r.buffer = bufferFromDoc(r.doc)
	r.mode = ModeEditing
	return nil
}

// SetField はドラフトの1フィールドを更新する。Editing状態でのみ有効。
// フィールドの更新が保存を引き起こすことはない。
func (r *Reconciler) SetField(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != ModeEditing {
		return fmt.Errorf("cannot set field in %s mode", r.mode)
	}

	switch name {
	case "cpu":
		r.buffer.CPU = value
	case "motherboard":
		r.buffer.Motherboard = value
	case "gpu":
		r.buffer.GPU = value
	case "ram":
		r.buffer.RAM = value
	case "storage":
		r.buffer.Storage = value
	case "psu":
		r.buffer.PSU = value
	case "pcCase":
		r.buffer.PCCase = value
	default:
		return fmt.Errorf("unknown field %q", name)
	}

	return nil
}

// Buffer は現在のドラフトのスナップショットを返す。
func (r *Reconciler) Buffer() Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer
}

// Cancel はドラフトを無条件に破棄してViewingへ戻る。リモート呼び出しは発生しない。
func (r *Reconciler) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != ModeEditing {
		return fmt.Errorf("cannot cancel in %s mode", r.mode)
	}

	r.buffer = Buffer{}
	r.mode = ModeViewing
	return nil
}

// Save はドラフトを検証してからリモートへ保存する。
// 必須フィールドが未入力の場合はEditingのまま検証エラーを返し、リモート呼び出しは行わない。
// 保存に失敗した場合はドラフトを保持したままEditingへ戻る（データ損失なし）。
// 成功した場合はマージ結果を閲覧状態に反映してViewingへ遷移する。
func (r *Reconciler) Save(ctx context.Context, identityID string) (*model.Setup, error) {
	r.mu.Lock()
	if r.mode != ModeEditing {
		r.mu.Unlock()
		return nil, fmt.Errorf("cannot save in %s mode", r.mode)
	}

	if missing := r.buffer.missingRequired(); len(missing) > 0 {
		r.mu.Unlock()
		return nil, model.NewValidationError(missing)
	}

	// ドラフトのコピーからパッチを作り、保存中の共有を避ける
	draft := r.buffer
	patch := draft.toPatch()
	r.mode = ModeSaving
	r.mu.Unlock()

	merged, err := r.store.Save(ctx, identityID, patch)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		// ドラフトはそのまま残す
		r.mode = ModeEditing
		return nil, err
	}

	r.doc = merged
	r.buffer = Buffer{}
	r.mode = ModeViewing
	return merged, nil
}
