package model

import (
	"reflect"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestSetupPatch_IsEmpty(t *testing.T) {
	empty := &SetupPatch{}
	if !empty.IsEmpty() {
		t.Error("expected empty patch to report IsEmpty")
	}

	withField := &SetupPatch{GPU: strPtr("RTX 4060")}
	if withField.IsEmpty() {
		t.Error("expected non-empty patch to not report IsEmpty")
	}

	// 空文字列のポインタも「空に上書き」という変更なので空パッチではない
	overwriteToEmpty := &SetupPatch{GPU: strPtr("")}
	if overwriteToEmpty.IsEmpty() {
		t.Error("expected overwrite-to-empty patch to not report IsEmpty")
	}
}

func TestSetupPatch_Apply_MergesOnlyPresentFields(t *testing.T) {
	base := Setup{
		UserID:      "user-1",
		CPU:         "Ryzen 5 5600",
		Motherboard: "B550M",
		RAM:         "16GB DDR4",
		Storage:     "1TB NVMe",
		PSU:         "600W",
	}

	patch := &SetupPatch{
		CPU: strPtr("Ryzen 7 5700X"),
		GPU: strPtr("RTX 4060"),
	}

	merged := patch.Apply(base)

	if merged.CPU != "Ryzen 7 5700X" {
		t.Errorf("CPU = %q, want overwritten value", merged.CPU)
	}
	if merged.GPU != "RTX 4060" {
		t.Errorf("GPU = %q, want overwritten value", merged.GPU)
	}
	// パッチに存在しないフィールドは維持されること
	if merged.Motherboard != "B550M" || merged.RAM != "16GB DDR4" || merged.Storage != "1TB NVMe" || merged.PSU != "600W" {
		t.Errorf("unexpected mutation of absent fields: %+v", merged)
	}
	if merged.UserID != "user-1" {
		t.Errorf("UserID = %q, want preserved", merged.UserID)
	}
}

func TestSetupPatch_Apply_EmptyPointerOverwritesToEmpty(t *testing.T) {
	base := Setup{GPU: "RTX 4060"}

	merged := (&SetupPatch{GPU: strPtr("")}).Apply(base)

	if merged.GPU != "" {
		t.Errorf("GPU = %q, want empty after overwrite", merged.GPU)
	}
}

func TestSetupPatch_Apply_DoesNotMutateBase(t *testing.T) {
	base := Setup{CPU: "Ryzen 5 5600"}

	_ = (&SetupPatch{CPU: strPtr("Ryzen 7 5700X")}).Apply(base)

	if base.CPU != "Ryzen 5 5600" {
		t.Errorf("base.CPU = %q, want unchanged", base.CPU)
	}
}

func TestSetup_MissingRequiredFields(t *testing.T) {
	complete := Setup{
		CPU:         "Ryzen 5 5600",
		Motherboard: "B550M",
		RAM:         "16GB DDR4",
		Storage:     "1TB NVMe",
		PSU:         "600W",
	}
	// GPUとPCCaseは任意フィールドであり必須判定に含まれないこと
	if missing := complete.MissingRequiredFields(); len(missing) != 0 {
		t.Errorf("missing = %v, want none", missing)
	}

	partial := Setup{CPU: "Ryzen 5 5600", RAM: "16GB DDR4"}
	want := []string{"motherboard", "storage", "psu"}
	if got := partial.MissingRequiredFields(); !reflect.DeepEqual(got, want) {
		t.Errorf("missing = %v, want %v", got, want)
	}

	empty := Setup{}
	wantAll := []string{"cpu", "motherboard", "ram", "storage", "psu"}
	if got := empty.MissingRequiredFields(); !reflect.DeepEqual(got, wantAll) {
		t.Errorf("missing = %v, want %v", got, wantAll)
	}
}
