package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeRestoresIntegers(t *testing.T) {
	arg := map[string]any{
		"rate":   int64(7),
		"ratio":  0.25,
		"queues": []any{int64(0), int64(1)},
		"nested": map[string]any{"burst": int64(32)},
		"name":   "eth0",
	}
	s, err := encode(createModuleReq{MClass: "Queue", Name: "q", Arg: arg})
	if err != nil {
		t.Fatal(err)
	}
	var got createModuleReq
	if err := decode(s, &got); err != nil {
		t.Fatal(err)
	}
	want := createModuleReq{MClass: "Queue", Name: "q", Arg: arg}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decode mismatch (-want +got):\n%s", diff)
	}

	s, err = encode(ModuleInfo{Name: "q", MClass: "Queue", Dump: int64(42)})
	if err != nil {
		t.Fatal(err)
	}
	var info ModuleInfo
	if err := decode(s, &info); err != nil {
		t.Fatal(err)
	}
	if info.Dump != int64(42) {
		t.Errorf("Dump = %#v, want int64(42)", info.Dump)
	}
}
