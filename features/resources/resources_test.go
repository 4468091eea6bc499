package resources

import (
	"reflect"
	"testing"
)

func TestParseAIR(t *testing.T) {
	air, err := ParseAIR("urn:air:sdxl:lora:civitai:915918@1244133")
	if err != nil {
		t.Fatalf("ParseAIR: %v", err)
	}
	want := &AIR{Ecosystem: "sdxl", Type: "lora", Source: "civitai", ModelID: 915918, VersionID: 1244133}
	if !reflect.DeepEqual(air, want) {
		t.Errorf("air = %+v, want %+v", air, want)
	}
	if s := air.String(); s != "urn:air:sdxl:lora:civitai:915918@1244133" {
		t.Errorf("String() = %q", s)
	}

	air, err = ParseAIR("urn:air:sd1:checkpoint:civitai:4201")
	if err != nil || air.ModelID != 4201 || air.VersionID != 0 {
		t.Errorf("ParseAIR without version = %+v, %v", air, err)
	}
	if _, err := ParseAIR("urn:air:sdxl"); err == nil {
		t.Error("expected error for incomplete URN")
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		arg  string
		want *Reference
	}{
		{"6CE0161689", &Reference{Type: TypeUnknown, Hash: "6ce0161689", Source: StyleCivitai}},
		{"urn:air:sdxl:lora:civitai:915918@1244133", &Reference{Type: TypeLORA, Prefix: "lora",
			AirURN: "urn:air:sdxl:lora:civitai:915918@1244133", ModelID: 915918, ModelVersionID: 1244133, Source: StyleCivitai}},
		{"model:4201@130072", &Reference{Type: TypeUnknown, ModelID: 4201, ModelVersionID: 130072, Source: StyleCivitai}},
		{"model:4201", &Reference{Type: TypeUnknown, ModelID: 4201, Source: StyleCivitai}},
		{"version:130072", &Reference{Type: TypeUnknown, ModelVersionID: 130072, Source: StyleCivitai}},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			ref, err := ParseReference(tt.arg)
			if err != nil {
				t.Fatalf("ParseReference: %v", err)
			}
			if !reflect.DeepEqual(ref, tt.want) {
				t.Errorf("ref = %+v, want %+v", ref, tt.want)
			}
		})
	}
	for _, arg := range []string{"", "model:x", "version:0", "model:1@y", "not a hash", "urn:air:sdxl"} {
		if ref, err := ParseReference(arg); err == nil {
			t.Errorf("ParseReference(%q) = %+v, want error", arg, ref)
		}
	}
}

func TestExtractModelHash(t *testing.T) {
	refs := ExtractModelHash("a cat\nSteps: 20, Model hash: 6CE0161689, Model: v1-5-pruned, Version: v1")
	want := []*Reference{{Type: TypeCheckpoint, Prefix: "model", Hash: "6ce0161689", Name: "v1-5-pruned", Source: StyleModelHash}}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("refs = %+v, want %+v", refs, want)
	}
	if refs := ExtractModelHash("Steps: 20, Model: v1-5"); refs != nil {
		t.Errorf("expected no reference without a hash, got %+v", refs)
	}
}

func TestExtractHashes(t *testing.T) {
	text := `a cat` + "\n" + `Steps: 20, Model: juggernaut, Hashes: {"model": "ABCDEF0123", ` +
		`"lora:loras/sub\\detail": "7c6bad76eb", "embed:easynegative": "c74b4e810b", ` +
		`"adetailer:face_yolov8n.pt": "e3b0c44298"}, Version: v1`
	want := []*Reference{
		{Type: TypeCheckpoint, Prefix: "model", Hash: "abcdef0123", Name: "juggernaut", Source: StyleHashes},
		{Type: TypeLORA, Prefix: "lora", Hash: "7c6bad76eb", Name: "detail", Source: StyleHashes},
		{Type: TypeTextualInversion, Prefix: "embed", Hash: "c74b4e810b", Name: "easynegative", Source: StyleHashes},
		{Type: TypeADetailer, Prefix: "adetailer", Hash: "e3b0c44298", Name: "face_yolov8n.pt", Source: StyleHashes},
	}
	if refs := ExtractHashes(text); !reflect.DeepEqual(refs, want) {
		t.Errorf("refs = %+v, want %+v", refs, want)
	}

	t.Run("not confused with lora hashes", func(t *testing.T) {
		if refs := ExtractHashes(`Steps: 20, Lora hashes: "x: 0123456789"`); refs != nil {
			t.Errorf("refs = %+v", refs)
		}
	})
	t.Run("unterminated", func(t *testing.T) {
		if refs := ExtractHashes(`Steps: 20, Hashes: {"model": "abc`); refs != nil {
			t.Errorf("refs = %+v", refs)
		}
	})
}

func TestExtractHashLists(t *testing.T) {
	text := `Steps: 20, Lora hashes: "add_detail: 7c6bad76eb54, dir/more: 0123456789ab", ` +
		`TI hashes: "easynegative: c74b4e810b03, easynegative: c74b4e810b03, bad: nothex", Version: v1`
	want := []*Reference{
		{Type: TypeLORA, Prefix: "lora", Hash: "7c6bad76eb54", Name: "add_detail", Source: StyleHashLists},
		{Type: TypeLORA, Prefix: "lora", Hash: "0123456789ab", Name: "more", Source: StyleHashLists},
		{Type: TypeTextualInversion, Prefix: "embed", Hash: "c74b4e810b03", Name: "easynegative", Source: StyleHashLists},
	}
	if refs := ExtractHashLists(text); !reflect.DeepEqual(refs, want) {
		t.Errorf("refs = %+v, want %+v", refs, want)
	}
}

func TestExtractCivitaiResources(t *testing.T) {
	text := `Steps: 20, Civitai resources: [{"type":"checkpoint","modelVersionId":128078,` +
		`"modelName":"SDXL","modelVersionName":"v1.0"},{"type":"lora","weight":0.8,` +
		`"modelVersionId":1244133,"modelName":"Detail","air":"urn:air:sdxl:lora:civitai:915918@1244133"}], ` +
		`Civitai metadata: {}`
	refs := ExtractCivitaiResources(text)
	if len(refs) != 2 {
		t.Fatalf("got %d refs: %+v", len(refs), refs)
	}
	checkpoint := &Reference{Type: TypeCheckpoint, Prefix: "checkpoint", Name: "SDXL", Version: "v1.0",
		ModelVersionID: 128078, Source: StyleCivitai}
	if !reflect.DeepEqual(refs[0], checkpoint) {
		t.Errorf("refs[0] = %+v, want %+v", refs[0], checkpoint)
	}
	lora := refs[1]
	if lora.Type != TypeLORA || lora.ModelID != 915918 || lora.ModelVersionID != 1244133 ||
		lora.AirURN != "urn:air:sdxl:lora:civitai:915918@1244133" || lora.Name != "Detail" {
		t.Errorf("refs[1] = %+v", lora)
	}
	if lora.Weight == nil || *lora.Weight != 0.8 {
		t.Errorf("weight = %v", lora.Weight)
	}
	if got := refs[0].Key(); got != "version:128078" {
		t.Errorf("checkpoint key = %q", got)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		ref  Reference
		want string
	}{
		{Reference{Hash: "ABCDEF012345", AirURN: "urn:air:sdxl:lora:civitai:1@2"}, "hash:abcdef0123"},
		{Reference{Hash: "abcdef0123"}, "hash:abcdef0123"},
		{Reference{AirURN: "urn:air:sdxl:lora:civitai:1@2", ModelID: 1, ModelVersionID: 2}, "air:urn:air:sdxl:lora:civitai:1@2"},
		{Reference{ModelID: 1, ModelVersionID: 2, Name: "x"}, "model:1@2"},
		{Reference{ModelVersionID: 2, Name: "x"}, "version:2"},
		{Reference{Name: "Foo", Version: "V1"}, "name:foo@v1"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.ref.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	t.Run("higher style wins", func(t *testing.T) {
		low := &Reference{Type: TypeUnknown, Name: "old name", Hash: "0123456789", Version: "v2", Source: StyleModelHash}
		high := &Reference{Type: TypeLORA, Name: "detail", Hash: "0123456789ab", Source: StyleHashLists}
		got := Dedupe([]*Reference{low, high})
		want := []*Reference{{Type: TypeLORA, Name: "detail", Hash: "0123456789ab", Version: "v2",
			Aliases: []string{"old name"}, Source: StyleHashLists}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Dedupe = %+v, want %+v", got[0], want[0])
		}
		if low.Aliases != nil || high.Aliases != nil {
			t.Error("inputs were modified")
		}
	})
	t.Run("unknown is back-filled", func(t *testing.T) {
		base := &Reference{Type: TypeCheckpoint, Name: "Unknown", Hash: "aaaaaaaaaa", Source: StyleCivitai}
		other := &Reference{Type: TypeLORA, Name: "real", Hash: "aaaaaaaaaa", Source: StyleModelHash}
		got := Dedupe([]*Reference{base, other})
		if len(got) != 1 || got[0].Name != "real" || got[0].Type != TypeCheckpoint || got[0].Aliases != nil {
			t.Errorf("Dedupe = %+v", got)
		}
	})
	t.Run("names compare case-insensitively", func(t *testing.T) {
		a := &Reference{Name: "a", Source: StyleCivitai}
		b := &Reference{Hash: "bbbbbbbbbb", Source: StyleModelHash}
		c := &Reference{Name: "A", Source: StyleHashes}
		got := Dedupe([]*Reference{a, b, c})
		if len(got) != 2 || got[0].Name != "a" || got[1].Hash != "bbbbbbbbbb" {
			t.Errorf("Dedupe = %+v", got)
		}
	})
}

func TestExtract(t *testing.T) {
	text := "a cat\nSteps: 20, Model hash: 6ce0161689, Model: v1-5, " +
		`Lora hashes: "add_detail: 7c6bad76eb54", ` +
		`Hashes: {"model": "6ce0161689", "lora:add_detail": "7c6bad76eb"}, Version: v1`
	want := []*Reference{
		{Type: TypeCheckpoint, Prefix: "model", Hash: "6ce0161689", Name: "v1-5", Source: StyleHashes},
		{Type: TypeLORA, Prefix: "lora", Hash: "7c6bad76eb54", Name: "add_detail", Source: StyleHashLists},
	}
	if got := Extract(text); !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %+v, want %+v", got, want)
	}
	if HasMarkers("a cat, Steps: 20") {
		t.Error("HasMarkers on text without markers")
	}
	if got := Extract("a cat, Steps: 20"); got != nil {
		t.Errorf("Extract = %+v", got)
	}
}
