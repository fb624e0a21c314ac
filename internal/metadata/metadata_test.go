package metadata

import "testing"

func validJSON() []byte {
	return []byte(`{
		"dimensions": [4096, 2048],
		"tile_size": 256,
		"levels": [
			{"level": 1, "downsample": 2, "cols": 8, "rows": 4},
			{"level": 0, "downsample": 1, "cols": 16, "rows": 8}
		],
		"target_mpp": 0.25,
		"target_magnification": 40,
		"tile_format": "jpeg",
		"source_file": "slide.svs"
	}`)
}

func TestParseValid(t *testing.T) {
	meta, err := Parse(validJSON())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if meta.Width != 4096 || meta.Height != 2048 {
		t.Errorf("dimensions = %dx%d, want 4096x2048", meta.Width, meta.Height)
	}
	if len(meta.Levels) != 2 {
		t.Fatalf("len(Levels) = %d, want 2", len(meta.Levels))
	}
	if meta.Levels[0].Level != 0 || meta.Levels[1].Level != 1 {
		t.Errorf("levels not sorted ascending: %+v", meta.Levels)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"zero width", `{"dimensions":[0,10],"tile_size":256,"levels":[{"level":0,"downsample":1,"cols":1,"rows":1}]}`},
		{"zero tile size", `{"dimensions":[10,10],"tile_size":0,"levels":[{"level":0,"downsample":1,"cols":1,"rows":1}]}`},
		{"no levels", `{"dimensions":[10,10],"tile_size":256,"levels":[]}`},
		{"zero downsample", `{"dimensions":[10,10],"tile_size":256,"levels":[{"level":0,"downsample":0,"cols":1,"rows":1}]}`},
		{"zero cols", `{"dimensions":[10,10],"tile_size":256,"levels":[{"level":0,"downsample":1,"cols":0,"rows":1}]}`},
		{"duplicate level", `{"dimensions":[10,10],"tile_size":256,"levels":[{"level":0,"downsample":1,"cols":1,"rows":1},{"level":0,"downsample":2,"cols":1,"rows":1}]}`},
		{"malformed json", `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.json)); err == nil {
				t.Errorf("Parse(%s) succeeded, want error", tt.name)
			}
		})
	}
}
