package scanx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

func TestStatic(t *testing.T) {
	t.Parallel()

	for _, level := range []types.RiskLevel{types.RiskLow, types.RiskHigh, types.RiskCritical} {
		got, err := Static(level).Scan(context.Background(), "/nonexistent")
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if got != level {
			t.Errorf("Scan() = %v, want %v", got, level)
		}
	}
}

func TestFootprint(t *testing.T) {
	t.Parallel()

	pats := patterns.Default()
	if err := pats.Compile(); err != nil {
		t.Fatal(err)
	}

	makeTree := func(t *testing.T, adFiles int) string {
		t.Helper()
		dir := t.TempDir()
		smali := filepath.Join(dir, "smali", "com", "example")
		if err := os.MkdirAll(smali, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "AndroidManifest.xml"),
			[]byte(`<manifest package="com.example"><application/></manifest>`), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(smali, "Main.smali"), []byte(".class Main"), 0o644); err != nil {
			t.Fatal(err)
		}
		adDir := filepath.Join(dir, "smali", "com", "google", "android", "gms", "ads")
		if err := os.MkdirAll(adDir, 0o755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < adFiles; i++ {
			name := filepath.Join(adDir, fmt.Sprintf("Ad%d.smali", i))
			if err := os.WriteFile(name, []byte(".class Ad"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		return dir
	}

	tests := []struct {
		name    string
		adFiles int
		want    types.RiskLevel
	}{
		{"clean tree", 0, types.RiskLow},
		{"light footprint", 3, types.RiskMedium},
		{"heavy footprint", 25, types.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := makeTree(t, tt.adFiles)

			got, err := Footprint(pats).Scan(context.Background(), dir)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Scan() = %v, want %v", got, tt.want)
			}
		})
	}
}
