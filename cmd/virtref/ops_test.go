package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kk-code-lab/virtref/internal/refdoc"
	"github.com/kk-code-lab/virtref/internal/refs"
)

// writeSliceDocs writes n per-file reference documents, each a single
// time step of array T over dims Time,Y,X, and returns their paths.
func writeSliceDocs(t *testing.T, dir string, n int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		s := refs.NewStore()
		s.Sources = []string{fmt.Sprintf("s3://bucket/f%d.nc", i)}
		s.Arrays["T"] = &refs.ArrayMeta{
			Name:       "T",
			Shape:      []int{1, 4, 4},
			ChunkShape: []int{1, 4, 4},
			Dtype:      "<f4",
			Dimensions: []string{"Time", "Y", "X"},
		}
		s.Chunks["T/0.0.0"] = refs.RemoteLocator(0, 1024, 64)
		paths[i] = filepath.Join(dir, fmt.Sprintf("f%d.json", i))
		if err := refdoc.WriteFile(paths[i], s); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return paths
}

func writePlan(t *testing.T, dir string, docs []string, extra string) string {
	t.Helper()
	planPath := filepath.Join(dir, "plan.yaml")
	body := "sources:\n"
	for _, d := range docs {
		body += "  - " + d + "\n"
	}
	body += "concat_dims: [Time]\n" + extra
	if err := os.WriteFile(planPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	return planPath
}

func TestRunCombineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	docs := writeSliceDocs(t, dir, 3)
	planPath := writePlan(t, dir, docs, "")
	outPath := filepath.Join(dir, "merged.json")

	if err := runCombine(planPath, outPath, 2, false); err != nil {
		t.Fatalf("runCombine: %v", err)
	}
	merged, err := refdoc.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	m := merged.Arrays["T"]
	if m == nil || m.Shape[0] != 3 {
		t.Fatalf("merged T metadata: %+v", m)
	}
	if len(merged.Sources) != 3 {
		t.Fatalf("merged sources = %v", merged.Sources)
	}
	loc, ok := merged.Lookup(refs.Key{Array: "T", Coords: []int{2, 0, 0}})
	if !ok || loc.Source != 2 {
		t.Fatalf("T/2.0.0 = %+v ok=%v", loc, ok)
	}
}

func TestRunCombineWithCache(t *testing.T) {
	dir := t.TempDir()
	docs := writeSliceDocs(t, dir, 2)
	extra := "cache: " + filepath.Join(dir, "refs.db") + "\n" +
		"output: " + filepath.Join(dir, "merged.json") + "\n"
	planPath := writePlan(t, dir, docs, extra)

	// output comes from the plan; run twice so the second pass hits
	// the cache
	if err := runCombine(planPath, "", 0, false); err != nil {
		t.Fatalf("runCombine: %v", err)
	}
	if err := runCombine(planPath, "", 0, false); err != nil {
		t.Fatalf("runCombine (cached): %v", err)
	}
	merged, err := refdoc.ReadFile(filepath.Join(dir, "merged.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if merged.Arrays["T"].Shape[0] != 2 {
		t.Fatalf("merged T shape: %v", merged.Arrays["T"].Shape)
	}
}

func TestRunCombineRequiresPlanAndOutput(t *testing.T) {
	if err := runCombine("", "", 0, false); !errors.Is(err, ErrPlanRequired) {
		t.Fatalf("expected ErrPlanRequired, got %v", err)
	}
	dir := t.TempDir()
	docs := writeSliceDocs(t, dir, 1)
	planPath := writePlan(t, dir, docs, "")
	if err := runCombine(planPath, "", 0, false); !errors.Is(err, ErrOutputRequired) {
		t.Fatalf("expected ErrOutputRequired, got %v", err)
	}
}

func TestRunValidateAndInspect(t *testing.T) {
	dir := t.TempDir()
	docs := writeSliceDocs(t, dir, 1)
	if err := runValidate(docs[0], true); err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if err := runInspect(docs[0], true); err != nil {
		t.Fatalf("runInspect: %v", err)
	}
	if err := runValidate("", false); !errors.Is(err, ErrInputRequired) {
		t.Fatalf("expected ErrInputRequired, got %v", err)
	}
}

func TestRunConvert(t *testing.T) {
	dir := t.TempDir()
	docs := writeSliceDocs(t, dir, 1)
	outPath := filepath.Join(dir, "f0.cbor.zst")
	if err := runConvert(docs[0], outPath); err != nil {
		t.Fatalf("runConvert: %v", err)
	}
	want, err := refdoc.ReadFile(docs[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got, err := refdoc.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile converted: %v", err)
	}
	if !refs.Equal(want, got) {
		t.Fatalf("conversion changed the store")
	}
}

func TestRunUnknownModeUsesUsageExitCode(t *testing.T) {
	err := run("bogus", "", "", "", 0, false)
	var ec *exitCodeError
	if !errors.As(err, &ec) {
		t.Fatalf("expected exitCodeError, got %T: %v", err, err)
	}
	if ec.ExitCode() != 2 {
		t.Fatalf("exit code = %d, want 2", ec.ExitCode())
	}
}

func TestLoadPlanRejectsEmptySources(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(planPath, []byte("concat_dims: [Time]\n"), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	if _, err := loadPlan(planPath); err == nil {
		t.Fatalf("expected error for plan without sources")
	}
}
