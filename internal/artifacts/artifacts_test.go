package artifacts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"fsoi/internal/artifacts"
	"fsoi/internal/logging"
	"fsoi/internal/storage"
	"fsoi/internal/testsupport"
)

func TestCycleString(t *testing.T) {
	cases := map[string][]string{
		"00Z":    {"00"},
		"00Z12Z": {"0", "12"},
		"06Z18Z": {"06", "18"},
		"":       nil,
	}
	for want, cycles := range cases {
		if got := artifacts.CycleString(cycles); got != want {
			t.Fatalf("CycleString(%v) = %q, want %q", cycles, got, want)
		}
	}
}

func TestTemplatesResolvePaths(t *testing.T) {
	summary := artifacts.SummaryTemplates("/w/plots/summary")
	if len(summary) != len(artifacts.Metrics) {
		t.Fatalf("expected one template per metric, got %d", len(summary))
	}
	path := summary[0].Resolve(map[string]string{artifacts.CenterPlaceholder: "GMAO", artifacts.CyclePlaceholder: "00Z"})
	if path != "/w/plots/summary/GMAO/GMAO_ImpPerOb_00Z.png" {
		t.Fatalf("unexpected summary path %s", path)
	}
	if key := summary[0].Key("abc", path); key != "abc/GMAO_ImpPerOb_00Z.png" {
		t.Fatalf("unexpected summary key %s", key)
	}

	compare := artifacts.CompareTemplates("/w/plots/compare/full")
	path = compare[2].Resolve(map[string]string{artifacts.CyclePlaceholder: "00Z06Z"})
	if path != "/w/plots/compare/full/ObCnt_00Z06Z.png" {
		t.Fatalf("unexpected compare path %s", path)
	}
	if key := compare[2].Key("abc", path); key != "abc/comparefull_ObCnt_00Z06Z.png" {
		t.Fatalf("unexpected compare key %s", key)
	}
}

func TestStoreSummarySkipsMissingFiles(t *testing.T) {
	base := t.TempDir()
	summaryRoot := filepath.Join(base, "plots", "summary")
	testsupport.WriteFile(t, filepath.Join(summaryRoot, "GMAO", "GMAO_ImpPerOb_00Z.png"), 16)
	testsupport.WriteFile(t, filepath.Join(summaryRoot, "GMAO", "GMAO_TotImp_00Z.png"), 16)
	testsupport.WriteFile(t, filepath.Join(summaryRoot, "NRL", "NRL_ObCnt_00Z.png"), 16)

	objects, err := storage.NewLocalStore(filepath.Join(base, "objects"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	cache := artifacts.NewCache(objects, "fsoi-cache", logging.NewNop())

	keys, err := cache.StoreSummary(context.Background(), "fp", summaryRoot, []string{"GMAO", "NRL", "JMA"}, []string{"00"})
	if err != nil {
		t.Fatalf("StoreSummary: %v", err)
	}
	want := []string{"fp/GMAO_ImpPerOb_00Z.png", "fp/GMAO_TotImp_00Z.png", "fp/NRL_ObCnt_00Z.png"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	stored, err := objects.ObjectPath("fsoi-cache", "fp/NRL_ObCnt_00Z.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("expected uploaded object: %v", err)
	}
}

func TestStoreCompareReturnsEmptyWhenNothingExists(t *testing.T) {
	objects, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	keys, err := artifacts.NewCache(objects, "fsoi-cache", nil).StoreCompare(context.Background(), "fp", t.TempDir(), []string{"00"})
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys, got %v %v", keys, err)
	}
}

type failingUploader struct{}

func (failingUploader) Upload(context.Context, string, string, string) error {
	return errors.New("bucket unreachable")
}

func TestStoreReportsUploadFailures(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "FracImp_00Z.png"), 8)
	_, err := artifacts.NewCache(failingUploader{}, "b", nil).StoreCompare(context.Background(), "fp", dir, []string{"00"})
	if err == nil {
		t.Fatal("expected upload failure")
	}
}
