package scheduler

import (
	"testing"
	"time"

	"github.com/formflow/formflow/pkg/platform"
)

var baseTime = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func taggedFile(name string, mtime time.Time, tags ...string) platform.FileInfo {
	return platform.FileInfo{Name: name, Tags: tags, Modified: mtime}
}

func TestParseModuleName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"110001-UDS.csv", "UDS"},
		{"110001-ftld.json", "FTLD"},
		{"a-b-LBD.csv", "LBD"},
		{"noseparator.csv", ""},
		{"trailing-.csv", ""},
		{"110001-UDS", "UDS"},
	}

	for _, tt := range tests {
		if got := ParseModuleName(tt.name); got != tt.want {
			t.Errorf("ParseModuleName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPipelineQueue_AddFiles(t *testing.T) {
	q := NewPipelineQueue([]string{"UDS", "FTLD"}, []string{"queued"})

	files := []platform.FileInfo{
		taggedFile("x-UDS.csv", baseTime.Add(3*time.Minute), "queued"),
		taggedFile("y-UDS.csv", baseTime.Add(1*time.Minute), "queued"),
		taggedFile("z-other.csv", baseTime, "queued"), // unqueued module: dropped
		taggedFile("w-FTLD.csv", baseTime, "other"),   // missing queue tag
		taggedFile("v-UDS.txt", baseTime, "queued"),   // wrong extension
	}

	added := q.AddFiles(files, []string{".csv"})
	if added != 2 {
		t.Fatalf("AddFiles = %d, want 2", added)
	}
	if q.Skipped() != 1 {
		t.Errorf("Skipped = %d, want 1", q.Skipped())
	}

	module, bucket := q.NextQueue()
	if module != "UDS" {
		t.Fatalf("first NextQueue module = %s, want UDS", module)
	}
	if len(bucket) != 2 || bucket[0].Name != "y-UDS.csv" || bucket[1].Name != "x-UDS.csv" {
		t.Errorf("UDS bucket = %v, want [y-UDS.csv x-UDS.csv] in mtime order", bucket)
	}
}

func TestPipelineQueue_SortByModifiedTime(t *testing.T) {
	q := NewPipelineQueue([]string{"UDS"}, nil)

	files := []platform.FileInfo{
		taggedFile("c-UDS.csv", baseTime.Add(30*time.Second)),
		taggedFile("a-UDS.csv", baseTime.Add(10*time.Second)),
		taggedFile("d-UDS.csv", baseTime.Add(40*time.Second)),
		taggedFile("b-UDS.csv", baseTime.Add(20*time.Second)),
	}
	q.AddFiles(files, nil)

	_, bucket := q.NextQueue()
	want := []string{"a-UDS.csv", "b-UDS.csv", "c-UDS.csv", "d-UDS.csv"}
	for i, name := range want {
		if bucket[i].Name != name {
			t.Errorf("bucket[%d] = %s, want %s", i, bucket[i].Name, name)
		}
	}
}

func TestPipelineQueue_EqualTimesKeepArrivalOrder(t *testing.T) {
	q := NewPipelineQueue([]string{"UDS"}, nil)

	files := []platform.FileInfo{
		taggedFile("c-UDS.csv", baseTime),
		taggedFile("a-UDS.csv", baseTime),
		taggedFile("b-UDS.csv", baseTime),
	}
	q.AddFiles(files, nil)

	_, bucket := q.NextQueue()
	want := []string{"c-UDS.csv", "a-UDS.csv", "b-UDS.csv"}
	for i, name := range want {
		if bucket[i].Name != name {
			t.Errorf("bucket[%d] = %s, want %s (listing order)", i, bucket[i].Name, name)
		}
	}
}

func TestPipelineQueue_RoundRobin(t *testing.T) {
	q := NewPipelineQueue([]string{"UDS", "FTLD", "LBD"}, nil)
	q.AddFiles([]platform.FileInfo{
		taggedFile("a-UDS.csv", baseTime),
		taggedFile("b-UDS.csv", baseTime),
		taggedFile("c-UDS.csv", baseTime),
		taggedFile("d-FTLD.csv", baseTime),
		taggedFile("e-LBD.csv", baseTime),
	}, nil)

	// Four consecutive calls visit UDS, FTLD, LBD, UDS regardless of
	// bucket sizes.
	want := []string{"UDS", "FTLD", "LBD", "UDS"}
	for i, w := range want {
		module, _ := q.NextQueue()
		if module != w {
			t.Errorf("NextQueue call %d = %s, want %s", i+1, module, w)
		}
	}
}

func TestPipelineQueue_EmptyAndClear(t *testing.T) {
	q := NewPipelineQueue([]string{"UDS", "FTLD"}, nil)
	if !q.Empty() {
		t.Error("new queue should be empty")
	}

	q.AddFiles([]platform.FileInfo{
		taggedFile("a-UDS.csv", baseTime),
		taggedFile("b-FTLD.csv", baseTime),
	}, nil)

	if q.Empty() {
		t.Error("queue with files should not be empty")
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}

	q.Clear("UDS")
	if q.Len() != 1 {
		t.Errorf("Len after Clear(UDS) = %d, want 1", q.Len())
	}
	q.Clear("ftld")
	if !q.Empty() {
		t.Error("queue should be empty after clearing both buckets")
	}
}

func TestPipelineQueue_SchedulerScenario(t *testing.T) {
	// Files named x-UDS.csv (mtime=3), y-UDS.csv (mtime=1), and
	// z-other.csv (non-matching pattern): AddFiles accepts 2, the first
	// NextQueue returns UDS with [y, x], and z is dropped silently.
	q := NewPipelineQueue([]string{"UDS", "FTLD"}, []string{"queued"})

	added := q.AddFiles([]platform.FileInfo{
		taggedFile("x-UDS.csv", baseTime.Add(3*time.Second), "queued"),
		taggedFile("y-UDS.csv", baseTime.Add(1*time.Second), "queued"),
		taggedFile("z-other.csv", baseTime.Add(2*time.Second), "queued"),
	}, []string{".csv"})

	if added != 2 {
		t.Fatalf("AddFiles = %d, want 2", added)
	}

	module, bucket := q.NextQueue()
	if module != "UDS" {
		t.Fatalf("NextQueue module = %s, want UDS", module)
	}
	if len(bucket) != 2 || bucket[0].Name != "y-UDS.csv" || bucket[1].Name != "x-UDS.csv" {
		t.Errorf("bucket = %v, want [y-UDS.csv x-UDS.csv]", bucket)
	}
}
