package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleDirectory = `{
  "classes": [
    {"id": "cs101", "subject": "Data Structures", "room": "Room 204", "location": {"lat": 12.9716, "lng": 77.5946}},
    {"id": "ma201", "subject": "Linear Algebra", "location": {"lat": 12.97, "lng": 77.59, "name": "Hall B"}},
    {"id": "hs100", "subject": "World History"}
  ],
  "students": [
    {"id": "stu-1", "name": "Asha Rao"},
    {"id": "stu-2", "name": "Vikram Iyer"}
  ]
}`

func writeDirectory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write directory: %v", err)
	}
	return path
}

func TestLoadAndLookup(t *testing.T) {
	t.Parallel()

	dir, err := Load(writeDirectory(t, sampleDirectory))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()

	class, err := dir.Class(ctx, "cs101")
	if err != nil {
		t.Fatalf("class: %v", err)
	}
	if class.Label() != "Data Structures" || class.RoomName() != "Room 204" {
		t.Fatalf("unexpected class: %+v", class)
	}

	other, err := dir.Class(ctx, "ma201")
	if err != nil {
		t.Fatalf("class ma201: %v", err)
	}
	if other.RoomName() != "Hall B" {
		t.Fatalf("room = %q, want location name", other.RoomName())
	}

	anchor, err := dir.ResolveAnchor(ctx, "cs101")
	if err != nil || anchor == nil || anchor.Lat != 12.9716 {
		t.Fatalf("anchor = %+v, %v", anchor, err)
	}
	noAnchor, err := dir.ResolveAnchor(ctx, "hs100")
	if err != nil || noAnchor != nil {
		t.Fatalf("anchor without location = %+v, %v", noAnchor, err)
	}

	name, err := dir.StudentName(ctx, "stu-2")
	if err != nil || name != "Vikram Iyer" {
		t.Fatalf("student name = %q, %v", name, err)
	}
	if _, err := dir.StudentName(ctx, "stu-9"); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("expected student not found, got %v", err)
	}
	if _, err := dir.Class(ctx, "zz999"); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("expected class not found, got %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	t.Parallel()

	dir, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !dir.Empty() {
		t.Fatal("expected empty directory")
	}
}

func TestLoadRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"missing subject":   `{"classes":[{"id":"cs101"}]}`,
		"bad latitude":      `{"classes":[{"id":"cs101","subject":"x","location":{"lat":91,"lng":0}}]}`,
		"missing name":      `{"students":[{"id":"stu-1"}]}`,
		"duplicate class":   `{"classes":[{"id":"a","subject":"x"},{"id":"a","subject":"y"}]}`,
		"duplicate student": `{"students":[{"id":"s","name":"x"},{"id":"s","name":"y"}]}`,
		"malformed":         `{"classes":`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(writeDirectory(t, content)); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}
