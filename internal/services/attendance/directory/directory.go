// Package directory serves read-only class and student lookups.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/rollcall-app/rollcall/internal/platform/errors"
	"github.com/rollcall-app/rollcall/internal/services/attendance/domain/geo"
)

var (
	// ErrClassNotFound indicates an unknown class id.
	ErrClassNotFound = apperrors.New(apperrors.CodeNotFound, "class not found")
	// ErrStudentNotFound indicates an unknown student id.
	ErrStudentNotFound = apperrors.New(apperrors.CodeNotFound, "student not found")
)

// Location is a class's room coordinates as stored in the directory file.
type Location struct {
	Lat  float64 `json:"lat" validate:"latitude"`
	Lng  float64 `json:"lng" validate:"longitude"`
	Name string  `json:"name,omitempty"`
}

// Class is one directory class entry.
type Class struct {
	ID       string    `json:"id" validate:"required"`
	Subject  string    `json:"subject" validate:"required"`
	Room     string    `json:"room,omitempty"`
	Location *Location `json:"location,omitempty" validate:"omitempty"`
}

// Label is the human-readable class name.
func (c Class) Label() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.ID
}

// RoomName names where the class meets.
func (c Class) RoomName() string {
	switch {
	case c.Room != "":
		return c.Room
	case c.Location != nil && c.Location.Name != "":
		return c.Location.Name
	default:
		return c.Label()
	}
}

// Anchor returns the class location as a geo point, or nil.
func (c Class) Anchor() *geo.Point {
	if c.Location == nil {
		return nil
	}
	return &geo.Point{Lat: c.Location.Lat, Lng: c.Location.Lng}
}

// Student is one directory student entry.
type Student struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// File is the on-disk directory document.
type File struct {
	Classes  []Class   `json:"classes" validate:"dive"`
	Students []Student `json:"students" validate:"dive"`
}

// Directory is the lookup contract consumed by the attendance service.
type Directory interface {
	Class(ctx context.Context, classID string) (Class, error)
	StudentName(ctx context.Context, studentID string) (string, error)
}

// Static is an in-memory directory.
type Static struct {
	classes  map[string]Class
	students map[string]Student
}

// NewStatic validates f and indexes it by id.
func NewStatic(f File) (*Static, error) {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(f); err != nil {
		return nil, fmt.Errorf("validate directory: %w", err)
	}
	s := &Static{
		classes:  make(map[string]Class, len(f.Classes)),
		students: make(map[string]Student, len(f.Students)),
	}
	for _, class := range f.Classes {
		class.ID = strings.TrimSpace(class.ID)
		if _, ok := s.classes[class.ID]; ok {
			return nil, fmt.Errorf("duplicate class id %q", class.ID)
		}
		s.classes[class.ID] = class
	}
	for _, student := range f.Students {
		student.ID = strings.TrimSpace(student.ID)
		if _, ok := s.students[student.ID]; ok {
			return nil, fmt.Errorf("duplicate student id %q", student.ID)
		}
		s.students[student.ID] = student
	}
	return s, nil
}

// Load reads a JSON directory file. An empty path yields an empty directory.
func Load(path string) (*Static, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewStatic(File{})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode directory %s: %w", path, err)
	}
	return NewStatic(f)
}

// Empty reports whether the directory has no classes.
func (s *Static) Empty() bool {
	return s == nil || len(s.classes) == 0
}

// Class returns one class by id.
func (s *Static) Class(_ context.Context, classID string) (Class, error) {
	if s == nil {
		return Class{}, ErrClassNotFound
	}
	class, ok := s.classes[strings.TrimSpace(classID)]
	if !ok {
		return Class{}, ErrClassNotFound
	}
	return class, nil
}

// StudentName returns a student's display name.
func (s *Static) StudentName(_ context.Context, studentID string) (string, error) {
	if s == nil {
		return "", ErrStudentNotFound
	}
	student, ok := s.students[strings.TrimSpace(studentID)]
	if !ok {
		return "", ErrStudentNotFound
	}
	return student.Name, nil
}

// ResolveAnchor returns the class's default session anchor.
func (s *Static) ResolveAnchor(ctx context.Context, classID string) (*geo.Point, error) {
	class, err := s.Class(ctx, classID)
	if err != nil {
		return nil, err
	}
	return class.Anchor(), nil
}
