package memory

import (
	"context"

	"campus-quiz-service/internal/app"
)

// StaticCourseDirectory resolves course names from a fixed map, usually loaded from config.
type StaticCourseDirectory struct {
	names map[string]string
}

func NewStaticCourseDirectory(names map[string]string) *StaticCourseDirectory {
	copied := make(map[string]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return &StaticCourseDirectory{names: copied}
}

func (d *StaticCourseDirectory) CourseName(_ context.Context, courseID string) (string, error) {
	if name, ok := d.names[courseID]; ok {
		return name, nil
	}
	return "", app.ErrCourseNotFound
}
