package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RosterStore looks up course sections and their students.
type RosterStore interface {
	Section(ctx context.Context, sectionID string) (CourseSection, error)
	Student(ctx context.Context, studentID string) (Student, error)
}

// RosterWriter registers reference data.
type RosterWriter interface {
	PutStudent(ctx context.Context, st Student) error
	PutSection(ctx context.Context, sec CourseSection) error
}

// MemoryRoster keeps sections and students in memory. Used by tests and
// single-process deployments.
type MemoryRoster struct {
	mu       sync.RWMutex
	sections map[string]CourseSection
	students map[string]Student
}

func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{
		sections: make(map[string]CourseSection),
		students: make(map[string]Student),
	}
}

func (r *MemoryRoster) Section(_ context.Context, sectionID string) (CourseSection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sec, ok := r.sections[sectionID]
	if !ok {
		return CourseSection{}, fmt.Errorf("%w: %s", ErrSectionNotFound, sectionID)
	}
	sec.StudentIDs = append([]string(nil), sec.StudentIDs...)
	return sec, nil
}

func (r *MemoryRoster) Student(_ context.Context, studentID string) (Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.students[studentID]
	if !ok {
		return Student{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}
	return st, nil
}

func (r *MemoryRoster) PutStudent(_ context.Context, st Student) error {
	st.ID = strings.TrimSpace(st.ID)
	if st.ID == "" {
		return fmt.Errorf("%w: student id required", ErrInvalidRoster)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[st.ID] = st
	return nil
}

// PutSection replaces the section. Enrolled ids must already be registered
// students.
func (r *MemoryRoster) PutSection(_ context.Context, sec CourseSection) error {
	sec.ID = strings.TrimSpace(sec.ID)
	if sec.ID == "" {
		return fmt.Errorf("%w: section id required", ErrInvalidRoster)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := uniqueIDs(sec.StudentIDs)
	for _, id := range ids {
		if _, ok := r.students[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStudent, id)
		}
	}
	sort.Strings(ids)
	sec.StudentIDs = ids
	r.sections[sec.ID] = sec
	return nil
}

// uniqueIDs trims ids and drops blanks and duplicates, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
