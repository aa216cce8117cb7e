// Package assignment tracks homework assignments and the files students
// submit against them. Submissions arrive over the framed upload
// protocol; completed ones are persisted through a pluggable Store and
// announced on the push channel.
package assignment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
)

// Assignment is one homework item students can submit files for.
type Assignment struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     string    `json:"dueDate,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Upload is one accepted submission.
type Upload struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignmentId"`
	StudentName  string    `json:"studentName"`
	Filename     string    `json:"filename"`
	StoredName   string    `json:"storedName"`
	Size         int64     `json:"size"`
	Location     string    `json:"location"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Notifier is the push channel uploads are announced on. A nil Notifier
// disables announcements.
type Notifier interface {
	Broadcast(text string)
}

// Manager owns assignments and their submission records.
type Manager struct {
	mu          sync.Mutex
	assignments map[string]*Assignment
	order       []string
	uploads     map[string][]*Upload // keyed by assignment id
	seq         int
	uploadSeq   int

	store    Store
	notifier Notifier
	logger   *zap.Logger
}

func NewManager(store Store, notifier Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		assignments: make(map[string]*Assignment),
		uploads:     make(map[string][]*Upload),
		store:       store,
		notifier:    notifier,
		logger:      logger,
	}
}

// Create registers a new assignment with a sequential "A<n>" id.
func (m *Manager) Create(title, description, dueDate string) (*Assignment, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	a := &Assignment{
		ID:          fmt.Sprintf("A%d", m.seq),
		Title:       title,
		Description: strings.TrimSpace(description),
		DueDate:     strings.TrimSpace(dueDate),
		CreatedAt:   time.Now(),
	}
	m.assignments[a.ID] = a
	m.order = append(m.order, a.ID)
	return a, nil
}

// Get returns an assignment by id.
func (m *Manager) Get(id string) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// List returns all assignments in creation order.
func (m *Manager) List() []*Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Assignment, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.assignments[id])
	}
	return out
}

// Uploads returns the submissions recorded against an assignment.
func (m *Manager) Uploads(assignmentID string) ([]*Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assignments[assignmentID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, assignmentID)
	}
	ups := m.uploads[assignmentID]
	out := make([]*Upload, len(ups))
	copy(out, ups)
	return out, nil
}

// RecordUpload persists a completed submission and announces it. The
// stored name is "<student>_<millis>_<filename>" with both components
// sanitized, so submissions never collide or escape the store.
func (m *Manager) RecordUpload(ctx context.Context, hdr protocol.UploadHeader, data []byte) (*Upload, error) {
	student := sanitize(hdr.StudentName)
	filename := sanitize(hdr.Filename)
	if student == "" {
		return nil, ErrEmptyStudent
	}
	if filename == "" {
		return nil, ErrEmptyFile
	}
	if _, err := m.Get(hdr.AssignmentID); err != nil {
		return nil, err
	}

	storedName := fmt.Sprintf("%s_%d_%s", student, time.Now().UnixMilli(), filename)
	location, err := m.store.Save(ctx, hdr.AssignmentID, storedName, data)
	if err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}

	m.mu.Lock()
	m.uploadSeq++
	up := &Upload{
		ID:           fmt.Sprintf("U%d", m.uploadSeq),
		AssignmentID: hdr.AssignmentID,
		StudentName:  hdr.StudentName,
		Filename:     hdr.Filename,
		StoredName:   storedName,
		Size:         int64(len(data)),
		Location:     location,
		UploadedAt:   time.Now(),
	}
	m.uploads[hdr.AssignmentID] = append(m.uploads[hdr.AssignmentID], up)
	m.mu.Unlock()

	m.logger.Info("assignment upload recorded",
		zap.String("assignment_id", up.AssignmentID),
		zap.String("student", up.StudentName),
		zap.String("stored_name", up.StoredName),
		zap.Int64("size", up.Size))

	if m.notifier != nil {
		m.notifier.Broadcast(strings.TrimSuffix(string(protocol.MustEncode(protocol.TypeAssignmentUpload, map[string]any{
			"assignmentId": up.AssignmentID,
			"studentName":  up.StudentName,
			"filename":     up.Filename,
			"size":         up.Size,
			"storedPath":   up.Location,
			"uploadedAt":   up.UploadedAt.UnixMilli(),
		})), "\n"))
	}
	return up, nil
}

// sanitize strips path components and replaces anything outside
// [A-Za-z0-9._-] so stored names are safe on every backend.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
