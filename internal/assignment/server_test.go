package assignment

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
)

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Broadcast(text string) {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.texts))
	copy(out, n.texts)
	return out
}

type uploadEnv struct {
	server   *UploadServer
	manager  *Manager
	notifier *recordingNotifier
	root     string
}

func newUploadEnv(t *testing.T) *uploadEnv {
	t.Helper()
	root := t.TempDir()
	notifier := &recordingNotifier{}
	mgr := NewManager(NewDiskStore(root), notifier, zap.NewNop())
	srv := NewUploadServer("127.0.0.1:0", mgr, zap.NewNop())
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return &uploadEnv{server: srv, manager: mgr, notifier: notifier, root: root}
}

func readReply(t *testing.T, conn net.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(line, &m); err != nil {
		t.Fatalf("decode reply %q: %v", line, err)
	}
	return m
}

func TestUploadRoundTrip(t *testing.T) {
	env := newUploadEnv(t)
	a, err := env.manager.Create("Homework 1", "", "")
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	conn, err := net.Dial("tcp", env.server.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data := bytes.Repeat([]byte("classpulse"), 1000)
	hdr := protocol.UploadHeader{
		AssignmentID: a.ID,
		StudentName:  "ada",
		Filename:     "hw1.pdf",
	}
	if err := protocol.WriteUploadRequest(conn, hdr, data); err != nil {
		t.Fatalf("write upload: %v", err)
	}

	reply := readReply(t, conn)
	if reply["status"] != "ok" {
		t.Fatalf("reply = %v, want ok", reply)
	}
	stored, _ := reply["storedName"].(string)
	if !strings.HasPrefix(stored, "ada_") || !strings.HasSuffix(stored, "_hw1.pdf") {
		t.Errorf("storedName = %q, want ada_<millis>_hw1.pdf", stored)
	}

	// The payload landed on disk byte for byte.
	got, err := os.ReadFile(filepath.Join(env.root, a.ID, stored))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("stored %d bytes, want %d identical bytes", len(got), len(data))
	}

	ups, err := env.manager.Uploads(a.ID)
	if err != nil || len(ups) != 1 {
		t.Fatalf("uploads = %v (%v), want one record", ups, err)
	}
	if ups[0].Size != int64(len(data)) {
		t.Errorf("recorded size = %d, want %d", ups[0].Size, len(data))
	}

	// A push notification went out for the completed upload.
	texts := env.notifier.all()
	if len(texts) != 1 || !strings.Contains(texts[0], "hw1.pdf") {
		t.Errorf("notifications = %v, want one naming hw1.pdf", texts)
	}
}

func TestUploadNoticeShape(t *testing.T) {
	env := newUploadEnv(t)
	a, err := env.manager.Create("Homework 1", "", "")
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	hdr := protocol.UploadHeader{
		AssignmentID: a.ID,
		StudentName:  "alice",
		Filename:     "hw.pdf",
	}
	up, err := env.manager.RecordUpload(context.Background(), hdr, []byte("data"))
	if err != nil {
		t.Fatalf("record upload: %v", err)
	}

	texts := env.notifier.all()
	if len(texts) != 1 {
		t.Fatalf("notifications = %v, want exactly one", texts)
	}
	var notice map[string]any
	if err := json.Unmarshal([]byte(texts[0]), &notice); err != nil {
		t.Fatalf("decode notice %q: %v", texts[0], err)
	}
	if notice["type"] != protocol.TypeAssignmentUpload {
		t.Errorf("type = %v, want %q", notice["type"], protocol.TypeAssignmentUpload)
	}
	if notice["assignmentId"] != a.ID {
		t.Errorf("assignmentId = %v, want %s", notice["assignmentId"], a.ID)
	}
	if notice["studentName"] != "alice" {
		t.Errorf("studentName = %v, want alice", notice["studentName"])
	}
	if notice["filename"] != "hw.pdf" {
		t.Errorf("filename = %v, want hw.pdf", notice["filename"])
	}
	if size, _ := notice["size"].(float64); int64(size) != up.Size {
		t.Errorf("size = %v, want %d", notice["size"], up.Size)
	}
	if path, _ := notice["storedPath"].(string); path != up.Location {
		t.Errorf("storedPath = %v, want %s", notice["storedPath"], up.Location)
	}
	if ms, ok := notice["uploadedAt"].(float64); !ok || int64(ms) != up.UploadedAt.UnixMilli() {
		t.Errorf("uploadedAt = %v, want %d", notice["uploadedAt"], up.UploadedAt.UnixMilli())
	}
}

func TestUploadSplitAcrossWrites(t *testing.T) {
	env := newUploadEnv(t)
	a, _ := env.manager.Create("Homework 2", "", "")

	conn, err := net.Dial("tcp", env.server.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var buf bytes.Buffer
	data := []byte("split payload bytes")
	protocol.WriteUploadRequest(&buf, protocol.UploadHeader{
		AssignmentID: a.ID,
		StudentName:  "bob",
		Filename:     "notes.txt",
	}, data)

	// Dribble the request out in 3-byte writes to exercise arbitrary
	// TCP segmentation.
	raw := buf.Bytes()
	for i := 0; i < len(raw); i += 3 {
		end := i + 3
		if end > len(raw) {
			end = len(raw)
		}
		if _, err := conn.Write(raw[i:end]); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	if reply := readReply(t, conn); reply["status"] != "ok" {
		t.Fatalf("reply = %v, want ok", reply)
	}
}

func TestUploadDroppedMidPayloadLeavesNoRecord(t *testing.T) {
	env := newUploadEnv(t)
	a, _ := env.manager.Create("Homework 3", "", "")

	conn, err := net.Dial("tcp", env.server.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	hb, _ := json.Marshal(protocol.UploadHeader{
		AssignmentID: a.ID,
		StudentName:  "eve",
		Filename:     "half.bin",
		Filesize:     1000,
	})
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hb)))
	conn.Write(lenBuf[:])
	conn.Write(hb)
	conn.Write(make([]byte, 400)) // 400 of the declared 1000 bytes
	conn.Close()

	// Give the server a moment to observe the EOF.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ups, _ := env.manager.Uploads(a.ID)
		if len(ups) != 0 {
			t.Fatalf("dropped upload produced a record: %v", ups)
		}
		if len(env.notifier.all()) != 0 {
			t.Fatal("dropped upload produced a notification")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if entries, err := os.ReadDir(filepath.Join(env.root, a.ID)); err == nil && len(entries) > 0 {
		t.Errorf("dropped upload left %d files on disk", len(entries))
	}
}

func TestUploadBadHeaderRejected(t *testing.T) {
	env := newUploadEnv(t)

	t.Run("oversized header length", func(t *testing.T) {
		conn, err := net.Dial("tcp", env.server.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(protocol.MaxUploadHeaderBytes+1))
		conn.Write(lenBuf[:])

		if reply := readReply(t, conn); reply["status"] != "error" {
			t.Errorf("reply = %v, want error", reply)
		}
	})

	t.Run("unknown assignment", func(t *testing.T) {
		conn, err := net.Dial("tcp", env.server.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		protocol.WriteUploadRequest(conn, protocol.UploadHeader{
			AssignmentID: "A999",
			StudentName:  "mallory",
			Filename:     "x.txt",
		}, []byte("hi"))

		reply := readReply(t, conn)
		if reply["status"] != "error" {
			t.Fatalf("reply = %v, want error", reply)
		}
		if !strings.Contains(reply["reason"].(string), "not found") {
			t.Errorf("reason = %q", reply["reason"])
		}
	})
}

func TestStoredNameSanitized(t *testing.T) {
	env := newUploadEnv(t)
	a, _ := env.manager.Create("Homework 4", "", "")

	up, err := env.manager.RecordUpload(context.Background(), protocol.UploadHeader{
		AssignmentID: a.ID,
		StudentName:  "../evil user",
		Filename:     `..\..\secret sauce.txt`,
	}, []byte("x"))
	if err != nil {
		t.Fatalf("record upload: %v", err)
	}
	if strings.ContainsAny(up.StoredName, `/\ `) {
		t.Errorf("stored name %q still has path or space characters", up.StoredName)
	}
	if !strings.HasSuffix(up.StoredName, "secret_sauce.txt") {
		t.Errorf("stored name = %q, want sanitized basename suffix", up.StoredName)
	}
}

func TestCreateAssignmentValidation(t *testing.T) {
	mgr := NewManager(NewDiskStore(t.TempDir()), nil, zap.NewNop())
	if _, err := mgr.Create("   ", "", ""); err == nil {
		t.Fatal("blank title accepted")
	}
	a1, _ := mgr.Create("first", "", "")
	a2, _ := mgr.Create("second", "", "")
	if a1.ID != "A1" || a2.ID != "A2" {
		t.Errorf("ids = %s, %s, want A1, A2", a1.ID, a2.ID)
	}
	if got := mgr.List(); len(got) != 2 || got[0].ID != "A1" {
		t.Errorf("list = %v, want creation order", got)
	}
}
