package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agent-control-plane/models"
	"go.uber.org/zap"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var baseTime = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts Options) (*Store, *testClock) {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "audit", "audit.log")
	}
	clock := &testClock{t: baseTime}
	s, err := NewStore(opts, zap.NewNop(), WithClock(clock.now))
	require.NoError(t, err)
	return s, clock
}

func eventLine(id string, ts time.Time) string {
	return fmt.Sprintf(`{"id":%q,"timestamp":%q,"type":"tool_call_intercepted","payload":{}}`, id, ts.Format(time.RFC3339Nano))
}

func TestNewStore_RequiresPath(t *testing.T) {
	_, err := NewStore(Options{}, zap.NewNop())
	assert.Error(t, err)
}

func TestStore_AppendWritesLine(t *testing.T) {
	s, _ := newTestStore(t, Options{MaxInMemoryEvents: 10})

	event, err := s.Append(models.AuditEventToolCallIntercepted, map[string]any{"toolName": "shell"})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, baseTime, event.Timestamp)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"type":"tool_call_intercepted"`)
	assert.Contains(t, lines[0], `"toolName":"shell"`)
}

func TestStore_AppendHook(t *testing.T) {
	var seen []models.AuditEventType
	path := filepath.Join(t.TempDir(), "audit.log")
	s, err := NewStore(Options{Path: path}, zap.NewNop(), WithAppendHook(func(e models.AuditEvent) {
		seen = append(seen, e.Type)
	}))
	require.NoError(t, err)

	_, _ = s.Append(models.AuditEventModelRouted, nil)
	assert.Equal(t, []models.AuditEventType{models.AuditEventModelRouted}, seen)
}

func TestStore_RingEvictsOldest(t *testing.T) {
	s, clock := newTestStore(t, Options{MaxInMemoryEvents: 3})
	for i := 0; i < 5; i++ {
		clock.advance(time.Second)
		_, err := s.Append(models.AuditEventPolicyChanged, map[string]any{"n": i})
		require.NoError(t, err)
	}

	items := s.List(ListOptions{Limit: 100})
	require.Len(t, items, 3)
	assert.Equal(t, 4, items[0].Payload["n"])
	assert.Equal(t, 2, items[2].Payload["n"])
}

func TestStore_List(t *testing.T) {
	s, clock := newTestStore(t, Options{MaxInMemoryEvents: 50})
	types := []models.AuditEventType{
		models.AuditEventToolCallIntercepted,
		models.AuditEventToolCallDecision,
		models.AuditEventToolCallIntercepted,
		models.AuditEventModelRouted,
	}
	for i, typ := range types {
		clock.advance(time.Second)
		_, err := s.Append(typ, map[string]any{"n": i})
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		opts ListOptions
		want []int
	}{
		{"all newest first", ListOptions{Limit: 100}, []int{3, 2, 1, 0}},
		{"limit", ListOptions{Limit: 2}, []int{3, 2}},
		{"zero limit clamps to one", ListOptions{Limit: 0}, []int{3}},
		{"type filter", ListOptions{Type: models.AuditEventToolCallIntercepted, Limit: 10}, []int{2, 0}},
		{"type filter with limit", ListOptions{Type: models.AuditEventToolCallIntercepted, Limit: 1}, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := s.List(tt.opts)
			got := make([]int, len(items))
			for i, item := range items {
				got[i] = item.Payload["n"].(int)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_LoadsTailAndSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	lines := []string{
		eventLine("a", baseTime.Add(-3*time.Minute)),
		"{broken",
		`{"id":"no-ts","type":"x","payload":{}}`,
		eventLine("b", baseTime.Add(-2*time.Minute)),
		`{"id":"no-payload","timestamp":"2026-05-10T08:59:00Z","type":"x"}`,
		eventLine("c", baseTime.Add(-time.Minute)),
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	s, _ := newTestStore(t, Options{Path: path, MaxInMemoryEvents: 2})
	items := s.List(ListOptions{Limit: 10})
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].ID)
	assert.Equal(t, "b", items[1].ID)
}

func TestStore_RetentionPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	lines := []string{
		eventLine("old", baseTime.Add(-72*time.Hour)),
		"garbage",
		eventLine("recent", baseTime.Add(-time.Hour)),
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	s, _ := newTestStore(t, Options{Path: path, RetentionDays: 1})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, eventLine("recent", baseTime.Add(-time.Hour))+"\n", string(data))

	items := s.List(ListOptions{Limit: 10})
	require.Len(t, items, 1)
	assert.Equal(t, "recent", items[0].ID)
}

func TestStore_RetentionKeepsAnyTimestampedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	partial := `{"timestamp":"2026-05-10T08:00:00Z","note":"manual"}`
	lines := []string{
		`{"id":"no-ts","type":"x","payload":{}}`,
		partial,
		`{"timestamp":"2026-05-01T08:00:00Z"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	s, _ := newTestStore(t, Options{Path: path, RetentionDays: 1})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, partial+"\n", string(data))
	assert.Empty(t, s.List(ListOptions{Limit: 10}))
}

func TestStore_RetentionLeavesCleanFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := eventLine("recent", baseTime.Add(-time.Hour)) + "\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, _ = newTestStore(t, Options{Path: path, RetentionDays: 7})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestStore_RotatesOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := eventLine("a", baseTime) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.WriteFile(path+".1", []byte("previous generation\n"), 0o644))

	s, _ := newTestStore(t, Options{Path: path, MaxFileSizeBytes: 10})

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, content, string(rotated))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.Empty(t, s.List(ListOptions{Limit: 10}))
}

func TestStore_RotatesOnAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	s, _ := newTestStore(t, Options{Path: path, MaxFileSizeBytes: 200})

	for i := 0; i < 5; i++ {
		_, err := s.Append(models.AuditEventPolicyChanged, map[string]any{"ruleId": fmt.Sprintf("rule-%d", i)})
		require.NoError(t, err)
	}

	_, err := os.Stat(path + ".1")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(200))

	// rotation never drops events from memory
	assert.Len(t, s.List(ListOptions{Limit: 100}), 5)
}
