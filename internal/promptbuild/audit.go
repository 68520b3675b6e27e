package promptbuild

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kayz/stageprompt/internal/config"
)

// Recorder receives every assembled prompt.
type Recorder interface {
	Record(rec AuditRecord) error
}

// AuditRecord describes one assembled prompt.
type AuditRecord struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Stage         string    `json:"stage,omitempty"`
	Compact       bool      `json:"compact,omitempty"`
	RequestDigest string    `json:"request_digest"`
	Sections      []string  `json:"sections"`
	FinalPrompt   string    `json:"final_prompt"`
}

func newAuditRecord(req Request, finalPrompt string, sections []string, compact bool) AuditRecord {
	return AuditRecord{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		Stage:         string(req.Stage),
		Compact:       compact,
		RequestDigest: buildRequestDigest(req),
		Sections:      sections,
		FinalPrompt:   finalPrompt,
	}
}

// JSONLRecorder appends audit records to one JSONL file per day and prunes
// files older than the retention window.
type JSONLRecorder struct {
	cfg config.AuditConfig
	mu  sync.Mutex
	now func() time.Time
}

// NewJSONLRecorder creates a file recorder from cfg.
func NewJSONLRecorder(cfg config.AuditConfig) *JSONLRecorder {
	if cfg.RootDir == "" {
		cfg.RootDir = "."
	}
	if strings.TrimSpace(cfg.FilePrefix) == "" {
		cfg.FilePrefix = "promptbuild"
	}
	return &JSONLRecorder{cfg: cfg, now: time.Now}
}

func (r *JSONLRecorder) Record(rec AuditRecord) error {
	auditDir := r.auditDir()
	if err := os.MkdirAll(auditDir, 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	now := r.now()
	fileName := fmt.Sprintf("%s-%s.jsonl", r.cfg.FilePrefix, now.Format("2006-01-02"))
	filePath := filepath.Join(auditDir, fileName)

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := appendJSONL(filePath, line); err != nil {
		return err
	}

	return r.cleanupOldAuditFilesWithNow(now)
}

func appendJSONL(filePath string, line []byte) error {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}
	return nil
}

// Cleanup removes audit files older than the retention window.
func (r *JSONLRecorder) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanupOldAuditFilesWithNow(r.now())
}

func (r *JSONLRecorder) auditDir() string {
	if filepath.IsAbs(r.cfg.Dir) {
		return r.cfg.Dir
	}
	return filepath.Join(r.cfg.RootDir, r.cfg.Dir)
}

func (r *JSONLRecorder) cleanupOldAuditFilesWithNow(now time.Time) error {
	if r.cfg.RetentionDays <= 0 {
		return nil
	}

	auditDir := r.auditDir()
	entries, err := os.ReadDir(auditDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list audit dir: %w", err)
	}

	prefix := r.cfg.FilePrefix
	cutoff := now.AddDate(0, 0, -r.cfg.RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}

		filePath := filepath.Join(auditDir, name)
		fileDate, ok := parseAuditDate(name, prefix)
		if ok {
			if fileDate.Before(startOfDay(cutoff)) {
				if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove old audit file %s: %w", filePath, err)
				}
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat audit file %s: %w", filePath, err)
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove old audit file %s: %w", filePath, err)
			}
		}
	}

	return nil
}

func parseAuditDate(filename, prefix string) (time.Time, bool) {
	raw := strings.TrimSuffix(filename, ".jsonl")
	raw = strings.TrimPrefix(raw, prefix+"-")
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func buildRequestDigest(req Request) string {
	digestInput := struct {
		Stage         string   `json:"stage"`
		Include       []string `json:"include"`
		HasInclude    bool     `json:"has_include"`
		Exclude       []string `json:"exclude"`
		HasDateTime   bool     `json:"has_datetime"`
		GuardrailsLen int      `json:"guardrails_len"`
	}{
		Stage:         string(req.Stage),
		Include:       req.Include,
		HasInclude:    req.Include != nil,
		Exclude:       req.Exclude,
		HasDateTime:   req.DateTime != nil,
		GuardrailsLen: len(strings.TrimSpace(req.Guardrails)),
	}
	payload, _ := json.Marshal(digestInput)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
