package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"
)

var invalidSegment = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Writer arquiva em disco os eventos já entregues, um arquivo JSON por evento.
type Writer struct {
	baseDir string
	log     waLog.Logger
	now     func() time.Time
}

// NewWriter cria uma instância pronta para gravar eventos no diretório informado.
// Com diretório vazio retorna nil, e o Writer nil ignora as gravações.
func NewWriter(baseDir string, log waLog.Logger) *Writer {
	base := strings.TrimSpace(baseDir)
	if base == "" {
		return nil
	}
	if log == nil {
		log = waLog.Noop
	}
	return &Writer{baseDir: filepath.Clean(base), log: log, now: time.Now}
}

// Enabled informa se a gravação de eventos está ativa.
func (w *Writer) Enabled() bool {
	return w != nil && w.baseDir != ""
}

// Write armazena o evento em baseDir/<tipo>/<escopo>/timestamp-uuid.json e
// retorna o caminho gravado.
func (w *Writer) Write(eventType, scope string, payload any) (string, error) {
	if !w.Enabled() || payload == nil {
		return "", nil
	}

	segmentType := sanitizeSegment(eventType)
	segmentScope := sanitizeSegment(scope)

	dir := filepath.Join(w.baseDir, segmentType, segmentScope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	ts := w.now().UTC()
	fileName := fmt.Sprintf("%s-%s.json", ts.Format("20060102T150405Z"), uuid.NewString())
	path := filepath.Join(dir, fileName)

	record := map[string]any{
		"event_type":  eventType,
		"scope":       scope,
		"archived_at": ts.Format(time.RFC3339Nano),
		"payload":     payload,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		fallback := map[string]any{
			"event_type":    eventType,
			"scope":         scope,
			"archived_at":   ts.Format(time.RFC3339Nano),
			"marshal_error": err.Error(),
			"payload_text":  fmt.Sprintf("%+v", payload),
		}
		data, err = json.MarshalIndent(fallback, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal fallback: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	w.log.Debugf("evento %s arquivado em %s", eventType, path)
	return path, nil
}

func sanitizeSegment(raw string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "unknown"
	}
	sanitized := invalidSegment.ReplaceAllString(candidate, "_")
	sanitized = strings.Trim(sanitized, "._-")
	if sanitized == "" {
		return "unknown"
	}
	return sanitized
}
