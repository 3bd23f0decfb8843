package settlement

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"navLedger/internal/model"
)

// ResultSink receives every settlement result produced by a cycle.
type ResultSink interface {
	PutResults(results []model.SettlementResult) error
}

// JSONLSink appends settlement results to a JSONL audit file.
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

type auditRecord struct {
	model.SettlementResult
	Shares string `json:"shares"`
	Amount string `json:"amount,omitempty"`
}

func (s *JSONLSink) PutResults(results []model.SettlementResult) error {
	if len(results) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, res := range results {
		rec := auditRecord{SettlementResult: res, Shares: bigString(res.Shares)}
		if res.Amount != nil {
			rec.Amount = res.Amount.String()
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal settlement result: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write settlement result: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return nil
}
