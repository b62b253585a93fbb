package store

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// repairMu serializes appends to the repair log.
var repairMu sync.Mutex

// repairRecord is one deferred write captured while the database was
// unavailable.
type repairRecord struct {
	At     time.Time       `json:"at"`
	Entity string          `json:"entity"`
	Data   json.RawMessage `json:"data"`
}

// AppendRepair queues a failed write to the JSONL repair log next to the
// database so an operator can replay it. Best effort: a failure here is
// only logged.
func (s *Store) AppendRepair(entity string, payload any) {
	path := s.sqlitePath + ".repair.jsonl"
	if s.sqlitePath == "" {
		path = "store.repair.jsonl"
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("entity", entity).Msg("store: repair marshal failed")
		return
	}
	line, err := json.Marshal(repairRecord{At: time.Now(), Entity: entity, Data: data})
	if err != nil {
		s.log.Warn().Err(err).Str("entity", entity).Msg("store: repair marshal failed")
		return
	}

	repairMu.Lock()
	defer repairMu.Unlock()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.log.Warn().Err(err).Msg("store: repair log open failed")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		s.log.Warn().Err(err).Msg("store: repair log write failed")
	}
}
