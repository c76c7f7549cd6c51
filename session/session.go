// Package session implements the Session Store (§4.7): an append-only,
// line-delimited-JSON log per session id, a schema-version migration
// ladder applied on load, and branch forking over the resulting parent
// chain.
//
// Grounded on evaldata/io_jsonl.go's scan-a-line/unmarshal-a-line shape
// for the on-disk format, domain/task.go's storage-interface split
// (persistence kept separate from the in-memory tree it hydrates), and
// llm2/chat_history.go's BlockIdGenerator/ksuid pattern for entry ids.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/ksuid"
)

// EntryKind discriminates the tagged variants a SessionEntry carries, per
// §4.1's session-tree entry list.
type EntryKind string

const (
	EntryKindSessionMessage      EntryKind = "session_message"
	EntryKindModelChange         EntryKind = "model_change"
	EntryKindThinkingLevelChange EntryKind = "thinking_level_change"
	EntryKindCompaction          EntryKind = "compaction"
	EntryKindBranchSummary       EntryKind = "branch_summary"
	EntryKindCustomMessage       EntryKind = "custom_message"
	EntryKindCustom              EntryKind = "custom"
	EntryKindLabel               EntryKind = "label"
	EntryKindSessionInfo         EntryKind = "session_info"

	// entryKindHookMessageLegacy is the pre-V3 name for EntryKindCustom,
	// renamed by the V2->V3 migration step.
	entryKindHookMessageLegacy EntryKind = "hook_message"
)

// currentSchemaVersion is the schema version new entries are written at.
const currentSchemaVersion = 3

// SessionEntry is one line-delimited-JSON record in a session log.
type SessionEntry struct {
	V         int             `json:"v"`
	Kind      EntryKind       `json:"kind"`
	Id        string          `json:"id"`
	ParentId  string          `json:"parentId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// IdGenerator produces entry ids. Defaults to ksuid, which sorts
// lexically with creation time, matching the teacher's own entry-id
// choice for chat history blocks.
type IdGenerator func() string

func NewKsuidGenerator() IdGenerator {
	return func() string { return ksuid.New().String() }
}

// Session is the in-memory reconstruction of a session's entry tree:
// every entry ever appended, plus which branch is currently active.
type Session struct {
	Id              string
	Name            string
	CreatedAt       time.Time
	ModifiedAt      time.Time
	CurrentBranch   string
	Entries         []SessionEntry
	BranchSummaries map[string]string // branch name -> BranchSummary entry id
	Metadata        map[string]any
}

// byId indexes entries for parent-chain/branch lookups.
func (s *Session) byId() map[string]SessionEntry {
	m := make(map[string]SessionEntry, len(s.Entries))
	for _, e := range s.Entries {
		m[e.Id] = e
	}
	return m
}

// BranchEntries returns the entries on the chain from the root to
// branch's head, in order. branch names any branch an entry was appended
// under or that ForkBranch created; "" means s.CurrentBranch.
func (s *Session) BranchEntries(branch string) []SessionEntry {
	if branch == "" {
		branch = s.CurrentBranch
	}
	headId, ok := s.branchHeads()[branch]
	if !ok {
		return nil
	}
	byId := s.byId()
	var chain []SessionEntry
	for id := headId; id != ""; {
		e, ok := byId[id]
		if !ok {
			break
		}
		chain = append(chain, e)
		id = e.ParentId
	}
	// reverse into root-to-head order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// branchHeads tracks the newest entry id appended under each branch
// name. The main branch's name is its own CurrentBranch at the time each
// entry was appended; ForkBranch seeds a new branch's head at its fork
// point until the first entry is appended under the new name.
func (s *Session) branchHeads() map[string]string {
	heads := make(map[string]string)
	for key, val := range s.Metadata {
		name, ok := branchHeadMetadataName(key)
		if !ok {
			continue
		}
		if id, ok := val.(string); ok {
			heads[name] = id
		}
	}
	for _, e := range s.Entries {
		branch := s.Metadata[branchMetadataKey(e.Id)]
		name, _ := branch.(string)
		if name == "" {
			name = s.CurrentBranch
		}
		heads[name] = e.Id
	}
	return heads
}

func branchHeadMetadataName(key string) (string, bool) {
	const prefix = "branchHead:"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

func branchMetadataKey(entryId string) string { return "branch:" + entryId }

// Store persists and loads sessions as one append-only JSONL file per
// session id under Dir.
type Store struct {
	Dir  string
	IdFn IdGenerator
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir, IdFn: NewKsuidGenerator()}
}

func (st *Store) path(sessionId string) string {
	return filepath.Join(st.Dir, sessionId+".jsonl")
}

// Create starts a new, empty session file.
func (st *Store) Create(sessionId, name string) (*Session, error) {
	if err := os.MkdirAll(st.Dir, 0755); err != nil {
		return nil, fmt.Errorf("session: creating store dir: %w", err)
	}
	f, err := os.OpenFile(st.path(sessionId), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("session: creating session %q: %w", sessionId, err)
	}
	f.Close()
	now := time.Now()
	return &Session{
		Id:              sessionId,
		Name:            name,
		CreatedAt:       now,
		ModifiedAt:      now,
		CurrentBranch:   "main",
		BranchSummaries: map[string]string{},
		Metadata:        map[string]any{},
	}, nil
}

// Append writes a new entry to the session's on-disk log and to the
// in-memory Session, assigning Id/ParentId/V if unset.
func (st *Store) Append(s *Session, kind EntryKind, payload any) (SessionEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SessionEntry{}, fmt.Errorf("session: marshaling %s payload: %w", kind, err)
	}

	parent := ""
	if head, ok := s.branchHeads()[s.CurrentBranch]; ok {
		parent = head
	}

	entry := SessionEntry{
		V:         currentSchemaVersion,
		Kind:      kind,
		Id:        st.IdFn(),
		ParentId:  parent,
		Timestamp: time.Now(),
		Payload:   raw,
	}

	f, err := os.OpenFile(st.path(s.Id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return SessionEntry{}, fmt.Errorf("session: opening %q for append: %w", s.Id, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	line, err := json.Marshal(entry)
	if err != nil {
		return SessionEntry{}, fmt.Errorf("session: marshaling entry: %w", err)
	}
	if _, err := w.Write(line); err != nil {
		return SessionEntry{}, fmt.Errorf("session: writing entry: %w", err)
	}
	if _, err := w.WriteString("\n"); err != nil {
		return SessionEntry{}, fmt.Errorf("session: writing entry: %w", err)
	}
	if err := w.Flush(); err != nil {
		return SessionEntry{}, fmt.Errorf("session: flushing entry: %w", err)
	}

	s.Entries = append(s.Entries, entry)
	s.Metadata[branchMetadataKey(entry.Id)] = s.CurrentBranch
	s.ModifiedAt = entry.Timestamp
	return entry, nil
}

// Load reads a session's JSONL file from disk, applying the V1->V2->V3
// migration ladder to every entry as it's read.
func (st *Store) Load(sessionId string) (*Session, error) {
	f, err := os.Open(st.path(sessionId))
	if err != nil {
		return nil, fmt.Errorf("session: opening %q: %w", sessionId, err)
	}
	defer f.Close()

	s := &Session{
		Id:              sessionId,
		CurrentBranch:   "main",
		BranchSummaries: map[string]string{},
		Metadata:        map[string]any{},
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	parent := ""
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry SessionEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("session: parsing entry: %w", err)
		}
		entry = migrateEntry(entry, parent)
		parent = entry.Id
		s.Entries = append(s.Entries, entry)
		s.Metadata[branchMetadataKey(entry.Id)] = s.CurrentBranch
		if entry.Kind == EntryKindBranchSummary {
			s.BranchSummaries[s.CurrentBranch] = entry.Id
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: reading %q: %w", sessionId, err)
	}
	if len(s.Entries) > 0 {
		s.CreatedAt = s.Entries[0].Timestamp
		s.ModifiedAt = s.Entries[len(s.Entries)-1].Timestamp
	}
	return s, nil
}

// migrateEntry applies the V1->V2->V3 ladder (§4.7) to a single entry
// read from disk. fallbackParent is the previous entry's id in file
// order, used to build a linear parent chain for V1 entries that
// predate id/parentId.
func migrateEntry(e SessionEntry, fallbackParent string) SessionEntry {
	if e.V < 2 {
		if e.Id == "" {
			e.Id = ksuid.New().String()
		}
		if e.ParentId == "" {
			e.ParentId = fallbackParent
		}
	}
	if e.V < 3 && e.Kind == entryKindHookMessageLegacy {
		e.Kind = EntryKindCustom
	}
	e.V = currentSchemaVersion
	return e
}

// ForkBranch creates a new branch diverging at fromEntryId, and makes it
// the session's current branch. Subsequent Append calls chain off
// fromEntryId instead of the previous current-branch head.
func (st *Store) ForkBranch(s *Session, fromEntryId, newName string) error {
	byId := s.byId()
	if _, ok := byId[fromEntryId]; !ok {
		return fmt.Errorf("session: fork point %q not found", fromEntryId)
	}
	if _, exists := s.branchHeads()[newName]; exists {
		return fmt.Errorf("session: branch %q already exists", newName)
	}
	s.CurrentBranch = newName
	s.Metadata["branchHead:"+newName] = fromEntryId
	return nil
}
