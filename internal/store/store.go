package store

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// #endregion

// #region types

// RegisteredUser is one entry in the registration database.
type RegisteredUser struct {
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Relationship is the autonomy engine's per-contact affinity record.
type Relationship struct {
	Affinity        float64   `json:"affinity"`
	LastInteraction time.Time `json:"last_interaction"`
	LastInitiative  time.Time `json:"last_initiative,omitempty"`
	MessageCount    int       `json:"message_count"`
}

// Settings holds global toggles.
type Settings struct {
	BotMode string `json:"bot_mode"` // "public" | "self"
}

// Stats tracks usage counters.
type Stats struct {
	CommandHits    map[string]int `json:"command_hits"`
	AIResponseHits int            `json:"ai_response_hits"`
}

type state struct {
	Settings      Settings
	Stats         Stats
	Premium       map[string]bool
	Registered    map[string]RegisteredUser
	Banned        map[string]bool
	Antilink      map[string]bool
	ViewOnce      map[string]bool
	Muted         map[string]bool
	AIBanned      map[string]bool
	ReplyCache    map[string]string
	Relationships map[string]Relationship
}

// #endregion

// #region store

// Store is the set of persisted JSON state domains, one file each. The
// in-memory copy is authoritative; file writes are best-effort and retried
// by the periodic flush.
type Store struct {
	mu     sync.Mutex
	dir    string
	log    zerolog.Logger
	st     state
	ticker *time.Ticker
	done   chan struct{}
}

// files maps domain name to file name under the data dir.
var files = map[string]string{
	"settings":      "settings.json",
	"stats":         "systemStats.json",
	"premium":       "premiumUsers.json",
	"registered":    "registeredUsers.json",
	"banned":        "bannedUsers.json",
	"antilink":      "antilink.json",
	"viewonce":      "rvomSettings.json",
	"muted":         "mutedChats.json",
	"aibanned":      "bannedAIChats.json",
	"replycache":    "replyCache.json",
	"relationships": "contactMatrix.json",
}

// Open loads every domain from dir, creating missing files with defaults.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	s := &Store{
		dir:  dir,
		log:  log,
		done: make(chan struct{}),
		st: state{
			Settings:      Settings{BotMode: "public"},
			Stats:         Stats{CommandHits: make(map[string]int)},
			Premium:       make(map[string]bool),
			Registered:    make(map[string]RegisteredUser),
			Banned:        make(map[string]bool),
			Antilink:      make(map[string]bool),
			ViewOnce:      make(map[string]bool),
			Muted:         make(map[string]bool),
			AIBanned:      make(map[string]bool),
			ReplyCache:    make(map[string]string),
			Relationships: make(map[string]Relationship),
		},
	}

	for domain := range files {
		if err := s.load(domain); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) path(domain string) string {
	return filepath.Join(s.dir, files[domain])
}

func (s *Store) load(domain string) error {
	raw, err := os.ReadFile(s.path(domain))
	if os.IsNotExist(err) {
		// first run: materialize the file with defaults
		return s.save(domain)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", domain, err)
	}
	if err := json.Unmarshal(raw, s.target(domain)); err != nil {
		// corrupt file: keep defaults in memory, preserve the bad file
		s.log.Error().Err(err).Str("domain", domain).Msg("state file corrupt, keeping defaults")
	}
	return nil
}

func (s *Store) target(domain string) any {
	switch domain {
	case "settings":
		return &s.st.Settings
	case "stats":
		return &s.st.Stats
	case "premium":
		return &s.st.Premium
	case "registered":
		return &s.st.Registered
	case "banned":
		return &s.st.Banned
	case "antilink":
		return &s.st.Antilink
	case "viewonce":
		return &s.st.ViewOnce
	case "muted":
		return &s.st.Muted
	case "aibanned":
		return &s.st.AIBanned
	case "replycache":
		return &s.st.ReplyCache
	default:
		return &s.st.Relationships
	}
}

// save writes one domain to disk. Caller holds no guarantee of success;
// in-memory state stays authoritative.
func (s *Store) save(domain string) error {
	data, err := json.MarshalIndent(s.target(domain), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", domain, err)
	}
	tmp := s.path(domain) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", domain, err)
	}
	if err := os.Rename(tmp, s.path(domain)); err != nil {
		return fmt.Errorf("rename %s: %w", domain, err)
	}
	return nil
}

func (s *Store) persist(domain string) {
	if err := s.save(domain); err != nil {
		s.log.Error().Err(err).Str("domain", domain).Msg("state save failed, memory stays authoritative")
	}
}

// SaveAll flushes every domain. Used by the periodic flusher and shutdown.
func (s *Store) SaveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for domain := range files {
		s.persist(domain)
	}
}

// StartFlusher begins the periodic flush loop.
func (s *Store) StartFlusher(interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.SaveAll()
			case <-s.done:
				return
			}
		}
	}()
}

// Close stops the flusher and performs a final flush.
func (s *Store) Close() {
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.done)
	}
	s.SaveAll()
}

// #endregion
