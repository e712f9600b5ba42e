package store

// #region imports
import (
	"strings"
	"time"
)

// #endregion

// #region user-keys

// userKey canonicalizes a user JID for map keying. Companion devices carry
// a ":device" part ("628xx:5@s.whatsapp.net") that must hit the same row
// as the bare form, or a ban written against one device would not bind the
// others.
func userKey(jid string) string {
	user, server, ok := strings.Cut(jid, "@")
	if !ok {
		return jid
	}
	if bare, _, cut := strings.Cut(user, ":"); cut {
		user = bare
	}
	return user + "@" + server
}

// #endregion

// #region bans

// IsBanned reports whether user is in the ban list.
func (s *Store) IsBanned(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Banned[userKey(user)]
}

// SetBanned adds or removes user from the ban list.
func (s *Store) SetBanned(user string, banned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if banned {
		s.st.Banned[userKey(user)] = true
	} else {
		delete(s.st.Banned, userKey(user))
	}
	s.persist("banned")
}

// #endregion

// #region premium-registered

// IsPremium reports premium standing.
func (s *Store) IsPremium(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Premium[userKey(user)]
}

// Registered returns the registration record for user.
func (s *Store) Registered(user string) (RegisteredUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.Registered[userKey(user)]
	return u, ok
}

// Register stores a registration record and persists immediately: the
// original synchronizes disk and memory in the same step.
func (s *Store) Register(user string, rec RegisteredUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Registered[userKey(user)] = rec
	s.persist("registered")
}

// #endregion

// #region chat-toggles

// chatToggle generalizes the per-chat boolean domains.
func (s *Store) chatToggle(domain string, m map[string]bool, chat string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		m[chat] = true
	} else {
		delete(m, chat)
	}
	s.persist(domain)
}

// AntilinkEnabled reports whether link moderation is on for chat.
func (s *Store) AntilinkEnabled(chat string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Antilink[chat]
}

// SetAntilink toggles link moderation for chat.
func (s *Store) SetAntilink(chat string, on bool) { s.chatToggle("antilink", s.st.Antilink, chat, on) }

// ViewOnceEnabled reports whether one-time-media archival is on for chat.
func (s *Store) ViewOnceEnabled(chat string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ViewOnce[chat]
}

// SetViewOnce toggles one-time-media archival for chat.
func (s *Store) SetViewOnce(chat string, on bool) { s.chatToggle("viewonce", s.st.ViewOnce, chat, on) }

// IsMuted reports whether the conversation is muted.
func (s *Store) IsMuted(chat string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Muted[chat]
}

// SetMuted toggles the conversation mute.
func (s *Store) SetMuted(chat string, on bool) { s.chatToggle("muted", s.st.Muted, chat, on) }

// AIChatBanned reports whether the AI fallback is disabled for chat.
func (s *Store) AIChatBanned(chat string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AIBanned[chat]
}

// SetAIChatBanned toggles the AI fallback ban for chat.
func (s *Store) SetAIChatBanned(chat string, on bool) {
	s.chatToggle("aibanned", s.st.AIBanned, chat, on)
}

// #endregion

// #region settings-stats

// BotMode returns the global mode ("public" or "self").
func (s *Store) BotMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Settings.BotMode
}

// SetBotMode switches the global mode.
func (s *Store) SetBotMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Settings.BotMode = mode
	s.persist("settings")
}

// CountCommandHit bumps the usage counter for a command.
func (s *Store) CountCommandHit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Stats.CommandHits[name]++
}

// CountAIResponse bumps the AI reply counter.
func (s *Store) CountAIResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Stats.AIResponseHits++
}

// StatsSnapshot copies the usage counters.
func (s *Store) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Stats{CommandHits: make(map[string]int, len(s.st.Stats.CommandHits)), AIResponseHits: s.st.Stats.AIResponseHits}
	for k, v := range s.st.Stats.CommandHits {
		out.CommandHits[k] = v
	}
	return out
}

// #endregion

// #region reply-cache

// CachedReply looks up a canned AI reply for a normalized prompt.
func (s *Store) CachedReply(prompt string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.ReplyCache[prompt]
	return r, ok
}

// CacheReply stores an AI reply under its normalized prompt.
func (s *Store) CacheReply(prompt, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.ReplyCache[prompt] = reply
	s.persist("replycache")
}

// #endregion

// #region relationships

// Relationship returns the affinity record for a contact.
func (s *Store) Relationship(jid string) (Relationship, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.Relationships[userKey(jid)]
	return r, ok
}

// PutRelationship stores an affinity record. Persistence rides the periodic
// flush; these updates are too frequent for write-per-mutation.
func (s *Store) PutRelationship(jid string, r Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Relationships[userKey(jid)] = r
}

// EachRelationship visits every affinity record under the lock.
func (s *Store) EachRelationship(fn func(jid string, r Relationship) Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jid, r := range s.st.Relationships {
		s.st.Relationships[jid] = fn(jid, r)
	}
}

// TouchRelationship records one observed interaction from jid at now.
func (s *Store) TouchRelationship(jid string, now time.Time, learningRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userKey(jid)
	r := s.st.Relationships[key]
	r.Affinity += learningRate * (1 - r.Affinity)
	r.LastInteraction = now
	r.MessageCount++
	s.st.Relationships[key] = r
}

// #endregion
