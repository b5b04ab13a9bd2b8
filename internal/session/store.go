package session

import "sync"

// issueRootKey identifies one tracker issue's root thread within one
// repository, the key byIssueRoot groups sessions under.
type issueRootKey struct {
	RepositoryID string
	IssueID      string
}

// Store is the in-memory index over the live set of sessions. The
// primary map owns storage; byIssueRoot and byAgentToken are secondary
// indexes rebuilt from the primary on Restore, so they can never drift
// out of sync with it except transiently while a single Put is in
// flight.
type Store struct {
	mu sync.RWMutex

	bySessionID map[string]*Session
	byIssueRoot map[issueRootKey]map[string]struct{}
	byAgentToken map[string]string // agentToken -> sessionId
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		bySessionID:  make(map[string]*Session),
		byIssueRoot:  make(map[issueRootKey]map[string]struct{}),
		byAgentToken: make(map[string]string),
	}
}

// Put inserts or replaces a session and keeps every index consistent
// with it.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(sess)
}

func (s *Store) putLocked(sess *Session) {
	if existing, ok := s.bySessionID[sess.ID]; ok {
		s.removeFromIssueRootLocked(existing)
		if existing.CurrentAgentSessionToken != "" {
			delete(s.byAgentToken, existing.CurrentAgentSessionToken)
		}
	}

	s.bySessionID[sess.ID] = sess

	key := issueRootKey{RepositoryID: sess.RepositoryID, IssueID: sess.IssueRef.ID}
	if s.byIssueRoot[key] == nil {
		s.byIssueRoot[key] = make(map[string]struct{})
	}
	s.byIssueRoot[key][sess.ID] = struct{}{}

	if sess.CurrentAgentSessionToken != "" {
		s.byAgentToken[sess.CurrentAgentSessionToken] = sess.ID
	}
}

func (s *Store) removeFromIssueRootLocked(sess *Session) {
	key := issueRootKey{RepositoryID: sess.RepositoryID, IssueID: sess.IssueRef.ID}
	if set, ok := s.byIssueRoot[key]; ok {
		delete(set, sess.ID)
		if len(set) == 0 {
			delete(s.byIssueRoot, key)
		}
	}
}

// Get looks up a session by id.
func (s *Store) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.bySessionID[sessionID]
	return sess, ok
}

// ByIssueRoot returns every session on the given issue, across its root
// thread and any comment threads.
func (s *Store) ByIssueRoot(repositoryID, issueID string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := issueRootKey{RepositoryID: repositoryID, IssueID: issueID}
	ids := s.byIssueRoot[key]
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if sess, ok := s.bySessionID[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// ByAgentToken resolves the session currently bound to an agent token.
func (s *Store) ByAgentToken(agentToken string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAgentToken[agentToken]
	if !ok {
		return nil, false
	}
	sess, ok := s.bySessionID[id]
	return sess, ok
}

// BindAgentToken records the current agent token for a session, updating
// the reverse index. Call this whenever CurrentAgentSessionToken changes.
func (s *Store) BindAgentToken(sessionID, agentToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.bySessionID[sessionID]
	if !ok {
		return
	}
	if sess.CurrentAgentSessionToken != "" {
		delete(s.byAgentToken, sess.CurrentAgentSessionToken)
	}
	sess.CurrentAgentSessionToken = agentToken
	if agentToken != "" {
		s.byAgentToken[agentToken] = sessionID
	}
}

// All returns every session currently held. Used for reconciliation and
// snapshotting.
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.bySessionID))
	for _, sess := range s.bySessionID {
		out = append(out, sess)
	}
	return out
}

// Restore replaces the entire store's contents with sessions, rebuilding
// every secondary index from scratch. Used on startup when reconstituting
// from a snapshot.
func (s *Store) Restore(sessions []*Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySessionID = make(map[string]*Session, len(sessions))
	s.byIssueRoot = make(map[issueRootKey]map[string]struct{})
	s.byAgentToken = make(map[string]string)
	for _, sess := range sessions {
		s.putLocked(sess)
	}
}
