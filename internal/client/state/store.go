// Package state is the client-side cache of auth, theme and teams. Every mutation goes
// through the Store, which serializes writers and notifies listeners after each change.
package state

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/splax/teamroster/internal/domain"
)

// Auth is the auth slice.
type Auth struct {
	Authenticated bool
	Session       Session
}

// Theme is the theme slice.
type Theme struct {
	DarkMode bool
}

// Teams is the teams slice: teams ordered by id, which is creation order.
type Teams struct {
	Items   []domain.Team
	Loading bool
	Err     error
}

// Snapshot is a copy of every slice. Version increases with each mutation, so listeners
// can discard a snapshot older than one already seen.
type Snapshot struct {
	Version uint64
	Auth    Auth
	Theme   Theme
	Teams   Teams
}

// Store holds the client state.
type Store struct {
	mu        sync.Mutex
	persist   SessionStore
	logger    *slog.Logger
	version   uint64
	auth      Auth
	theme     Theme
	teams     Teams
	listeners map[uint64]func(Snapshot)
	nextID    uint64
}

// New seeds the auth slice from persist. A missing or unreadable record leaves the store
// signed out.
func New(persist SessionStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		persist:   persist,
		logger:    logger,
		theme:     Theme{DarkMode: true},
		listeners: make(map[uint64]func(Snapshot)),
	}
	if persist == nil {
		return s
	}
	session, err := persist.Load()
	switch {
	case err != nil:
		logger.Warn("discarding unreadable session", "error", err)
	case session != nil && session.Valid():
		s.auth = Auth{Authenticated: true, Session: *session}
	}
	return s
}

// Subscribe registers listener for every later mutation. The disposer is idempotent.
func (s *Store) Subscribe(listener func(Snapshot)) (dispose func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Snapshot returns a copy of every slice.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Auth returns the auth slice.
func (s *Store) Auth() Auth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// Theme returns the theme slice.
func (s *Store) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// Teams returns a copy of the teams slice.
func (s *Store) Teams() Teams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTeams(s.teams)
}

// Team returns the cached team with id.
func (s *Store) Team(id string) (domain.Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.indexLocked(id); ok {
		return s.teams.Items[i].Normalize(), true
	}
	return domain.Team{}, false
}

// TeamsAuthoredBy lists cached teams created by userID.
func (s *Store) TeamsAuthoredBy(userID string) []domain.Team {
	return s.filter(func(t domain.Team) bool { return t.Author == userID })
}

// TeamsWithMember lists cached teams userID belongs to.
func (s *Store) TeamsWithMember(userID string) []domain.Team {
	return s.filter(func(t domain.Team) bool { return t.HasMember(userID) })
}

// SignInSucceeded marks the session authenticated and persists it. The state changes even
// when persisting fails; the error is returned.
func (s *Store) SignInSucceeded(session Session) error {
	var err error
	s.mutate(func() {
		s.auth = Auth{Authenticated: true, Session: session}
		if s.persist != nil {
			err = s.persist.Save(session)
		}
	})
	return err
}

// SignedOut clears the auth slice, the cached teams and the persisted record.
func (s *Store) SignedOut() error {
	var err error
	s.mutate(func() {
		s.auth = Auth{}
		s.teams = Teams{}
		if s.persist != nil {
			err = s.persist.Clear()
		}
	})
	return err
}

// ToggleDarkMode flips the theme.
func (s *Store) ToggleDarkMode() {
	s.mutate(func() { s.theme.DarkMode = !s.theme.DarkMode })
}

// SetDarkMode sets the theme.
func (s *Store) SetDarkMode(dark bool) {
	s.mutate(func() { s.theme.DarkMode = dark })
}

// SetTeamsLoading flags an outstanding teams fetch.
func (s *Store) SetTeamsLoading() {
	s.mutate(func() {
		s.teams.Loading = true
		s.teams.Err = nil
	})
}

// ReplaceTeams replaces the slice wholesale.
func (s *Store) ReplaceTeams(items []domain.Team) {
	sorted := make([]domain.Team, 0, len(items))
	for _, t := range items {
		sorted = append(sorted, t.Normalize())
	}
	sortTeams(sorted)
	s.mutate(func() {
		s.teams = Teams{Items: sorted}
	})
}

// UpsertTeam inserts or replaces one team.
func (s *Store) UpsertTeam(team domain.Team) {
	team = team.Normalize()
	s.mutate(func() {
		if i, ok := s.indexLocked(team.ID); ok {
			s.teams.Items[i] = team
			return
		}
		s.teams.Items = append(s.teams.Items, team)
		sortTeams(s.teams.Items)
	})
}

// RemoveTeam drops a team; an unknown id is a no-op.
func (s *Store) RemoveTeam(id string) {
	s.mutate(func() {
		if i, ok := s.indexLocked(id); ok {
			s.teams.Items = append(s.teams.Items[:i], s.teams.Items[i+1:]...)
		}
	})
}

// SetTeamsError records a failed fetch and clears the loading flag.
func (s *Store) SetTeamsError(err error) {
	s.mutate(func() {
		s.teams.Loading = false
		s.teams.Err = err
	})
}

func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.version++
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version: s.version,
		Auth:    s.auth,
		Theme:   s.theme,
		Teams:   copyTeams(s.teams),
	}
}

func (s *Store) indexLocked(id string) (int, bool) {
	i := sort.Search(len(s.teams.Items), func(i int) bool { return s.teams.Items[i].ID >= id })
	if i < len(s.teams.Items) && s.teams.Items[i].ID == id {
		return i, true
	}
	return 0, false
}

func (s *Store) filter(keep func(domain.Team) bool) []domain.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Team, 0)
	for _, t := range s.teams.Items {
		if keep(t) {
			out = append(out, t.Normalize())
		}
	}
	return out
}

func copyTeams(t Teams) Teams {
	items := make([]domain.Team, len(t.Items))
	for i, team := range t.Items {
		items[i] = team.Normalize()
	}
	t.Items = items
	return t
}

func sortTeams(items []domain.Team) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
