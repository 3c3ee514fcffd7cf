// Package teams is the action layer for team lifecycle operations. Every operation writes
// to the remote store first and then updates the client Store; subscription snapshots
// later replace the teams slice wholesale.
package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/domain"
)

const (
	unknownName = "Unknown"
	noName      = "No Name"

	nameLookupConcurrency = 8
)

// Remote is the path-addressed document store.
type Remote interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, patch map[string]any) error
	Remove(ctx context.Context, path string) error
	Subscribe(ctx context.Context, path string, onValue func(any), onError func(error)) (func(), error)
}

// Identity reports the live session.
type Identity interface {
	Current() (state.Session, bool)
}

// Actions performs team operations.
type Actions struct {
	remote   Remote
	store    *state.Store
	identity Identity
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises Actions.
type Option func(*Actions)

// WithClock overrides the answer timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Actions) {
		a.now = now
	}
}

// New constructs Actions.
func New(remote Remote, store *state.Store, identity Identity, logger *slog.Logger, opts ...Option) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Actions{remote: remote, store: store, identity: identity, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Actions) session() (state.Session, error) {
	session, ok := a.identity.Current()
	if !ok || session.Profile.ID == "" {
		return state.Session{}, ErrNotAuthenticated
	}
	return session, nil
}

// Create validates in and writes a new team authored by the signed-in user.
func (a *Actions) Create(ctx context.Context, in Input) (domain.Team, error) {
	form, err := in.normalize()
	if err != nil {
		return domain.Team{}, err
	}
	session, err := a.session()
	if err != nil {
		return domain.Team{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Team{}, fmt.Errorf("generate team id: %w", err)
	}

	names := a.resolveNames(ctx, form.Members)
	members := make(map[string]domain.Member, len(form.Members))
	for _, uid := range form.Members {
		members[uid] = domain.Member{Name: names[uid], Answers: map[string]domain.Answer{}}
	}
	team := domain.Team{
		ID:        id.String(),
		Name:      form.Name,
		Author:    session.Profile.ID,
		Category:  form.Category,
		Members:   members,
		Questions: form.Questions,
	}

	if err := a.remote.Set(ctx, domain.TeamPath(team.ID), team.Document()); err != nil {
		a.logger.Error("create team failed", "team_id", team.ID, "error", err)
		return domain.Team{}, err
	}
	a.store.UpsertTeam(team)
	a.logger.Info("team created", "team_id", team.ID, "members", len(members))
	return team, nil
}

// Watch subscribes to every team. Each snapshot replaces the Store's teams slice. The
// disposer must be called when the caller stops watching.
func (a *Actions) Watch(ctx context.Context) (func(), error) {
	a.store.SetTeamsLoading()
	dispose, err := a.remote.Subscribe(ctx, domain.TeamsPath, func(value any) {
		teams, err := decodeTeams(value)
		if err != nil {
			a.logger.Warn("discarding malformed teams snapshot", "error", err)
			a.store.SetTeamsError(err)
			return
		}
		a.store.ReplaceTeams(teams)
	}, func(err error) {
		a.logger.Warn("teams subscription ended", "error", err)
		a.store.SetTeamsError(err)
	})
	if err != nil {
		a.store.SetTeamsError(err)
		return nil, err
	}
	return dispose, nil
}

// Get reads one team and caches it.
func (a *Actions) Get(ctx context.Context, id string) (domain.Team, error) {
	value, err := a.remote.Get(ctx, domain.TeamPath(id))
	if err != nil {
		return domain.Team{}, err
	}
	if value == nil {
		return domain.Team{}, ErrTeamNotFound
	}
	team, err := decodeTeam(id, value)
	if err != nil {
		return domain.Team{}, err
	}
	a.store.UpsertTeam(team)
	return team, nil
}

// Update applies the edit form as one patch. Retained members keep their entries
// untouched; added members get resolved names; dropped members are removed.
func (a *Actions) Update(ctx context.Context, id string, in Input) (domain.Team, error) {
	form, err := in.normalize()
	if err != nil {
		return domain.Team{}, err
	}
	if _, err := a.session(); err != nil {
		return domain.Team{}, err
	}
	current, err := a.Get(ctx, id)
	if err != nil {
		return domain.Team{}, err
	}

	keep := make(map[string]struct{}, len(form.Members))
	var added []string
	for _, uid := range form.Members {
		keep[uid] = struct{}{}
		if !current.HasMember(uid) {
			added = append(added, uid)
		}
	}
	names := a.resolveNames(ctx, added)

	questions := make([]any, 0, len(form.Questions))
	for _, q := range form.Questions {
		questions = append(questions, q)
	}
	patch := map[string]any{
		"name":      form.Name,
		"category":  string(form.Category),
		"questions": questions,
	}
	updated := current.Normalize()
	updated.Name = form.Name
	updated.Category = form.Category
	updated.Questions = form.Questions
	for _, uid := range added {
		member := domain.Member{Name: names[uid], Answers: map[string]domain.Answer{}}
		patch["members/"+uid] = member.Document()
		updated.Members[uid] = member
	}
	for _, uid := range current.MemberIDs() {
		if _, ok := keep[uid]; !ok {
			patch["members/"+uid] = nil
			delete(updated.Members, uid)
		}
	}

	if err := a.remote.Update(ctx, domain.TeamPath(id), patch); err != nil {
		a.logger.Error("update team failed", "team_id", id, "error", err)
		return domain.Team{}, err
	}
	a.store.UpsertTeam(updated)
	a.logger.Info("team updated", "team_id", id, "added", len(added))
	return updated, nil
}

// Delete removes the team remotely, then locally.
func (a *Actions) Delete(ctx context.Context, id string) error {
	if err := a.remote.Remove(ctx, domain.TeamPath(id)); err != nil {
		a.logger.Error("delete team failed", "team_id", id, "error", err)
		return err
	}
	a.store.RemoveTeam(id)
	a.logger.Info("team deleted", "team_id", id)
	return nil
}

// AddMember adds userID with a resolved name. Adding an existing member changes nothing.
func (a *Actions) AddMember(ctx context.Context, teamID, userID string) (domain.Team, error) {
	team, err := a.Get(ctx, teamID)
	if err != nil {
		return domain.Team{}, err
	}
	if team.HasMember(userID) {
		return team, nil
	}
	member := domain.Member{Name: a.resolveNames(ctx, []string{userID})[userID], Answers: map[string]domain.Answer{}}
	if err := a.remote.Set(ctx, domain.MemberPath(teamID, userID), member.Document()); err != nil {
		a.logger.Error("add member failed", "team_id", teamID, "user_id", userID, "error", err)
		return domain.Team{}, err
	}
	team.Members[userID] = member
	a.store.UpsertTeam(team)
	return team, nil
}

// RemoveMember drops one member entry. Removing an absent member succeeds without change.
func (a *Actions) RemoveMember(ctx context.Context, teamID, userID string) error {
	if err := a.remote.Remove(ctx, domain.MemberPath(teamID, userID)); err != nil {
		a.logger.Error("remove member failed", "team_id", teamID, "user_id", userID, "error", err)
		return err
	}
	if team, ok := a.store.Team(teamID); ok && team.HasMember(userID) {
		delete(team.Members, userID)
		a.store.UpsertTeam(team)
	}
	return nil
}

// SubmitAnswer records the signed-in member's answer to question questionIndex. The
// timestamp never moves backwards for a given answer slot.
func (a *Actions) SubmitAnswer(ctx context.Context, teamID string, questionIndex int, text string) (domain.Answer, error) {
	session, err := a.session()
	if err != nil {
		return domain.Answer{}, err
	}
	text = trimmed(text)
	if text == "" {
		return domain.Answer{}, fmt.Errorf("%w: answer text is required", ErrInvalidAnswer)
	}
	team, err := a.Get(ctx, teamID)
	if err != nil {
		return domain.Answer{}, err
	}
	if questionIndex < 0 || questionIndex >= len(team.Questions) {
		return domain.Answer{}, fmt.Errorf("%w: question %d does not exist", ErrInvalidAnswer, questionIndex)
	}
	uid := session.Profile.ID
	member, ok := team.Members[uid]
	if !ok {
		return domain.Answer{}, ErrNotMember
	}

	key := domain.AnswerKey(questionIndex)
	answer := domain.Answer{Answer: text, Timestamp: a.now().UnixMilli()}
	if prev, ok := member.Answers[key]; ok && prev.Timestamp > answer.Timestamp {
		answer.Timestamp = prev.Timestamp
	}
	if err := a.remote.Set(ctx, domain.AnswerPath(teamID, uid, questionIndex), answer.Document()); err != nil {
		a.logger.Error("submit answer failed", "team_id", teamID, "question", questionIndex, "error", err)
		return domain.Answer{}, err
	}
	member.Answers[key] = answer
	team.Members[uid] = member
	a.store.UpsertTeam(team)
	return answer, nil
}

// Users lists profiles with the user role, the candidates for team membership.
func (a *Actions) Users(ctx context.Context) ([]domain.Profile, error) {
	profiles, err := a.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	out := profiles[:0]
	for _, p := range profiles {
		if p.Role == domain.RoleUser {
			out = append(out, p)
		}
	}
	return out, nil
}

// Profiles lists every profile sorted by name.
func (a *Actions) Profiles(ctx context.Context) ([]domain.Profile, error) {
	value, err := a.remote.Get(ctx, "users")
	if err != nil {
		return nil, err
	}
	var byID map[string]domain.Profile
	if err := decode(value, &byID); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := make([]domain.Profile, 0, len(byID))
	for id, p := range byID {
		p.ID = id
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// resolveNames looks up display names in parallel. Failed lookups become "Unknown" and
// profiles without a name become "No Name"; neither aborts the caller.
func (a *Actions) resolveNames(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nameLookupConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			name := noName
			value, err := a.remote.Get(gctx, domain.UserPath(id)+"/name")
			switch {
			case err != nil:
				a.logger.Warn("member name lookup failed", "user_id", id, "error", err)
				name = unknownName
			default:
				if s, ok := value.(string); ok && trimmed(s) != "" {
					name = s
				}
			}
			mu.Lock()
			names[id] = name
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return names
}

func decodeTeams(value any) ([]domain.Team, error) {
	if value == nil {
		return nil, nil
	}
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("teams snapshot is %T, not an object", value)
	}
	out := make([]domain.Team, 0, len(raw))
	for id, v := range raw {
		team, err := decodeTeam(id, v)
		if err != nil {
			return nil, err
		}
		out = append(out, team)
	}
	return out, nil
}

func decodeTeam(id string, value any) (domain.Team, error) {
	var team domain.Team
	if err := decode(value, &team); err != nil {
		return domain.Team{}, fmt.Errorf("decode team %s: %w", id, err)
	}
	team.ID = id
	return team.Normalize(), nil
}

func decode(value any, out any) error {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
