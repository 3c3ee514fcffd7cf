package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/domain"
	"github.com/splax/teamroster/internal/repository/memory"
	"github.com/splax/teamroster/internal/service/documents"
	"github.com/splax/teamroster/internal/service/rules"
)

// serviceRemote drives the real document service, round-tripping values through JSON
// the way the HTTP client does.
type serviceRemote struct {
	docs  *documents.Service
	actor rules.Actor

	mu       sync.Mutex
	writes   int
	failGets map[string]error
}

func (r *serviceRemote) Get(ctx context.Context, path string) (any, error) {
	r.mu.Lock()
	err := r.failGets[path]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	v, err := r.docs.Get(ctx, r.actor, path)
	if err != nil {
		return nil, err
	}
	return roundTrip(v), nil
}

func (r *serviceRemote) Set(ctx context.Context, path string, value any) error {
	r.countWrite()
	return r.docs.Set(ctx, r.actor, path, roundTrip(value))
}

func (r *serviceRemote) Update(ctx context.Context, path string, patch map[string]any) error {
	r.countWrite()
	return r.docs.Update(ctx, r.actor, path, roundTrip(patch).(map[string]any))
}

func (r *serviceRemote) Remove(ctx context.Context, path string) error {
	r.countWrite()
	return r.docs.Remove(ctx, r.actor, path)
}

func (r *serviceRemote) Subscribe(ctx context.Context, path string, onValue func(any), onError func(error)) (func(), error) {
	return r.docs.Subscribe(ctx, r.actor, path, funcSubscriber{onValue: onValue, onError: onError})
}

func (r *serviceRemote) countWrite() {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
}

func (r *serviceRemote) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type funcSubscriber struct {
	onValue func(any)
	onError func(error)
}

func (s funcSubscriber) Send(p []byte) error {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var snap documents.Snapshot
	if err := dec.Decode(&snap); err != nil {
		s.onError(err)
		return err
	}
	s.onValue(snap.Value)
	return nil
}

func (funcSubscriber) Close() {}

func roundTrip(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		panic(err)
	}
	return out
}

type staticIdentity struct {
	session state.Session
	ok      bool
}

func (s staticIdentity) Current() (state.Session, bool) {
	return s.session, s.ok
}

type fixture struct {
	actions *Actions
	remote  *serviceRemote
	store   *state.Store
	docs    *documents.Service
}

func newFixture(t *testing.T, signedIn string, opts ...Option) fixture {
	t.Helper()
	docs := documents.New(memory.New(), nil)
	t.Cleanup(docs.Close)

	ctx := context.Background()
	for _, p := range []domain.Profile{
		{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleUser},
		{ID: "u2", Name: "Bob", Email: "bob@example.com", Role: domain.RoleUser},
		{ID: "u3", Name: "", Email: "anon@example.com", Role: domain.RoleUser},
		{ID: "a1", Name: "Root", Email: "root@example.com", Role: domain.RoleAdmin},
	} {
		require.NoError(t, docs.Set(ctx, rules.SystemActor, domain.UserPath(p.ID), p.Document()))
	}

	remote := &serviceRemote{
		docs:     docs,
		actor:    rules.Actor{UserID: signedIn, Role: domain.RoleUser},
		failGets: map[string]error{},
	}
	store := state.New(nil, nil)
	identity := staticIdentity{}
	if signedIn != "" {
		identity = staticIdentity{ok: true, session: state.Session{
			Profile:     domain.Profile{ID: signedIn, Role: domain.RoleUser},
			AccessToken: "token",
		}}
	}
	return fixture{
		actions: New(remote, store, identity, nil, opts...),
		remote:  remote,
		store:   store,
		docs:    docs,
	}
}

func launchInput() Input {
	return Input{
		Name:      "Launch",
		Category:  domain.CategoryDesign,
		Members:   []string{"u1", "u2"},
		Questions: []string{"Q1", "Q2"},
	}
}

func TestCreateWritesTeamAndAnswerRoundTrips(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	team, err := f.actions.Create(ctx, launchInput())
	require.NoError(t, err)
	require.NotEmpty(t, team.ID)
	require.Equal(t, "u1", team.Author)

	stored, err := f.actions.Get(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, "Launch", stored.Name)
	require.Equal(t, domain.CategoryDesign, stored.Category)
	require.Equal(t, []string{"Q1", "Q2"}, stored.Questions)
	require.Equal(t, []string{"u1", "u2"}, stored.MemberIDs())
	require.Equal(t, "Ada", stored.Members["u1"].Name)
	require.Equal(t, "Bob", stored.Members["u2"].Name)
	require.Empty(t, stored.Members["u1"].Answers)

	_, err = f.actions.SubmitAnswer(ctx, team.ID, 0, "Yes")
	require.NoError(t, err)

	got, err := f.remote.Get(ctx, domain.AnswerPath(team.ID, "u1", 0)+"/answer")
	require.NoError(t, err)
	require.Equal(t, "Yes", got)

	cached, ok := f.store.Team(team.ID)
	require.True(t, ok)
	require.Equal(t, "Yes", cached.Members["u1"].Answers["0"].Answer)
}

func TestCreateRejectsInvalidInputWithoutWriting(t *testing.T) {
	f := newFixture(t, "u1")

	_, err := f.actions.Create(context.Background(), Input{
		Name:      "  ",
		Category:  "Finance",
		Questions: []string{"ok", " "},
	})
	require.ErrorIs(t, err, ErrInvalidTeam)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Problems, 4)
	require.Zero(t, f.remote.writeCount())
	require.Empty(t, f.store.Teams().Items)
}

func TestCreateRequiresSession(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.actions.Create(context.Background(), launchInput())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Zero(t, f.remote.writeCount())
}

func TestCreateDedupesMembersAndResolvesFallbackNames(t *testing.T) {
	f := newFixture(t, "u1")
	f.remote.failGets[domain.UserPath("u2")+"/name"] = errors.New("boom")
	ctx := context.Background()

	team, err := f.actions.Create(ctx, Input{
		Name:     "Pipeline",
		Category: domain.CategorySales,
		Members:  []string{"u1", "u2", "u1", "u3", "ghost"},
	})
	require.NoError(t, err)
	require.Empty(t, team.Questions)
	require.Equal(t, []string{"ghost", "u1", "u2", "u3"}, team.MemberIDs())
	require.Equal(t, "Ada", team.Members["u1"].Name)
	require.Equal(t, unknownName, team.Members["u2"].Name)
	require.Equal(t, noName, team.Members["u3"].Name)
	require.Equal(t, noName, team.Members["ghost"].Name)
}

func TestWatchMirrorsRemoteTeams(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	dispose, err := f.actions.Watch(ctx)
	require.NoError(t, err)
	defer dispose()

	require.Eventually(t, func() bool {
		teams := f.store.Teams()
		return !teams.Loading && len(teams.Items) == 0
	}, time.Second, 10*time.Millisecond)

	team, err := f.actions.Create(ctx, launchInput())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := f.store.Team(team.ID)
		return ok
	}, time.Second, 10*time.Millisecond)

	// A write made by someone else arrives through the subscription.
	other := domain.Team{ID: "t-other", Name: "Other", Author: "u2", Category: domain.CategorySales,
		Members: map[string]domain.Member{"u2": {Name: "Bob"}}}
	require.NoError(t, f.docs.Set(ctx, rules.SystemActor, domain.TeamPath(other.ID), other.Document()))
	require.Eventually(t, func() bool {
		return len(f.store.Teams().Items) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.actions.Delete(ctx, team.ID))
	require.Eventually(t, func() bool {
		items := f.store.Teams().Items
		return len(items) == 1 && items[0].ID == "t-other"
	}, time.Second, 10*time.Millisecond)

	v, err := f.remote.Get(ctx, domain.TeamPath(team.ID))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestUpdateKeepsRetainedMembers(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	team, err := f.actions.Create(ctx, launchInput())
	require.NoError(t, err)
	_, err = f.actions.SubmitAnswer(ctx, team.ID, 1, "Later")
	require.NoError(t, err)

	updated, err := f.actions.Update(ctx, team.ID, Input{
		Name:      "Launch v2",
		Category:  domain.CategoryDevelopment,
		Members:   []string{"u1", "u3"},
		Questions: []string{"Q1", "Q2", "Q3"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u3"}, updated.MemberIDs())

	stored, err := f.actions.Get(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, "Launch v2", stored.Name)
	require.Equal(t, "u1", stored.Author)
	require.Equal(t, domain.CategoryDevelopment, stored.Category)
	require.Equal(t, []string{"Q1", "Q2", "Q3"}, stored.Questions)
	require.Equal(t, []string{"u1", "u3"}, stored.MemberIDs())
	require.Equal(t, "Later", stored.Members["u1"].Answers["1"].Answer)
	require.Equal(t, noName, stored.Members["u3"].Name)
}

func TestUpdateMissingTeam(t *testing.T) {
	f := newFixture(t, "u1")

	_, err := f.actions.Update(context.Background(), "nope", launchInput())
	require.ErrorIs(t, err, ErrTeamNotFound)
	require.Zero(t, f.remote.writeCount())
}

func TestMembershipChangesAreIdempotent(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	team, err := f.actions.Create(ctx, Input{Name: "Solo", Category: domain.CategoryMarketing, Members: []string{"u1"}})
	require.NoError(t, err)

	added, err := f.actions.AddMember(ctx, team.ID, "u2")
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, added.MemberIDs())

	writes := f.remote.writeCount()
	again, err := f.actions.AddMember(ctx, team.ID, "u2")
	require.NoError(t, err)
	require.Equal(t, added.MemberIDs(), again.MemberIDs())
	require.Equal(t, writes, f.remote.writeCount())

	require.NoError(t, f.actions.RemoveMember(ctx, team.ID, "u2"))
	require.NoError(t, f.actions.RemoveMember(ctx, team.ID, "u2"))

	stored, err := f.actions.Get(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, stored.MemberIDs())
}

func TestSubmitAnswerRules(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	team, err := f.actions.Create(ctx, Input{Name: "Crew", Category: domain.CategorySales, Members: []string{"u2"}, Questions: []string{"Q1"}})
	require.NoError(t, err)

	_, err = f.actions.SubmitAnswer(ctx, team.ID, 0, "   ")
	require.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = f.actions.SubmitAnswer(ctx, team.ID, 1, "Yes")
	require.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = f.actions.SubmitAnswer(ctx, team.ID, 0, "Yes")
	require.ErrorIs(t, err, ErrNotMember)

	_, err = f.actions.SubmitAnswer(ctx, "missing", 0, "Yes")
	require.ErrorIs(t, err, ErrTeamNotFound)
}

func TestAnswerTimestampsNeverDecrease(t *testing.T) {
	clock := time.UnixMilli(2_000)
	f := newFixture(t, "u1", WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	team, err := f.actions.Create(ctx, launchInput())
	require.NoError(t, err)

	first, err := f.actions.SubmitAnswer(ctx, team.ID, 0, "Yes")
	require.NoError(t, err)
	require.Equal(t, int64(2_000), first.Timestamp)

	clock = time.UnixMilli(1_000)
	second, err := f.actions.SubmitAnswer(ctx, team.ID, 0, "No")
	require.NoError(t, err)
	require.Equal(t, "No", second.Answer)
	require.Equal(t, int64(2_000), second.Timestamp)

	clock = time.UnixMilli(3_000)
	third, err := f.actions.SubmitAnswer(ctx, team.ID, 0, "Maybe")
	require.NoError(t, err)
	require.Equal(t, int64(3_000), third.Timestamp)
}

func TestUsersListsOnlyUserRoleSortedByName(t *testing.T) {
	f := newFixture(t, "u1")

	users, err := f.actions.Users(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(users))
	for _, u := range users {
		require.Equal(t, domain.RoleUser, u.Role)
		names = append(names, u.ID)
	}
	require.Equal(t, []string{"u3", "u1", "u2"}, names)
}
