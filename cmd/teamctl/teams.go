package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/splax/teamroster/internal/client/guard"
	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/client/teams"
	"github.com/splax/teamroster/internal/domain"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(value string) error {
	*l = append(*l, strings.TrimSpace(value))
	return nil
}

func (l listFlag) provided() bool {
	return len(l) > 0
}

func commandUsers(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		users, err := a.teams.Users(ctx)
		if err != nil {
			return err
		}
		a.out.profileTable(users)
		return nil
	})
}

func commandDashboard(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, domain.RoleUser, func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		if _, err := a.loadTeams(ctx); err != nil {
			return err
		}
		me := a.store.Auth().Session.Profile
		a.out.heading("Welcome, %s", displayName(me.Name, "Guest"))
		a.out.line("")
		a.out.heading("My teams")
		a.out.teamTable(a.store.TeamsAuthoredBy(me.ID))
		a.out.line("")
		a.out.heading("Member of")
		a.out.teamTable(a.store.TeamsWithMember(me.ID))
		return nil
	})
}

func commandAdmin(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, domain.RoleAdmin, func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		all, err := a.loadTeams(ctx)
		if err != nil {
			return err
		}
		profiles, err := a.teams.Profiles(ctx)
		if err != nil {
			return err
		}
		me := a.store.Auth().Session.Profile
		a.out.heading("Welcome, %s", displayName(me.Name, "Admin"))
		a.out.line("")
		a.out.heading("Teams I created")
		a.out.teamTable(a.store.TeamsAuthoredBy(me.ID))
		a.out.line("")
		a.out.heading("All teams (%d)", len(all.Items))
		a.out.teamTable(all.Items)
		a.out.line("")
		a.out.heading("Users")
		a.out.profileTable(profiles)
		return nil
	})
}

func commandTeam(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: teamctl team [list|show|watch|create|edit|delete|add-member|remove-member|answer]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return teamList(args[1:])
	case "show":
		return teamShow(args[1:])
	case "watch":
		return teamWatch(args[1:])
	case "create":
		return teamCreate(args[1:])
	case "edit":
		return teamEdit(args[1:])
	case "delete":
		return teamDelete(args[1:])
	case "add-member":
		return teamAddMember(args[1:])
	case "remove-member":
		return teamRemoveMember(args[1:])
	case "answer":
		return teamAnswer(args[1:])
	default:
		return fmt.Errorf("unknown team command: %s", sub)
	}
}

func teamList(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		all, err := a.loadTeams(ctx)
		if err != nil {
			return err
		}
		a.out.teamTable(all.Items)
		return nil
	})
}

func teamShow(args []string) error {
	teamID, err := positional(args, 1, "usage: teamctl team show TEAM_ID")
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		team, err := a.teams.Get(ctx, teamID[0])
		if err != nil {
			return err
		}
		a.out.teamDetail(team)
		return nil
	})
}

// teamWatch re-renders the team list on every Store change until interrupted.
func teamWatch(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stopRender := a.store.Subscribe(func(snap state.Snapshot) {
			switch {
			case snap.Teams.Loading:
				a.out.muted("loading teams...")
			case snap.Teams.Err != nil:
				a.out.muted("subscription error: %v", snap.Teams.Err)
				stop()
			default:
				a.out.heading("Teams (version %d)", snap.Version)
				a.out.teamTable(snap.Teams.Items)
			}
		})
		defer stopRender()

		dispose, err := a.teams.Watch(ctx)
		if err != nil {
			return err
		}
		defer dispose()

		<-ctx.Done()
		return a.store.Teams().Err
	})
}

func teamCreate(args []string) error {
	fs := flag.NewFlagSet("team create", flag.ExitOnError)
	name := fs.String("name", "", "Team name")
	category := fs.String("category", "", "Category (Marketing|Sales|Development|Design)")
	var members, questions listFlag
	fs.Var(&members, "member", "Member user id (repeatable)")
	fs.Var(&questions, "question", "Question text (repeatable, order kept)")
	fs.Parse(args)

	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		team, err := a.teams.Create(ctx, teams.Input{
			Name:      *name,
			Category:  domain.Category(*category),
			Members:   members,
			Questions: questions,
		})
		if err != nil {
			return err
		}
		fmt.Printf("team created: %s (%s)\n", team.ID, team.Name)
		return nil
	})
}

func teamEdit(args []string) error {
	rest, err := positional(args, 1, "usage: teamctl team edit TEAM_ID [flags]")
	if err != nil {
		return err
	}
	teamID := rest[0]
	fs := flag.NewFlagSet("team edit", flag.ExitOnError)
	name := fs.String("name", "", "New team name")
	category := fs.String("category", "", "New category")
	var members, questions listFlag
	fs.Var(&members, "member", "Member user id (repeatable, replaces the member list)")
	fs.Var(&questions, "question", "Question text (repeatable, replaces the questionnaire)")
	clearQuestions := fs.Bool("clear-questions", false, "Remove every question")
	fs.Parse(args[1:])

	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		current, err := a.manageableTeam(ctx, teamID)
		if err != nil {
			return err
		}
		in := teams.Input{
			Name:      current.Name,
			Category:  current.Category,
			Members:   current.MemberIDs(),
			Questions: current.Questions,
		}
		if strings.TrimSpace(*name) != "" {
			in.Name = *name
		}
		if strings.TrimSpace(*category) != "" {
			in.Category = domain.Category(*category)
		}
		if members.provided() {
			in.Members = members
		}
		if questions.provided() {
			in.Questions = questions
		} else if *clearQuestions {
			in.Questions = nil
		}
		team, err := a.teams.Update(ctx, teamID, in)
		if err != nil {
			return err
		}
		fmt.Printf("team updated: %s (%s)\n", team.ID, team.Name)
		return nil
	})
}

func teamDelete(args []string) error {
	rest, err := positional(args, 1, "usage: teamctl team delete TEAM_ID [--yes]")
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("team delete", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args[1:])

	if !*yes && !confirm(fmt.Sprintf("Delete team %s? This cannot be undone. [y/N] ", rest[0])) {
		fmt.Println("aborted")
		return nil
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		if _, err := a.manageableTeam(ctx, rest[0]); err != nil {
			return err
		}
		if err := a.teams.Delete(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Println("team deleted")
		return nil
	})
}

func teamAddMember(args []string) error {
	rest, err := positional(args, 2, "usage: teamctl team add-member TEAM_ID USER_ID")
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		if _, err := a.manageableTeam(ctx, rest[0]); err != nil {
			return err
		}
		team, err := a.teams.AddMember(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s now has %d members\n", team.Name, len(team.Members))
		return nil
	})
}

func teamRemoveMember(args []string) error {
	rest, err := positional(args, 2, "usage: teamctl team remove-member TEAM_ID USER_ID")
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		if _, err := a.manageableTeam(ctx, rest[0]); err != nil {
			return err
		}
		if err := a.teams.RemoveMember(ctx, rest[0], rest[1]); err != nil {
			return err
		}
		fmt.Println("member removed")
		return nil
	})
}

func teamAnswer(args []string) error {
	rest, err := positional(args, 1, "usage: teamctl team answer TEAM_ID --question INDEX --text ANSWER")
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("team answer", flag.ExitOnError)
	question := fs.Int("question", -1, "Question index (see 'teamctl team show')")
	text := fs.String("text", "", "Answer text")
	fs.Parse(args[1:])

	a, err := newApp()
	if err != nil {
		return err
	}
	return guard.Protect(a.store, "", func() error {
		ctx, cancel := withTimeout()
		defer cancel()
		answer, err := a.teams.SubmitAnswer(ctx, rest[0], *question, *text)
		if err != nil {
			return err
		}
		fmt.Printf("answer saved: %q\n", answer.Answer)
		return nil
	})
}

// errNotAuthor rejects changes to another user's team.
var errNotAuthor = errors.New("only the team's author or an admin can change it")

// manageableTeam loads a team and checks that the signed-in user may change it.
func (a *app) manageableTeam(ctx context.Context, teamID string) (domain.Team, error) {
	team, err := a.teams.Get(ctx, teamID)
	if err != nil {
		return domain.Team{}, err
	}
	if !guard.CanManage(a.store.Auth(), team.Author) {
		return domain.Team{}, errNotAuthor
	}
	return team, nil
}

// positional returns the first n arguments when none of them is a flag.
func positional(args []string, n int, usage string) ([]string, error) {
	if len(args) < n {
		return nil, errors.New(usage)
	}
	for _, arg := range args[:n] {
		if strings.HasPrefix(arg, "-") || strings.TrimSpace(arg) == "" {
			return nil, errors.New(usage)
		}
	}
	return args[:n], nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
