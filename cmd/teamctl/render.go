package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/domain"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiCyan  = "\033[96m"
	ansiBlue  = "\033[34m"
	ansiGray  = "\033[90m"
	ansiWhite = "\033[97m"
)

// printer renders views using the Store's theme slice.
type printer struct {
	w     io.Writer
	store *state.Store
}

func newPrinter(w io.Writer, store *state.Store) *printer {
	return &printer{w: w, store: store}
}

func (p *printer) heading(format string, args ...any) {
	color := ansiBlue
	if p.store.Theme().DarkMode {
		color = ansiCyan
	}
	fmt.Fprintf(p.w, "%s%s%s%s\n", ansiBold, color, fmt.Sprintf(format, args...), ansiReset)
}

func (p *printer) muted(format string, args ...any) {
	color := ansiGray
	if p.store.Theme().DarkMode {
		color = ansiWhite
	}
	fmt.Fprintf(p.w, "%s%s%s\n", color, fmt.Sprintf(format, args...), ansiReset)
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) teamTable(teams []domain.Team) {
	if len(teams) == 0 {
		p.muted("no teams")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tAUTHOR\tMEMBERS\tQUESTIONS")
	for _, t := range teams {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", t.ID, t.Name, t.Category, t.Author, len(t.Members), len(t.Questions))
	}
	tw.Flush()
}

func (p *printer) profileTable(profiles []domain.Profile) {
	if len(profiles) == 0 {
		p.muted("no users")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, displayName(u.Name, "No Name"), u.Email, u.Role)
	}
	tw.Flush()
}

func (p *printer) teamDetail(t domain.Team) {
	p.heading("%s", t.Name)
	p.line("id:       %s", t.ID)
	p.line("category: %s", t.Category)
	p.line("author:   %s", t.Author)
	p.line("")
	p.heading("Questions")
	if len(t.Questions) == 0 {
		p.muted("no questions")
	}
	for i, q := range t.Questions {
		p.line("  %d. %s", i, q)
	}
	p.line("")
	p.heading("Members")
	for _, uid := range t.MemberIDs() {
		m := t.Members[uid]
		p.line("  %s (%s)", displayName(m.Name, "No Name"), uid)
		keys := make([]string, 0, len(m.Answers))
		for k := range m.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			a := m.Answers[k]
			p.muted("    [%s] %s  (%s)", k, a.Answer, time.UnixMilli(a.Timestamp).Format(time.RFC3339))
		}
	}
}

func displayName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
