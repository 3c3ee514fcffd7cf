package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/splax/teamroster/internal/client/guard"
	"github.com/splax/teamroster/internal/domain"
)

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	role := fs.String("role", string(domain.RoleUser), "Role (user|admin)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	parsedRole, err := domain.ParseRole(*role)
	if err != nil {
		return err
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout()
	defer cancel()

	session, err := a.identity.SignUp(ctx, *name, *email, secret, parsedRole)
	if err != nil {
		return err
	}
	fmt.Printf("signed up as %s (%s)\n", session.Profile.Email, session.Profile.Role)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout()
	defer cancel()

	session, err := a.identity.SignIn(ctx, *email, secret)
	if err != nil {
		return err
	}
	fmt.Println("login successful")
	switch session.Profile.Role {
	case domain.RoleAdmin:
		fmt.Println("next: teamctl admin")
	default:
		fmt.Println("next: teamctl dashboard")
	}
	return nil
}

func commandLogout(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.identity.SignOut(); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	check := fs.Bool("check", false, "Revalidate the stored session with the server")
	fs.Parse(args)

	a, err := newApp()
	if err != nil {
		return err
	}
	if *check {
		ctx, cancel := withTimeout()
		defer cancel()
		if err := a.identity.Revalidate(ctx); err != nil {
			return err
		}
	}
	return guard.Protect(a.store, "", func() error {
		p := a.store.Auth().Session.Profile
		a.out.line("%s\t%s\t%s\t%s", p.ID, displayName(p.Name, "No Name"), p.Email, p.Role)
		return nil
	})
}

func commandTheme(args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	action := "toggle"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "toggle":
		a.store.ToggleDarkMode()
	case "dark":
		a.store.SetDarkMode(true)
	case "light":
		a.store.SetDarkMode(false)
	case "show":
	default:
		return fmt.Errorf("unknown theme action: %s", action)
	}
	dark := a.store.Theme().DarkMode
	if err := a.settings.SetDarkMode(dark); err != nil {
		return err
	}
	if dark {
		a.out.heading("dark mode on")
	} else {
		a.out.heading("dark mode off")
	}
	return nil
}

func readSecret(flagValue string) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Print("\n")
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(bytes), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
