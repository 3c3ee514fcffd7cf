package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/splax/teamroster/internal/client/guard"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "signup":
		err = commandSignup(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout(args)
	case "whoami":
		err = commandWhoami(args)
	case "theme":
		err = commandTheme(args)
	case "users":
		err = commandUsers(args)
	case "dashboard":
		err = commandDashboard(args)
	case "admin":
		err = commandAdmin(args)
	case "team":
		err = commandTeam(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		var redirect *guard.RedirectError
		if errors.As(err, &redirect) {
			fmt.Fprintf(os.Stderr, "error: not permitted, run 'teamctl %s' first\n", redirect.To)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("teamctl %s\n", buildVersion)
}

func printUsage() {
	fmt.Println(`teamctl - team roster client

Usage:
  teamctl signup --name NAME --email EMAIL [--password PASSWORD] [--role user|admin]
  teamctl login --email EMAIL [--password PASSWORD]
  teamctl logout
  teamctl whoami [--check]
  teamctl theme [toggle|dark|light]
  teamctl users
  teamctl dashboard
  teamctl admin
  teamctl team list
  teamctl team show TEAM_ID
  teamctl team watch
  teamctl team create --name NAME --category CATEGORY --member USER_ID... [--question TEXT...]
  teamctl team edit TEAM_ID [--name NAME] [--category CATEGORY] [--member USER_ID...] [--question TEXT...]
  teamctl team delete TEAM_ID [--yes]
  teamctl team add-member TEAM_ID USER_ID
  teamctl team remove-member TEAM_ID USER_ID
  teamctl team answer TEAM_ID --question INDEX --text ANSWER
  teamctl version

Settings live in the teamroster config directory (config.yaml) and can be
overridden with TEAMCTL_API_BASE_URL and TEAMCTL_DARK_MODE.`)
}
