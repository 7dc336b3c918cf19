package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pawprox/pawchat/internal/profile"
	"github.com/pawprox/pawchat/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Credential commands work without a running daemon.
	switch args[0] {
	case "login":
		cmdLogin(profileName, args[1:])
		return
	case "logout":
		cmdLogout(profileName)
		return
	case "profiles":
		cmdProfiles(*jsonFlag)
		return
	}

	socketPath := profile.SocketPath(profileName)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cmd := command{ctx: ctx, c: c, json: *jsonFlag}
	switch args[0] {
	case "status":
		cmd.status()
	case "friends":
		cmd.friends()
	case "requests":
		cmd.requests()
	case "search":
		need(args, 2, "search <query>")
		cmd.search(args[1])
	case "add":
		need(args, 2, "add <user-id>")
		cmd.add(parseID(args[1]))
	case "accept":
		need(args, 3, "accept <request-id> <sender-id>")
		cmd.accept(parseID(args[1]), parseID(args[2]))
	case "decline":
		need(args, 2, "decline <request-id>")
		cmd.decline(parseID(args[1]))
	case "remove":
		cmd.remove(args[1:])
	case "open":
		need(args, 2, "open <friend-id>")
		cmd.open(parseID(args[1]))
	case "close":
		cmd.close()
	case "messages":
		cmd.messages()
	case "send":
		cmd.send(args[1:])
	case "like":
		need(args, 2, "like <message-id>")
		cmd.like(parseID(args[1]))
	case "delete":
		cmd.delete(args[1:])
	case "unread":
		cmd.unread()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pawchatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login --token T [--user-id N --name X]   Save the profile credential")
	fmt.Fprintln(os.Stderr, "  logout                                   Forget the profile credential")
	fmt.Fprintln(os.Stderr, "  profiles                                 List profiles")
	fmt.Fprintln(os.Stderr, "  status                                   Show session status")
	fmt.Fprintln(os.Stderr, "  friends                                  List friends with unread counts")
	fmt.Fprintln(os.Stderr, "  requests                                 List incoming friend requests")
	fmt.Fprintln(os.Stderr, "  search <query>                           Search users by name")
	fmt.Fprintln(os.Stderr, "  add <user-id>                            Send a friend request")
	fmt.Fprintln(os.Stderr, "  accept <request-id> <sender-id>          Accept a friend request")
	fmt.Fprintln(os.Stderr, "  decline <request-id>                     Decline a friend request")
	fmt.Fprintln(os.Stderr, "  remove [--yes] <friend-id>               Remove a friend")
	fmt.Fprintln(os.Stderr, "  open <friend-id>                         Open a conversation")
	fmt.Fprintln(os.Stderr, "  close                                    Close the conversation")
	fmt.Fprintln(os.Stderr, "  messages                                 Show the open conversation")
	fmt.Fprintln(os.Stderr, "  send [--reply <id>] <text>               Send a message")
	fmt.Fprintln(os.Stderr, "  like <message-id>                        Like a message")
	fmt.Fprintln(os.Stderr, "  delete [--yes] <message-id>              Delete one of your messages")
	fmt.Fprintln(os.Stderr, "  unread                                   Show unread counters")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                           Stream session events")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: pawchatctl %s\n", usage)
		os.Exit(1)
	}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fatal(fmt.Errorf("invalid id %q", s))
	}
	return id
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
