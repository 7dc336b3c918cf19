package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/auth"
	"github.com/pawprox/pawchat/internal/config"
	"github.com/pawprox/pawchat/internal/lock"
	"github.com/pawprox/pawchat/internal/profile"
	"github.com/pawprox/pawchat/internal/store"
	"github.com/pawprox/pawchat/internal/tui/client"
)

func openStore(profileName string) *store.DB {
	if err := profile.EnsureDir(profileName); err != nil {
		fatal(err)
	}
	db, _, err := store.OpenMigrated(profile.DBPath(profileName))
	if err != nil {
		fatal(err)
	}
	return db
}

func cmdLogin(profileName string, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", config.EnvToken(), "bearer token (default $PAWCHAT_TOKEN)")
	userID := fs.Int64("user-id", 0, "user id when the token carries none")
	username := fs.String("username", "", "username override")
	name := fs.String("name", "", "display name override")
	_ = fs.Parse(args)

	if *token == "" {
		fatal(fmt.Errorf("a token is required (--token or PAWCHAT_TOKEN)"))
	}
	id, err := auth.FromToken(*token)
	if err != nil {
		if *userID == 0 {
			fatal(fmt.Errorf("%w; pass --user-id", err))
		}
		id = auth.Identity{Token: *token}
	}
	if *userID != 0 {
		id.UserID = *userID
	}
	if *username != "" {
		id.Username = *username
	}
	if *name != "" {
		id.Name = *name
	}

	db := openStore(profileName)
	defer func() { _ = db.Close() }()
	if err := db.SaveCredential(profileName, id); err != nil {
		fatal(err)
	}
	fmt.Printf("Logged in as %s (#%d) on profile %q.\n", id.DisplayName(), id.UserID, profileName)
	if lock.Holder(profile.Dir(profileName)) != 0 {
		fmt.Println("Restart the daemon to use the new credential.")
	}
}

func cmdLogout(profileName string) {
	db := openStore(profileName)
	defer func() { _ = db.Close() }()
	if err := db.DeleteCredential(profileName); err != nil {
		fatal(err)
	}
	fmt.Printf("Logged out of profile %q.\n", profileName)
}

type profileInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	LoggedIn bool   `json:"logged_in"`
	Running  bool   `json:"daemon_running"`
}

func cmdProfiles(jsonOut bool) {
	names, err := profile.List()
	if err != nil {
		fatal(err)
	}
	infos := make([]profileInfo, 0, len(names))
	for _, n := range names {
		info := profileInfo{Name: n, Path: profile.Dir(n), Running: lock.Holder(profile.Dir(n)) != 0}
		if _, err := os.Stat(profile.DBPath(n)); err == nil {
			db := openStore(n)
			_, err := db.GetCredential(n)
			info.LoggedIn = err == nil
			_ = db.Close()
		}
		infos = append(infos, info)
	}
	if jsonOut {
		outputJSON(infos)
		return
	}
	if len(infos) == 0 {
		fmt.Println("No profiles found.")
		return
	}
	for _, p := range infos {
		state := "stopped"
		if p.Running {
			state = "running"
		}
		login := "logged out"
		if p.LoggedIn {
			login = "logged in"
		}
		fmt.Printf("%-20s %s (%s, %s)\n", p.Name, p.Path, state, login)
	}
}

func cmdWatch(c *client.Client, args []string, jsonOut bool) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := c.Watch(ctx, prefix, func(evt api.Event) {
		if jsonOut {
			outputJSON(evt)
			return
		}
		fmt.Printf("%s %-28s %s\n", evt.At.Local().Format("15:04:05"), evt.Kind, string(evt.Payload))
	})
	if err != nil {
		fatal(err)
	}
}
