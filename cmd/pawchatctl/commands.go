package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/confirm"
	"github.com/pawprox/pawchat/internal/tui/client"
)

// command runs one daemon call and prints its result.
type command struct {
	ctx  context.Context
	c    *client.Client
	json bool
}

func (cmd command) check(err error) {
	if err != nil {
		fatal(err)
	}
}

func (cmd command) done(v any, text string) {
	if cmd.json {
		outputJSON(v)
		return
	}
	fmt.Println(text)
}

func (cmd command) status() {
	st, err := cmd.c.Status(cmd.ctx)
	cmd.check(err)
	if cmd.json {
		outputJSON(st)
		return
	}
	fmt.Printf("Profile:   %s\n", st.Profile)
	fmt.Printf("User:      %s (#%d)\n", displayName(st.Name, st.Username), st.UserID)
	fmt.Printf("State:     %s\n", st.State)
	if st.Peer != 0 {
		fmt.Printf("Peer:      #%d (room %s)\n", st.Peer, st.Room)
	}
	fmt.Printf("Connected: %v\n", st.Connected)
	fmt.Printf("Unread:    %d\n", st.Unread)
	fmt.Printf("Uptime:    %dms\n", st.UptimeMs)
}

func displayName(name, username string) string {
	if name != "" {
		return name
	}
	return username
}

func (cmd command) friends() {
	friends, err := cmd.c.Friends(cmd.ctx, true)
	cmd.check(err)
	if cmd.json {
		outputJSON(friends)
		return
	}
	if len(friends) == 0 {
		fmt.Println("No friends yet.")
		return
	}
	for _, f := range friends {
		badge := ""
		if f.Unread > 0 {
			badge = fmt.Sprintf(" (%d unread)", f.Unread)
		}
		fmt.Printf("%-8d %s%s\n", f.ID, f.DisplayName(), badge)
	}
}

func (cmd command) requests() {
	reqs, err := cmd.c.Requests(cmd.ctx, true)
	cmd.check(err)
	if cmd.json {
		outputJSON(reqs)
		return
	}
	if len(reqs) == 0 {
		fmt.Println("No pending requests.")
		return
	}
	for _, r := range reqs {
		fmt.Printf("request %-6d from %s (#%d)\n", r.ID, r.SenderName, r.SenderID)
	}
}

func (cmd command) search(query string) {
	res, err := cmd.c.Search(cmd.ctx, query)
	cmd.check(err)
	if cmd.json {
		outputJSON(res)
		return
	}
	if !res.Active {
		fmt.Println("Empty query.")
		return
	}
	if len(res.Users) == 0 {
		fmt.Printf("No users match %q.\n", res.Query)
		return
	}
	for _, u := range res.Users {
		mark := ""
		if u.IsFriend {
			mark = " [friend]"
		}
		fmt.Printf("%-8d %s%s\n", u.ID, u.DisplayName(), mark)
	}
}

func (cmd command) add(userID int64) {
	cmd.check(cmd.c.SendRequest(cmd.ctx, userID))
	cmd.done(map[string]any{"sent": true, "user_id": userID}, fmt.Sprintf("Friend request sent to #%d.", userID))
}

func (cmd command) accept(requestID, senderID int64) {
	cmd.check(cmd.c.Accept(cmd.ctx, requestID, senderID))
	cmd.done(map[string]any{"accepted": true, "request_id": requestID}, fmt.Sprintf("Accepted request %d; #%d is now a friend.", requestID, senderID))
}

func (cmd command) decline(requestID int64) {
	cmd.check(cmd.c.Decline(cmd.ctx, requestID))
	cmd.done(map[string]any{"declined": true, "request_id": requestID}, fmt.Sprintf("Declined request %d.", requestID))
}

// approve asks on the terminal unless --yes was given.
func approve(ctx context.Context, yes bool, prompt string) bool {
	if yes {
		return true
	}
	return confirm.Approved(ctx, confirm.Terminal{In: os.Stdin, Out: os.Stderr}, prompt)
}

func (cmd command) remove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	_ = fs.Parse(args)
	need(append([]string{"remove"}, fs.Args()...), 2, "remove [--yes] <friend-id>")
	id := parseID(fs.Arg(0))

	ok := approve(cmd.ctx, *yes, fmt.Sprintf("Remove friend #%d?", id))
	removed, err := cmd.c.RemoveFriend(cmd.ctx, id, ok)
	cmd.check(err)
	if removed {
		cmd.done(map[string]any{"removed": true, "friend_id": id}, fmt.Sprintf("Removed #%d.", id))
	} else {
		cmd.done(map[string]any{"removed": false, "friend_id": id}, "Cancelled.")
	}
}

func (cmd command) open(peerID int64) {
	conv, err := cmd.c.Select(cmd.ctx, peerID)
	cmd.check(err)
	cmd.printConversation(conv)
}

func (cmd command) close() {
	cmd.check(cmd.c.Deselect(cmd.ctx))
	cmd.done(map[string]any{"closed": true}, "Conversation closed.")
}

func (cmd command) messages() {
	conv, err := cmd.c.Messages(cmd.ctx)
	cmd.check(err)
	cmd.printConversation(conv)
}

func (cmd command) printConversation(conv api.Conversation) {
	if cmd.json {
		outputJSON(conv)
		return
	}
	if conv.Peer == 0 {
		fmt.Println("No conversation open.")
		return
	}
	fmt.Printf("Room %s (%s)\n", conv.Room, conv.State)
	for _, m := range conv.Messages {
		fmt.Println(formatMessage(m))
	}
}

func formatMessage(m api.Message) string {
	var b strings.Builder
	if m.Pending {
		b.WriteString("    ...")
	} else {
		fmt.Fprintf(&b, "%7d", m.ID)
	}
	fmt.Fprintf(&b, " %s %s: ", m.Timestamp.Local().Format("15:04"), displayName(m.SenderName, fmt.Sprintf("#%d", m.SenderID)))
	if m.ReplyTo != 0 {
		fmt.Fprintf(&b, "(re %d) ", m.ReplyTo)
	}
	b.WriteString(m.Text)
	if m.Likes > 0 {
		fmt.Fprintf(&b, "  [%d likes]", m.Likes)
	}
	return b.String()
}

func (cmd command) send(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	reply := fs.Int64("reply", 0, "message id to reply to")
	_ = fs.Parse(args)
	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: pawchatctl send [--reply <id>] <text>")
		os.Exit(1)
	}
	m, err := cmd.c.Send(cmd.ctx, text, *reply)
	cmd.check(err)
	cmd.done(m, "Sent.")
}

func (cmd command) like(id int64) {
	cmd.check(cmd.c.Like(cmd.ctx, id))
	cmd.done(map[string]any{"liked": true, "message_id": id}, fmt.Sprintf("Liked %d.", id))
}

func (cmd command) delete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	_ = fs.Parse(args)
	need(append([]string{"delete"}, fs.Args()...), 2, "delete [--yes] <message-id>")
	id := parseID(fs.Arg(0))

	ok := approve(cmd.ctx, *yes, fmt.Sprintf("Delete message %d?", id))
	deleted, err := cmd.c.Delete(cmd.ctx, id, ok)
	cmd.check(err)
	if deleted {
		cmd.done(map[string]any{"deleted": true, "message_id": id}, fmt.Sprintf("Deleted %d.", id))
	} else {
		cmd.done(map[string]any{"deleted": false, "message_id": id}, "Cancelled.")
	}
}

func (cmd command) unread() {
	unread, err := cmd.c.Unread(cmd.ctx)
	cmd.check(err)
	if cmd.json {
		outputJSON(unread)
		return
	}
	if len(unread) == 0 {
		fmt.Println("Nothing unread.")
		return
	}
	peers := make([]int64, 0, len(unread))
	for p := range unread {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	for _, p := range peers {
		fmt.Printf("#%-8d %d\n", p, unread[p])
	}
}
