package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Composer commands. Anything not starting with "/" is sent as text.
const (
	cmdSend   = "send"
	cmdReply  = "reply"
	cmdCancel = "cancel"
	cmdLike   = "like"
	cmdDelete = "delete"
	cmdClose  = "close"
)

var errUnknownCommand = errors.New("unknown command")

// Command is a parsed composer line.
type Command struct {
	Name string
	Args string
}

// ParseCommand interprets a composer line. A leading "//" escapes a literal
// slash.
func ParseCommand(input string) (Command, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Name: cmdSend, Args: trimmed}, nil
	}
	if strings.HasPrefix(trimmed, "//") {
		return Command{Name: cmdSend, Args: trimmed[1:]}, nil
	}
	parts := strings.SplitN(trimmed[1:], " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	switch cmd.Name {
	case cmdReply, cmdCancel, cmdLike, cmdDelete, cmdClose:
		return cmd, nil
	}
	return Command{}, fmt.Errorf("%w: /%s", errUnknownCommand, cmd.Name)
}

// MessageID parses the command's argument as a message id.
func (c Command) MessageID() (int64, error) {
	id, err := strconv.ParseInt(c.Args, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("/%s needs a message id", c.Name)
	}
	return id, nil
}
