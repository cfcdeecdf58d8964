package bot

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrCommandExists  = errors.New("bot: command already exists")
	ErrCommandNil     = errors.New("bot: command handler is nil")
	ErrInvalidCommand = errors.New("bot: invalid command")
)

// Handler runs one invocation of a command.
type Handler func(req *Request)

// Command is one entry of the prefix command table.
type Command struct {
	Name string
	// Usage lists arguments, e.g. "<channel> [reason]".
	Usage        string
	Help         string
	OperatorOnly bool
	Run          Handler
}

// Registry stores commands by name.
type Registry struct {
	items map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Command)}
}

// ValidateCommand checks the name format and required fields.
func ValidateCommand(cmd Command) error {
	if cmd.Run == nil {
		return ErrCommandNil
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" || strings.TrimSpace(cmd.Help) == "" {
		return fmt.Errorf("%w: name and help are required", ErrInvalidCommand)
	}
	if !isValidName(name) {
		return fmt.Errorf("%w: invalid name format %q", ErrInvalidCommand, name)
	}
	return nil
}

func (r *Registry) Register(cmd Command) error {
	if err := ValidateCommand(cmd); err != nil {
		return err
	}
	if _, ok := r.items[cmd.Name]; ok {
		return fmt.Errorf("%w: %s", ErrCommandExists, cmd.Name)
	}
	r.items[cmd.Name] = cmd
	return nil
}

// Resolve looks a command up case-insensitively.
func (r *Registry) Resolve(name string) (Command, bool) {
	cmd, ok := r.items[strings.ToLower(name)]
	return cmd, ok
}

// List returns commands ordered by name.
func (r *Registry) List() []Command {
	list := make([]Command, 0, len(r.items))
	for _, cmd := range r.items {
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func isValidName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !(isLower || isDigit || (c == '-' && i > 0 && i < len(name)-1)) {
			return false
		}
	}
	return name != ""
}
