// Package interactive provides the operator console for the homehub
// command.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/homehub-sim/homehub/pkg/hub"
	"github.com/homehub-sim/homehub/pkg/wire"
)

// LineReader reads operator input. *readline.Instance implements it.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// MenuPrompt is shown when waiting for a menu choice.
const MenuPrompt = "Enter your choice: "

type menuItem struct {
	label  string
	action wire.Action
}

// The numbered menu. Items without an action are handled locally.
var menu = []menuItem{
	{label: "List all registered devices"},
	{label: "List connected devices"},
	{label: "Get device readings", action: wire.ActionGetReadings},
	{label: "Set device threshold", action: wire.ActionSetThreshold},
	{label: "Activate device", action: wire.ActionActivate},
	{label: "Deactivate device", action: wire.ActionDeactivate},
	{label: "Switch on device", action: wire.ActionOn},
	{label: "Switch off device", action: wire.ActionOff},
	{label: "Disconnect device from HUB", action: wire.ActionDisconnect},
	{label: "Quit"},
}

const (
	choiceListAll       = 0
	choiceListConnected = 1
	choiceThreshold     = 3
	choiceQuit          = 9
)

// Console drives the hub from operator input.
type Console struct {
	hub *hub.Hub
	in  LineReader
	out io.Writer
}

// New creates a console reading from in and writing to out.
func New(h *hub.Hub, in LineReader, out io.Writer) *Console {
	return &Console{hub: h, in: in, out: out}
}

// NewTerminal opens the terminal for a console. Log output should go to
// the instance's Stdout so it does not garble the prompt.
func NewTerminal() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          MenuPrompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// Run shows the menu until the operator quits, input ends or ctx is done,
// then calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	for {
		if ctx.Err() != nil {
			return
		}

		c.printMenu()
		line, ok := c.read(MenuPrompt)
		if !ok {
			c.println("Quitting...")
			return
		}

		input := strings.ToLower(strings.TrimSpace(line))
		switch input {
		case "":
			continue
		case "forget":
			c.cmdForget()
			continue
		case "status":
			c.cmdStatus()
			continue
		case "help", "?":
			continue
		}

		choice, err := strconv.Atoi(input)
		if err != nil || choice < 0 || choice >= len(menu) {
			c.println(hub.ErrOutOfRange.Error())
			continue
		}

		switch choice {
		case choiceListAll:
			c.println("Devices:")
			c.println(numbered(c.registeredIDs()))
		case choiceListConnected:
			c.println("Connected devices:")
			c.println(numbered(c.hub.Registry().ConnectedIDs()))
		case choiceThreshold:
			c.cmdThreshold(ctx)
		case choiceQuit:
			c.println("Quitting...")
			return
		default:
			c.cmdAction(ctx, menu[choice].action)
		}
	}
}

func (c *Console) printMenu() {
	c.println("\n\nHUB Interface Menu:")
	for i, item := range menu {
		fmt.Fprintf(c.out, "%d: %s\n", i, item.label)
	}
	c.println("(also: forget, status)")
	c.println()
}

// read prompts for one line. It reports false when input has ended.
// An interrupt yields an empty line.
func (c *Console) read(prompt string) (string, bool) {
	c.in.SetPrompt(prompt)
	line, err := c.in.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", true
		}
		return "", false
	}
	return line, true
}

// selectDevice lists connected devices and resolves the operator's pick.
func (c *Console) selectDevice(allowBroadcast bool) (hub.Target, bool) {
	connected := c.hub.Registry().ConnectedIDs()
	if len(connected) == 0 {
		c.println(hub.ErrNoConnectedDevices.Error())
		return hub.Target{}, false
	}

	c.println("\nConnected Devices (please select one):")
	for i, id := range connected {
		fmt.Fprintf(c.out, "%d: %s\n", i, id)
	}
	if allowBroadcast {
		fmt.Fprintf(c.out, "%d: ALL\n", len(connected))
	}

	line, ok := c.read("\nSelected device: ")
	if !ok {
		return hub.Target{}, false
	}
	target, err := hub.SelectTarget(connected, line, allowBroadcast)
	if err != nil {
		c.println(err.Error())
		return hub.Target{}, false
	}
	return target, true
}

func (c *Console) cmdThreshold(ctx context.Context) {
	target, ok := c.selectDevice(false)
	if !ok {
		return
	}

	line, ok := c.read("Specify threshold: ")
	if !ok {
		return
	}
	value, err := strconv.Atoi(strings.ToLower(strings.TrimSpace(line)))
	if err != nil {
		c.println(hub.ErrInvalidInput.Error())
		return
	}

	resp, err := c.hub.Dispatcher().RoundTrip(ctx, target.DeviceID, wire.NewThresholdCommand(value))
	if err != nil {
		c.println(reason(err))
		return
	}
	if s, ok := resp.String(); ok {
		c.println("Result: " + s)
		return
	}
	c.println("Result: " + resp.Format())
}

func (c *Console) cmdAction(ctx context.Context, action wire.Action) {
	target, ok := c.selectDevice(true)
	if !ok {
		return
	}

	results := c.hub.Dispatcher().Send(ctx, target, wire.NewCommand(action))
	for _, r := range results {
		switch {
		case r.Err != nil:
			c.println(reason(r.Err))
		case target.All:
			fmt.Fprintf(c.out, "%s result: %s\n", r.DeviceID, r.Response.Format())
		default:
			c.println("Result: " + r.Response.Format())
		}
	}
}

func (c *Console) cmdForget() {
	ids := c.registeredIDs()
	if len(ids) == 0 {
		c.println("No registered devices")
		return
	}

	c.println("\nRegistered Devices (select one to forget):")
	c.println(numbered(ids))
	line, ok := c.read("\nSelected device: ")
	if !ok {
		return
	}
	target, err := hub.SelectTarget(ids, line, false)
	if err != nil {
		c.println(err.Error())
		return
	}

	if c.hub.Forget(target.DeviceID) {
		fmt.Fprintf(c.out, "Forgot %s\n", target.DeviceID)
	} else {
		fmt.Fprintf(c.out, "%s is not registered\n", target.DeviceID)
	}
}

func (c *Console) cmdStatus() {
	reg := c.hub.Registry()

	c.println("\nHub Status")
	c.println("-------------------------------------------")
	fmt.Fprintf(c.out, "  State:              %s\n", c.hub.State())
	if addr := c.hub.Addr(); addr != nil {
		fmt.Fprintf(c.out, "  Listening on:       %s\n", addr)
	}
	fmt.Fprintf(c.out, "  Registered devices: %d\n", reg.Len())
	fmt.Fprintf(c.out, "  Connected devices:  %d\n", reg.ConnectedCount())

	for _, e := range reg.ListAll() {
		status := "offline"
		if e.Connected() {
			status = "online"
		}
		fmt.Fprintf(c.out, "    %-10s %-13s %-8s", e.ID, e.Type, status)
		if e.LastSeenAddress != "" {
			fmt.Fprintf(c.out, " last seen %s at %s", e.LastSeenAddress, e.LastSeen.Format("15:04:05"))
		}
		c.println()
	}
}

func (c *Console) registeredIDs() []string {
	entries := c.hub.Registry().ListAll()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// numbered renders ids as "i: id" lines, or --None--.
func numbered(ids []string) string {
	if len(ids) == 0 {
		return "--None--"
	}
	lines := make([]string, len(ids))
	for i, id := range ids {
		lines[i] = fmt.Sprintf("%d: %s", i, id)
	}
	return strings.Join(lines, "\n")
}

// reason returns the one-line failure shown to the operator.
func reason(err error) string {
	for _, sentinel := range []error{hub.ErrUnableToConnect, hub.ErrNotUnderstood, hub.ErrNotConnected} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
