// Package devcli is a workstation shell around the command dispatcher. It
// stands in for a platform shell during development: callbacks are backed
// by files and a passphrase instead of hardware, and every dispatcher
// command is reachable as `invoke <name> <json>`.
package devcli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okpass/mobilecore/internal/dispatcher"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

type App struct {
	home   string
	disp   *dispatcher.Dispatcher
	reader *bufio.Reader
}

// NewApp registers the dev callbacks and initializes the dispatcher under
// the given home directory.
func NewApp(home, passphrase string) (*App, error) {
	if home == "" {
		base, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		home = filepath.Join(base, ".okpass")
	}
	for _, dir := range []string{home, filepath.Join(home, "cache"), filepath.Join(home, "tmp")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}

	if err := registerDevCallbacks(home, passphrase); err != nil {
		return nil, err
	}

	d := dispatcher.New(nil)
	args, err := json.Marshal(map[string]any{
		"app_home":     home,
		"cache_dir":    filepath.Join(home, "cache"),
		"temp_dir":     filepath.Join(home, "tmp"),
		"activity_log": true,
	})
	if err != nil {
		return nil, err
	}
	if reply := d.Invoke("initialize", string(args)); strings.Contains(reply, `"error"`) {
		return nil, fmt.Errorf("initialize failed: %s", reply)
	}

	return &App{home: home, disp: d, reader: bufio.NewReader(os.Stdin)}, nil
}

// Run starts the read-eval-print loop. It exits on EOF or "exit"/"quit".
func (a *App) Run(ctx context.Context) {
	for {
		fmt.Printf("okp> ")
		raw, err := a.reader.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		cmd := parts[0]
		rest := ""
		if len(parts) > 1 {
			rest = strings.TrimSpace(parts[1])
		}

		switch cmd {
		case "exit", "quit":
			return
		case "help":
			a.help()
		case "invoke":
			a.rawInvoke(rest)
		case "open":
			a.open(rest)
		case "create":
			a.create(rest)
		case "save":
			a.printReply(a.disp.Invoke("save_kdbx",
				fmt.Sprintf(`{"db_key":%q,"overwrite":false}`, rest)))
		case "close":
			a.printReply(a.disp.Invoke("close_kdbx", fmt.Sprintf(`{"db_key":%q}`, rest)))
		case "recent":
			a.printReply(a.disp.Invoke("get_preference", "{}"))
		case "activity":
			a.printReply(a.disp.Invoke("recent_activity", "{}"))
		default:
			printlnFn("Unknown command. Type 'help'.")
		}
	}
}

func (a *App) help() {
	printlnFn("Commands:")
	printlnFn("  open <db_key>              — unlock a database (prompts for password)")
	printlnFn("  create <path>              — create a database (prompts for name/password)")
	printlnFn("  save <db_key>              — save an open database")
	printlnFn("  close <db_key>             — close an open database")
	printlnFn("  recent                     — show the preference document")
	printlnFn("  activity                   — show the activity log")
	printlnFn("  invoke <command> <json>    — run any dispatcher command")
	printlnFn("  exit | quit")
}

// rawInvoke runs `invoke <name> <json>`.
func (a *App) rawInvoke(rest string) {
	parts := strings.SplitN(rest, " ", 2)
	name := parts[0]
	argsJSON := "{}"
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		argsJSON = strings.TrimSpace(parts[1])
	}
	a.printReply(a.disp.Invoke(name, argsJSON))
}

func (a *App) open(dbKey string) {
	password, err := GetPassword(a.reader, "Master password:", os.Stdout)
	if err != nil {
		printlnFn("error:", err)
		return
	}
	args, _ := json.Marshal(map[string]any{"db_key": dbKey, "password": password})
	a.printReply(a.disp.Invoke("open_kdbx", string(args)))
}

func (a *App) create(path string) {
	name, err := GetSimpleText(a.reader, "Database name:", os.Stdout)
	if err != nil {
		printlnFn("error:", err)
		return
	}
	password, err := GetPassword(a.reader, "Master password:", os.Stdout)
	if err != nil {
		printlnFn("error:", err)
		return
	}
	args, _ := json.Marshal(map[string]any{
		"db_key":        "file://" + path,
		"file_name":     filepath.Base(path),
		"database_name": name,
		"password":      password,
	})
	a.printReply(a.disp.Invoke("create_kdbx", string(args)))
}

// printReply pretty-prints a dispatcher reply.
func (a *App) printReply(reply string) {
	var buf map[string]any
	if err := json.Unmarshal([]byte(reply), &buf); err != nil {
		printlnFn(reply)
		return
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		printlnFn(reply)
		return
	}
	printlnFn(string(pretty))
}
