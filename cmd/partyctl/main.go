package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"partymaker/internal/async"
	"partymaker/internal/cache"
	"partymaker/internal/client"
	"partymaker/internal/config"
	"partymaker/internal/connectivity"
	"partymaker/internal/logging"
	"partymaker/internal/models"
	"partymaker/internal/repository"
	"partymaker/internal/transport"
	"partymaker/internal/utils"
)

const usage = `usage: partyctl [-user email] [-refresh] <command> [args]

commands:
  groups                     list the signed-in user's groups
  public                     list public groups you can join
  group <id>                 show one group
  create <name>              create a group you administer
  join <id>                  join a group
  leave <id>                 leave a group
  coming <id> <true|false>   set attendance
  invite <id> <email>...     invite users
  send <id> <text>           post a chat message
  messages <id>              show the chat history
  users                      list known users
  ping                       check connectivity now
  set-server <url>           persist the proxy base URL
`

// session is the CLI's stand-in for app sign-in.
type session struct{ key string }

func (s *session) CurrentUserKey() string { return s.key }

func (s *session) SignOut(context.Context) error {
	s.key = ""
	return nil
}

func main() {
	user := flag.String("user", os.Getenv("PARTYMAKER_USER"), "email of the acting user")
	refresh := flag.Bool("refresh", false, "bypass the local cache")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logging.Setup()
	if err := run(context.Background(), *user, *refresh, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, user string, refresh bool, args []string) error {
	cfg := config.Load()

	local, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer local.Close()

	settings := config.NewSettings(cfg.ServerURL, local)
	if err := settings.Load(ctx); err != nil {
		slog.Warn("could not load preferences", "err", err)
	}
	settings.OnReload(func(s config.Snapshot) {
		slog.Info("server url changed", "url", s.ServerURL)
	})

	tc := transport.New(settings, transport.Options{DefaultTimeout: cfg.RequestTimeout})
	monitor := connectivity.NewMonitor(connectivity.OptionsFromConfig(cfg, tc))
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	repo := repository.New(tc, repository.OptionsFromConfig(cfg))
	c := client.New(repo, client.Options{
		Dispatcher: async.Inline{},
		Gate:       monitor,
		Cache:      local,
		Session:    &session{key: utils.NormalizeUserKey(user)},
	})

	cmd, rest := args[0], args[1:]
	need := func(n int) error {
		if len(rest) < n {
			return fmt.Errorf("%s: expected %d argument(s)\n%s", cmd, n, usage)
		}
		return nil
	}

	switch cmd {
	case "groups":
		return await(c.UserGroups(ctx, refresh, printer[[]models.Group]()))
	case "public":
		return await(c.PublicGroups(ctx, refresh, printer[[]models.Group]()))
	case "group":
		if err := need(1); err != nil {
			return err
		}
		return await(c.Group(ctx, rest[0], refresh, printer[models.Group]()))
	case "create":
		if err := need(1); err != nil {
			return err
		}
		return await(c.CreateGroup(ctx, models.Group{Name: strings.Join(rest, " ")}, printer[models.Group]()))
	case "join":
		if err := need(1); err != nil {
			return err
		}
		return await(c.JoinGroup(ctx, rest[0], printer[models.Group]()))
	case "leave":
		if err := need(1); err != nil {
			return err
		}
		return await(c.LeaveGroup(ctx, rest[0], printer[repository.LeaveResult]()))
	case "coming":
		if err := need(2); err != nil {
			return err
		}
		v, err := strconv.ParseBool(rest[1])
		if err != nil {
			return fmt.Errorf("coming: %w", err)
		}
		return await(c.SetComing(ctx, rest[0], v, printer[models.Group]()))
	case "invite":
		if err := need(2); err != nil {
			return err
		}
		keys := make([]string, 0, len(rest)-1)
		for _, email := range rest[1:] {
			keys = append(keys, utils.NormalizeUserKey(email))
		}
		return await(c.InviteFriends(ctx, rest[0], keys, printer[models.Group]()))
	case "send":
		if err := need(2); err != nil {
			return err
		}
		return await(c.SendMessage(ctx, rest[0], strings.Join(rest[1:], " "), printer[models.ChatMessage]()))
	case "messages":
		if err := need(1); err != nil {
			return err
		}
		return await(c.Messages(ctx, rest[0], printer[[]models.ChatMessage]()))
	case "users":
		return await(c.Users(ctx, refresh, printer[map[string]models.User]()))
	case "ping":
		online := monitor.Refresh(ctx)
		if kind, failed := monitor.LastError(); failed {
			fmt.Printf("offline (%s)\n", kind)
			return nil
		}
		fmt.Println("online:", online)
		if err := tc.Probe(ctx, settings.ServerURL()+"/healthz", cfg.ProbeTimeout); err != nil {
			fmt.Println("proxy unreachable:", err)
		} else {
			fmt.Println("proxy ok:", settings.ServerURL())
		}
		return nil
	case "set-server":
		if err := need(1); err != nil {
			return err
		}
		return settings.SetServerURL(ctx, rest[0])
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// outcome carries the error text out of an OnError callback.
type outcome struct{ err string }

var last outcome

func printer[T any]() async.Callbacks[T] {
	return async.Callbacks[T]{
		OnSuccess: func(v T) {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				fmt.Printf("%+v\n", v)
				return
			}
			fmt.Println(string(b))
		},
		OnError: func(msg string) { last.err = msg },
	}
}

func await(h *async.Handle) error {
	h.Wait()
	if last.err != "" {
		return errors.New(last.err)
	}
	return nil
}
