// Command northstar hosts the experiment-coordination daemon and a small
// operator CLI for working with gates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/odvcencio/northstar/pkg/api"
	"github.com/odvcencio/northstar/pkg/bus"
	"github.com/odvcencio/northstar/pkg/config"
	"github.com/odvcencio/northstar/pkg/conflict"
	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/gate"
	"github.com/odvcencio/northstar/pkg/logging"
	"github.com/odvcencio/northstar/pkg/notify"
	"github.com/odvcencio/northstar/pkg/orchestrator"
	"github.com/odvcencio/northstar/pkg/signal"
	"github.com/odvcencio/northstar/pkg/stats"
	"github.com/odvcencio/northstar/pkg/storage"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "gates":
		err = cmdGates(os.Args[2:])
	case "respond":
		err = cmdRespond(os.Args[2:])
	case "sweep":
		err = cmdSweep(os.Args[2:])
	case "ping":
		err = cmdPing(os.Args[2:])
	case "version":
		fmt.Printf("northstar %s (commit %s, built %s)\n", version, commit, buildDate)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: northstar <command> [flags]

Commands:
  serve     run the coordination daemon (HTTP API, monitor, SLA sweep)
  gates     list pending gates for an assignee
  respond   record a gate decision
  sweep     run one gate SLA pass
  ping      check a running daemon over the NATS bus
  version   print version information

Flags common to all commands:
  -config   path to a config file (default: layered ~/.northstar + ./.northstar)`)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// runtime bundles the wired collaborators a command needs.
type runtime struct {
	cfg      *config.Config
	store    *storage.Store
	logger   *logging.Logger
	bus      bus.MessageBus
	notifier *notify.Manager
	svc      *orchestrator.Service
}

func (rt *runtime) close() {
	if rt.notifier != nil {
		rt.notifier.Close()
	}
	if rt.bus != nil {
		rt.bus.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.logger != nil {
		rt.logger.Close()
	}
}

func buildRuntime(cfg *config.Config, withLogger bool) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	if withLogger {
		logger, err := logging.NewLogger(cfg.Logging.Dir, "coordinator")
		if err != nil {
			return nil, err
		}
		if cfg.Logging.Level != "" {
			logger.SetMinLevel(logging.Level(cfg.Logging.Level))
		}
		rt.logger = logger
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.store = store

	if cfg.Bus.Enabled {
		busCfg := bus.DefaultConfig()
		busCfg.URL = cfg.Bus.URL
		b, err := bus.NewNATSBus(busCfg)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		rt.bus = b
	} else {
		rt.bus = bus.NewMemoryBus()
	}

	var adapters []notify.Adapter
	if cfg.Notify.Slack.Enabled {
		slack, err := notify.NewSlackAdapter(notify.SlackConfig{
			WebhookURL: cfg.Notify.Slack.WebhookURL,
			Channel:    cfg.Notify.Slack.Channel,
		})
		if err != nil {
			rt.close()
			return nil, err
		}
		adapters = append(adapters, slack)
	}
	if cfg.Notify.Telegram.Enabled {
		telegram, err := notify.NewTelegramAdapter(notify.TelegramConfig{
			BotToken: cfg.Notify.Telegram.BotToken,
			ChatID:   cfg.Notify.Telegram.ChatID,
		})
		if err != nil {
			rt.close()
			return nil, err
		}
		adapters = append(adapters, telegram)
	}
	if cfg.Notify.Enabled || len(adapters) > 0 {
		adapters = append(adapters, notify.NewBusAdapter(rt.bus, ""))
		rt.notifier = notify.NewManager(rt.logger, adapters...)
	}

	var source signal.Source
	if cfg.Signals.BaseURL != "" {
		source = signal.NewHTTPSource(cfg.Signals.BaseURL, cfg.Signals.Timeout)
	}

	var notifier gate.Notifier
	if rt.notifier != nil {
		notifier = rt.notifier
	}

	svc, err := orchestrator.NewService(orchestrator.Options{
		Store:         store,
		Gates:         gate.NewEngine(store, orchestrator.InstrumentGateNotifier(notifier), rt.logger),
		Detector:      conflict.NewDetector(store, rt.logger),
		Checker:       stats.NewChecker(source, rt.logger),
		Notifier:      rt.notifier,
		Bus:           rt.bus,
		Logger:        rt.logger,
		MaxConcurrent: cfg.Portfolio.DefaultMaxConcurrent,
		PollInterval:  cfg.Monitor.PollInterval,
		SweepInterval: cfg.Gates.SweepInterval,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.svc = svc

	return rt, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	bind := fs.String("bind", "", "HTTP bind address (overrides config)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *bind != "" {
		cfg.HTTP.Bind = *bind
	}

	rt, err := buildRuntime(cfg, true)
	if err != nil {
		return err
	}
	defer rt.close()

	server := api.NewServer(cfg.HTTP.Bind, rt.svc, rt.store, rt.logger)

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := registerPingResponder(ctx, rt.bus, time.Now().UTC()); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()
	go func() { errCh <- rt.svc.Run(ctx) }()

	fmt.Printf("northstar serving on %s\n", cfg.HTTP.Bind)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func cmdGates(args []string) error {
	fs := flag.NewFlagSet("gates", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	assignee := fs.String("assignee", "", "list gates pending for this assignee")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	fs.Parse(args)

	if *assignee == "" {
		return fmt.Errorf("-assignee is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	gates, err := store.FindPendingByAssignee(context.Background(), *assignee)
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(gates)
	}

	if len(gates) == 0 {
		fmt.Printf("no pending gates for %s\n", *assignee)
		return nil
	}
	for _, g := range gates {
		deadline := g.Deadline().Format(time.RFC3339)
		fmt.Printf("%s  %-10s  exp=%s  due=%s\n  %s\n", g.ID, g.Type, g.ExperimentID, deadline, g.Question)
	}
	return nil
}

func cmdRespond(args []string) error {
	fs := flag.NewFlagSet("respond", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	gateID := fs.String("gate", "", "gate id")
	by := fs.String("by", "", "responder")
	status := fs.String("status", "", "approved | rejected | approved_with_conditions")
	decision := fs.String("decision", "", "analysis decision: ship | scale | iterate | kill")
	comment := fs.String("comment", "", "optional comment")
	conditions := fs.String("conditions", "", "comma-separated conditions for conditional approval")
	fs.Parse(args)

	if *gateID == "" || *by == "" || *status == "" {
		return fmt.Errorf("-gate, -by, and -status are required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.close()

	resp := gate.Response{
		By:       *by,
		Status:   gate.Status(*status),
		Decision: experiment.Decision(*decision),
		Comment:  *comment,
	}
	if *conditions != "" {
		for _, c := range strings.Split(*conditions, ",") {
			if c = strings.TrimSpace(c); c != "" {
				resp.Conditions = append(resp.Conditions, c)
			}
		}
	}

	g, err := rt.svc.RespondGate(context.Background(), *gateID, resp)
	if err != nil {
		return err
	}
	fmt.Printf("gate %s is now %s\n", g.ID, g.Status)
	return nil
}

func cmdSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.svc.SweepSLA(context.Background())
	fmt.Println("SLA sweep complete")
	return nil
}

// registerPingResponder answers liveness requests on the bus so operators
// can reach a daemon that shares only the NATS transport.
func registerPingResponder(ctx context.Context, b bus.MessageBus, started time.Time) error {
	_, err := b.Subscribe(ctx, bus.SubjectPing, func(*bus.Message) []byte {
		data, err := json.Marshal(bus.PingReply{
			Name:    "northstar",
			Version: version,
			Started: started,
			At:      time.Now().UTC(),
		})
		if err != nil {
			return nil
		}
		return data
	})
	return err
}

func cmdPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	timeout := fs.Duration("timeout", 5*time.Second, "reply timeout")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if !cfg.Bus.Enabled {
		return fmt.Errorf("ping needs the NATS bus; set bus.enabled or NORTHSTAR_NATS_URL")
	}
	busCfg := bus.DefaultConfig()
	busCfg.URL = cfg.Bus.URL
	b, err := bus.NewNATSBus(busCfg)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer b.Close()

	data, err := b.Request(context.Background(), bus.SubjectPing, nil, *timeout)
	if err != nil {
		return err
	}
	var reply bus.PingReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return err
	}
	fmt.Printf("%s %s up since %s\n", reply.Name, reply.Version, reply.Started.Format(time.RFC3339))
	return nil
}
