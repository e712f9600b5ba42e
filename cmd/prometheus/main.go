package main

// #region imports
import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/ai"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/audit"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/autonomy"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/command"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/commands"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/config"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/dispatch"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/health"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/session"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/supervisor"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/transport"
)

// #endregion

// #region main

func main() {
	log := newLogger()

	cfg, warnings := config.Load(envOr("SESSION_DIR", "session"))
	for _, w := range warnings {
		log.Warn().Str("component", "config").Msg(w)
	}
	if len(cfg.OwnerNumbers) == 0 {
		log.Warn().Msg("OWNER_NUMBERS is empty, owner commands are unreachable")
	}

	st, err := store.Open(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open data stores")
	}
	st.StartFlusher(cfg.FlushInterval)

	auditLog, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open audit log")
	}
	defer auditLog.Close()

	model := health.NewModel(health.ModelConfig{})
	ctrl := health.NewController(health.ControllerConfig{
		Kp:          cfg.PID.Kp,
		Ki:          cfg.PID.Ki,
		Kd:          cfg.PID.Kd,
		MaxIntegral: cfg.MaxIntegral,
	})
	beliefs := health.NewBeliefUpdater(health.DefaultNetworkLikelihood(), health.DefaultPlatformLikelihood())

	vitality := ai.NewVitality()
	vitality.StartMetabolism(10 * time.Second)
	defer vitality.StopMetabolism()

	chain := ai.NewChain(buildProviders(cfg, log)...)
	manager := ai.NewManager(chain, vitality, st, cfg.BotName, log)

	ctx := context.Background()
	tr, err := transport.NewWhatsmeow(ctx, cfg.SessionDir, cfg.PreferredLogin, os.Getenv("PAIR_PHONE"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("init transport")
	}

	sessions := session.NewRegistry(cfg.SessionTimeout, func(s *session.Session) {
		notice := fmt.Sprintf("[SISTEM] Sesi `%s` Anda telah berakhir karena waktu habis.", s.Command)
		if _, err := tr.SendText(context.Background(), s.Owner, notice); err != nil {
			log.Warn().Err(err).Str("user", s.Owner).Msg("session expiry notice failed")
		}
	})

	engine := autonomy.New(st,
		func(ctx context.Context, jid, text string) error {
			_, err := tr.SendText(ctx, jid, text)
			return err
		},
		model.Compute,
		tr.SelfJID, // resolved per cycle; empty until first login completes
		log,
	)

	registry := command.NewRegistry()
	deps := commands.Deps{Registry: registry, Chain: chain, Vitality: vitality}
	reload := func() {
		n := registry.Load(commands.All(deps))
		log.Info().Int("commands", n).Msg("command registry loaded")
	}
	reload()

	rt := &app{
		tr:       tr,
		sessions: sessions,
		state:    st,
		cfg:      cfg,
		model:    model,
	}

	pipeline := dispatch.New(dispatch.Options{
		Runtime:   rt,
		Registry:  registry,
		Cooldowns: command.NewCooldowns(),
		Health:    model,
		AI:        manager,
		Observe:   engine.Observe,
		DeleteMsg: tr.Delete,
		Archive:   viewOnceArchiver(tr, cfg),
		SelfJID:   tr.SelfJID,
		Log:       log,
	})

	tr.OnMessage(func(raw message.Raw) {
		go func() {
			flags := message.Flags{
				Owner:  isOwner(cfg, raw.Sender),
				Banned: st.IsBanned(raw.Sender),
			}
			flags.Premium = st.IsPremium(raw.Sender)
			_, flags.Registered = st.Registered(raw.Sender)

			msg, err := message.Serialize(raw, flags, cfg.Prefixes, cfg.MaxTextLength)
			if err != nil {
				log.Debug().Err(err).Str("chat", raw.Chat).Msg("event rejected")
				return
			}
			hctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			pipeline.Handle(hctx, msg)
		}()
	})

	sup := supervisor.New(supervisor.Options{
		Config:         cfg,
		Transport:      tr,
		Model:          model,
		Controller:     ctrl,
		Beliefs:        beliefs,
		Autonomy:       engine,
		Store:          st,
		Audit:          auditLog,
		SetLogLevel:    setLogLevel,
		ReloadCommands: reload,
		Exit:           os.Exit,
		Log:            log,
	})
	rt.sup = sup

	if err := sup.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start supervisor")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("signal received, shutting down")
		sup.Shutdown(false)
	}()

	fmt.Printf("%s online. Operator console ready (type 'help').\n", cfg.BotName)
	console(sup, sessions, beliefs, model, auditLog)

	// console hit EOF; stay alive until a signal or the supervisor exits
	select {}
}

// #endregion

// #region console

func console(sup *supervisor.Supervisor, sessions *session.Registry, beliefs *health.BeliefUpdater, model *health.Model, auditLog *audit.Log) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "help":
			fmt.Println("commands: status | beliefs | sessions | audit | loglevel <level> | restart | shutdown")
		case "status":
			fmt.Println(sup.Status())
		case "beliefs":
			b := beliefs.Current()
			v := model.Compute()
			fmt.Printf("network=%.3f platform=%.3f vector(C=%.2f P=%.2f I=%.2f)\n",
				b.NetworkIssue, b.PlatformIssue, v.C, v.P, v.I)
		case "sessions":
			snap := sessions.Snapshot()
			if len(snap) == 0 {
				fmt.Println("no active sessions")
			}
			for _, s := range snap {
				fmt.Printf("%s: %s/%s expires %s\n", s.Owner, s.Command, s.Step, s.ExpiresAt.Format(time.Kitchen))
			}
		case "audit":
			entries, err := auditLog.Recent(10)
			if err != nil {
				fmt.Printf("audit read error: %v\n", err)
				continue
			}
			for _, e := range entries {
				fmt.Printf("%s %s\n", e.CreatedAt.Format(time.RFC3339), e.Event)
			}
		case "loglevel":
			if len(fields) < 2 {
				fmt.Println("usage: loglevel <trace|debug|info|warn|error>")
				continue
			}
			setLogLevel(fields[1])
			fmt.Printf("log level set to %s\n", fields[1])
		case "restart":
			go sup.SoftRestart()
		case "shutdown", "quit", "exit":
			sup.Shutdown(false)
			return
		default:
			fmt.Printf("unknown console command %q\n", fields[0])
		}
	}
}

// #endregion

// #region helpers

func newLogger() zerolog.Logger {
	setLogLevel(envOr("LOG_LEVEL", "info"))
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func buildProviders(cfg config.Config, log zerolog.Logger) []ai.Provider {
	var out []ai.Provider
	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		switch p.ID {
		case "ollama":
			out = append(out, ai.NewOllamaProvider(p.ID, p.Model, p.BaseURL))
		default:
			if len(p.APIKeys) == 0 {
				log.Warn().Str("provider", p.ID).Msg("provider enabled but no API keys, skipping")
				continue
			}
			out = append(out, ai.NewOpenAIProvider(p.ID, p.Model, p.BaseURL, p.APIKeys))
		}
	}
	return out
}

func isOwner(cfg config.Config, jid string) bool {
	bare := transport.BareJID(jid)
	for _, owner := range cfg.OwnerNumbers {
		if owner == bare {
			return true
		}
	}
	return false
}

// viewOnceArchiver forwards a view-once capture notice to the primary owner.
func viewOnceArchiver(tr transport.Transport, cfg config.Config) func(ctx context.Context, m *message.Message) error {
	return func(ctx context.Context, m *message.Message) error {
		if len(cfg.OwnerNumbers) == 0 {
			return nil
		}
		ownerJID := cfg.OwnerNumbers[0] + "@s.whatsapp.net"
		report := fmt.Sprintf("👁️ *Arsip Sekali-Lihat*\n\nPengirim: @%s\nChat: %s\nTipe: %s\nCaption: %s",
			transport.BareJID(m.Sender), m.Chat, m.MediaType, m.Text)
		_, err := tr.SendText(ctx, ownerJID, report)
		return err
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion
