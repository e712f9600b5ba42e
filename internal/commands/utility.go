package commands

// #region imports
import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/ai"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/command"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
)

// #endregion

// #region utility

func utilityCommands(deps Deps) []*command.Descriptor {
	return []*command.Descriptor{
		pingCommand(deps),
		menuCommand(deps),
		registerCommand(),
		aidiagCommand(deps),
	}
}

// #endregion

// #region ping

func pingCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Name:        "ping",
		Aliases:     []string{"p"},
		Category:    "Utility",
		Description: "Mengukur latensi dan menampilkan status kesehatan sistem.",
		Execute: func(c command.Context) error {
			latency := time.Since(c.Msg.Timestamp)
			var b strings.Builder
			b.WriteString("╭─╶「 *Laporan Diagnostik* 」\n")
			fmt.Fprintf(&b, "│  ⚡️ *Latensi Bot:* %d ms\n", latency.Milliseconds())
			if deps.Vitality != nil {
				fmt.Fprintf(&b, "│  🔋 *Energi:* %.0f/100 (%s)\n", deps.Vitality.Energy(), deps.Vitality.Mood())
			}
			fmt.Fprintf(&b, "│  🧠 %s\n", c.Runtime.Status())
			b.WriteString("╰─╶")
			_, err := c.Runtime.Reply(c.Ctx, c.Msg, b.String())
			return err
		},
	}
}

// #endregion

// #region menu

func menuCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Name:        "menu",
		Aliases:     []string{"help"},
		Category:    "Utility",
		Description: "Menampilkan daftar kategori perintah.",
		Execute: func(c command.Context) error {
			categories := categorize(deps.Registry.All())
			var b strings.Builder
			b.WriteString("📜 *Menu Prometheus*\n\nBalas pesan ini dengan nomor kategori:\n\n")
			for i, cat := range categories {
				fmt.Fprintf(&b, "%d. *%s*\n", i+1, cat)
			}
			sentID, err := c.Runtime.Reply(c.Ctx, c.Msg, b.String())
			if err != nil {
				return err
			}
			_, err = c.Runtime.Sessions().Create(c.Msg.Sender, "menu", "pick_category", sentID, false)
			return err
		},
		OnReply: func(c command.Context) error {
			defer c.Runtime.Sessions().Delete(c.Msg.Sender)

			categories := categorize(deps.Registry.All())
			n, err := strconv.Atoi(strings.TrimSpace(c.Msg.Text))
			if err != nil || n < 1 || n > len(categories) {
				_, rerr := c.Runtime.Reply(c.Ctx, c.Msg, "[VALIDASI] Balas dengan nomor kategori yang tersedia.")
				return rerr
			}

			cat := categories[n-1]
			var b strings.Builder
			fmt.Fprintf(&b, "📂 *%s*\n\n", cat)
			for _, d := range deps.Registry.All() {
				if d.Category != cat {
					continue
				}
				fmt.Fprintf(&b, "• *%s* — %s\n", d.Name, d.Description)
			}
			_, err = c.Runtime.Reply(c.Ctx, c.Msg, b.String())
			return err
		},
	}
}

func categorize(descriptors []*command.Descriptor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range descriptors {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	sort.Strings(out)
	return out
}

// #endregion

// #region register

const (
	stepAskName = "ask_name"
	stepAskAge  = "ask_age"
)

func registerCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:               "register",
		Aliases:            []string{"reg", "daftar"},
		Category:           "Utility",
		Description:        "Mendaftarkan pengguna ke dalam basis data bot.",
		AllowDuringSession: true,
		Execute: func(c command.Context) error {
			sessions := c.Runtime.Sessions()

			// only a menu session may be superseded; anything else stays
			supersede := false
			if active, ok := sessions.Get(c.Msg.Sender); ok {
				if active.Command != "menu" {
					_, err := c.Runtime.Reply(c.Ctx, c.Msg,
						fmt.Sprintf("[SISTEM] Anda sedang dalam sesi aktif lain (`%s`).", active.Command))
					return err
				}
				supersede = true
				if _, err := c.Runtime.Reply(c.Ctx, c.Msg, "[SISTEM] Sesi menu aktif telah dihentikan untuk memulai registrasi."); err != nil {
					return err
				}
			}

			sentID, err := c.Runtime.Reply(c.Ctx, c.Msg,
				"📝 *Protokol Registrasi Dinisialisasi*\n\nSilakan balas pesan ini dengan nama lengkap Anda.")
			if err != nil {
				return err
			}
			_, err = sessions.Create(c.Msg.Sender, "register", stepAskName, sentID, supersede)
			return err
		},
		OnReply: func(c command.Context) error {
			switch c.Session.Step {
			case stepAskName:
				return handleNameReply(c)
			case stepAskAge:
				return handleAgeReply(c)
			default:
				c.Runtime.Sessions().Delete(c.Msg.Sender)
				return fmt.Errorf("unknown registration step %q", c.Session.Step)
			}
		},
	}
}

func handleNameReply(c command.Context) error {
	name := strings.TrimSpace(c.Msg.Text)
	if name == "" || len(name) > 50 {
		// keep the session armed for another attempt at the same step
		c.Runtime.Sessions().Advance(c.Session, stepAskName, c.Session.ReplyTo)
		_, err := c.Runtime.Reply(c.Ctx, c.Msg, "[VALIDASI] Nama tidak valid. Harap masukkan nama yang benar (maksimal 50 karakter).")
		return err
	}
	c.Session.Answers["name"] = name

	sentID, err := c.Runtime.Reply(c.Ctx, c.Msg,
		fmt.Sprintf("👤 Identitas nama diterima: *%s*\n\nSekarang, silakan balas dengan usia Anda (hanya angka).", name))
	if err != nil {
		return err
	}
	c.Runtime.Sessions().Advance(c.Session, stepAskAge, sentID)
	return nil
}

func handleAgeReply(c command.Context) error {
	age, err := strconv.Atoi(strings.TrimSpace(c.Msg.Text))
	if err != nil || age < 13 || age > 100 {
		c.Runtime.Sessions().Advance(c.Session, stepAskAge, c.Session.ReplyTo)
		_, rerr := c.Runtime.Reply(c.Ctx, c.Msg, "[VALIDASI] Usia tidak valid. Harap masukkan usia yang wajar (antara 13 dan 100 tahun).")
		return rerr
	}
	defer c.Runtime.Sessions().Delete(c.Msg.Sender)

	name := c.Session.Answers["name"]
	c.Runtime.State().Register(c.Msg.Sender, store.RegisteredUser{
		Name:         name,
		Age:          age,
		RegisteredAt: time.Now(),
	})
	_, err = c.Runtime.Reply(c.Ctx, c.Msg,
		fmt.Sprintf("✅ *Registrasi Berhasil!*\n\nSelamat datang di jaringan Prometheus, *%s*. Identitas Anda telah diverifikasi dan disimpan.", name))
	return err
}

// #endregion

// #region aidiag

func aidiagCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Name:        "aidiag",
		Aliases:     []string{"aidebug"},
		Category:    "Utility",
		Description: "Menjalankan diagnostik aktif pada semua provider AI.",
		Permission:  &command.Permission{Restriction: []command.Rule{{"premium"}, {"owner"}}},
		Execute: func(c command.Context) error {
			if _, err := c.Runtime.Reply(c.Ctx, c.Msg, "[SISTEM] Memulai diagnostik aktif... Laporan mentah akan dikirimkan."); err != nil {
				return err
			}

			var b strings.Builder
			b.WriteString("*Laporan Diagnostik Kognitif Prometheus*\n\n")
			for _, p := range deps.Chain.Providers() {
				fmt.Fprintf(&b, "*Provider: %s*\n", strings.ToUpper(p.ID()))
				probeCtx, cancel := context.WithTimeout(c.Ctx, 15*time.Second)
				_, err := p.Query(probeCtx, []ai.Turn{{Role: "user", Content: "ping"}})
				cancel()
				if err != nil {
					fmt.Fprintf(&b, "- Status: *GAGAL*\n  - Pesan: ```%v```\n\n", err)
					continue
				}
				b.WriteString("- Status: *BERHASIL* (koneksi dan otentikasi valid)\n\n")
			}
			return c.Runtime.Send(c.Ctx, c.Msg.Sender, b.String())
		},
	}
}

// #endregion
