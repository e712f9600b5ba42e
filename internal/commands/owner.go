package commands

// #region imports
import (
	"fmt"
	"strings"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/command"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
)

// #endregion

// #region owner

var ownerOnly = &command.Permission{
	Restriction: []command.Rule{{"owner"}},
	Prompt:      "Perintah ini khusus untuk owner.",
}

func ownerCommands(Deps) []*command.Descriptor {
	return []*command.Descriptor{
		banCommand(),
		unbanCommand(),
		modeCommand(),
		restartCommand(),
		shutdownCommand(),
	}
}

// #endregion

// #region ban

// banTarget resolves the target user from a quoted message or mention.
func banTarget(msg *message.Message) string {
	if msg.IsQuoted && msg.QuotedSender != "" {
		return msg.QuotedSender
	}
	if len(msg.MentionedJIDs) > 0 {
		return msg.MentionedJIDs[0]
	}
	return ""
}

func banCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "ban",
		Category:    "Owner",
		Description: "Memblokir pengguna dari menggunakan bot.",
		Permission:  ownerOnly,
		Execute: func(c command.Context) error {
			target := banTarget(c.Msg)
			if target == "" {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "Anda harus menandai (@tag) atau membalas pesan pengguna yang ingin diblokir.")
				return err
			}

			bare, _, _ := strings.Cut(target, "@")
			for _, owner := range c.Runtime.Config().OwnerNumbers {
				if owner == bare {
					_, err := c.Runtime.Reply(c.Ctx, c.Msg, "[KEAMANAN] Entitas Owner tidak dapat diblokir.")
					return err
				}
			}

			if c.Runtime.State().IsBanned(target) {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("[SISTEM] Pengguna @%s sudah berada dalam daftar blokir.", bare))
				return err
			}
			c.Runtime.State().SetBanned(target, true)
			_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("✅ *Pengguna Diblokir*\n\nEntitas @%s telah berhasil diblokir.", bare))
			return err
		},
	}
}

func unbanCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "unban",
		Category:    "Owner",
		Description: "Membuka blokir pengguna.",
		Permission:  ownerOnly,
		Execute: func(c command.Context) error {
			target := banTarget(c.Msg)
			if target == "" {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "Tandai (@tag) atau balas pesan pengguna yang ingin dibuka blokirnya.")
				return err
			}
			bare, _, _ := strings.Cut(target, "@")
			if !c.Runtime.State().IsBanned(target) {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("[SISTEM] Pengguna @%s tidak berada dalam daftar blokir.", bare))
				return err
			}
			c.Runtime.State().SetBanned(target, false)
			_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("✅ Blokir untuk @%s telah dicabut.", bare))
			return err
		},
	}
}

// #endregion

// #region mode

func modeCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "mode",
		Category:    "Owner",
		Description: "Mengubah mode operasional bot (public/self).",
		Permission:  ownerOnly,
		Execute: func(c command.Context) error {
			current := c.Runtime.State().BotMode()
			if len(c.Args) == 0 {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg,
					fmt.Sprintf("Mode tidak valid. Gunakan: mode self atau mode public\n\nMode saat ini: *%s*", current))
				return err
			}
			mode := strings.ToLower(c.Args[0])
			if mode != "self" && mode != "public" {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg,
					fmt.Sprintf("Mode tidak valid. Gunakan: mode self atau mode public\n\nMode saat ini: *%s*", current))
				return err
			}
			if mode == current {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("[SISTEM] Bot sudah berada dalam mode *%s*.", mode))
				return err
			}
			c.Runtime.State().SetBotMode(mode)
			_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("✅ Mode operasional diubah ke *%s*.", mode))
			return err
		},
	}
}

// #endregion

// #region lifecycle

func restartCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "restart",
		Category:    "Owner",
		Description: "Memulai ulang koneksi tanpa mematikan proses.",
		Permission:  ownerOnly,
		Execute: func(c command.Context) error {
			if _, err := c.Runtime.Reply(c.Ctx, c.Msg, "[SISTEM] Memulai prosedur soft restart..."); err != nil {
				return err
			}
			c.Runtime.RequestRestart()
			return nil
		},
	}
}

func shutdownCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "shutdown",
		Category:    "Owner",
		Description: "Mematikan bot secara aman.",
		Permission:  ownerOnly,
		Execute: func(c command.Context) error {
			if _, err := c.Runtime.Reply(c.Ctx, c.Msg, "[SISTEM] Memulai prosedur shutdown..."); err != nil {
				return err
			}
			c.Runtime.RequestShutdown(false)
			return nil
		},
	}
}

// #endregion
