package commands

// #region imports
import (
	"fmt"
	"strings"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/command"
)

// #endregion

// #region moderation

var groupAdminOnly = &command.Permission{
	Restriction: []command.Rule{{"group", "admin"}, {"owner"}},
	Prompt:      "Perintah ini hanya dapat dieksekusi oleh administrator grup.",
	AI:          true,
}

func moderationCommands(Deps) []*command.Descriptor {
	return []*command.Descriptor{
		antilinkCommand(),
		muteCommand(),
		aichatCommand(),
		rvomCommand(),
	}
}

// toggleArg parses an on/off argument; ok is false for anything else.
func toggleArg(args []string) (on, ok bool) {
	if len(args) == 0 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, true
	case "off":
		return false, true
	default:
		return false, false
	}
}

// #endregion

// #region antilink

func antilinkCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "antilink",
		Category:    "Moderation",
		Description: "Mengaktifkan penghapusan tautan otomatis di grup ini.",
		Permission:  groupAdminOnly,
		Execute: func(c command.Context) error {
			on, ok := toggleArg(c.Args)
			if !ok {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "Gunakan: antilink on atau antilink off")
				return err
			}
			c.Runtime.State().SetAntilink(c.Msg.Chat, on)
			status := "dinonaktifkan"
			if on {
				status = "diaktifkan"
			}
			_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("[SISTEM] Antilink telah %s di grup ini.", status))
			return err
		},
	}
}

// #endregion

// #region mute

func muteCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "mute",
		Category:    "Moderation",
		Description: "Mendiamkan bot di grup ini (on/off).",
		Permission:  groupAdminOnly,
		Execute: func(c command.Context) error {
			on, ok := toggleArg(c.Args)
			if !ok {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "Gunakan: mute on atau mute off")
				return err
			}
			c.Runtime.State().SetMuted(c.Msg.Chat, on)
			text := "[SISTEM] Bot telah di-unmute di grup ini."
			if on {
				text = "[SISTEM] Bot telah dimute di grup ini."
			}
			_, err := c.Runtime.Reply(c.Ctx, c.Msg, text)
			return err
		},
	}
}

// #endregion

// #region aichat

func aichatCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "aichat",
		Category:    "Moderation",
		Description: "Mengelola status AI chat di chat ini.",
		Execute: func(c command.Context) error {
			if len(c.Args) == 0 {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "Gunakan: aichat --ban atau aichat --unban")
				return err
			}
			switch strings.ToLower(c.Args[0]) {
			case "--ban":
				c.Runtime.State().SetAIChatBanned(c.Msg.Chat, true)
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "[AI] Fitur AI Chat telah dinonaktifkan di sini.")
				return err
			case "--unban":
				c.Runtime.State().SetAIChatBanned(c.Msg.Chat, false)
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "[AI] Fitur AI Chat telah diaktifkan kembali di sini.")
				return err
			default:
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "Gunakan: aichat --ban atau aichat --unban")
				return err
			}
		},
	}
}

// #endregion

// #region rvom

func rvomCommand() *command.Descriptor {
	return &command.Descriptor{
		Name:        "rvom",
		Aliases:     []string{"rvo"},
		Category:    "Moderation",
		Description: "Mengaktifkan arsip otomatis pesan sekali lihat di chat ini.",
		Permission:  groupAdminOnly,
		Execute: func(c command.Context) error {
			on, ok := toggleArg(c.Args)
			if !ok {
				_, err := c.Runtime.Reply(c.Ctx, c.Msg, "Gunakan: rvom on atau rvom off")
				return err
			}
			c.Runtime.State().SetViewOnce(c.Msg.Chat, on)
			status := "dinonaktifkan"
			if on {
				status = "diaktifkan"
			}
			_, err := c.Runtime.Reply(c.Ctx, c.Msg, fmt.Sprintf("[SISTEM] Arsip pesan sekali lihat telah %s.", status))
			return err
		},
	}
}

// #endregion
