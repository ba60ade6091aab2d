package gateway

import (
	"github.com/bwmarrin/discordgo"
)

const (
	cmdChat        = "chat"
	cmdPersonality = "personality"
	cmdCall        = "call"
	cmdLeave       = "leave"
	cmdClear       = "clear"
	cmdModel       = "model"
	cmdDebug       = "debug"
)

// discord 限制每个选项最多 25 个固定选项
const maxChoices = 25

// buildCommands 生成全部斜杠命令定义，人格名称作为固定选项。
func buildCommands(personas []string) []*discordgo.ApplicationCommand {
	personaChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(personas))
	for _, name := range personas {
		if len(personaChoices) == maxChoices {
			break
		}
		personaChoices = append(personaChoices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdChat,
			Description: "Start a new chat thread with Aiko-chan or a selected personality",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "title",
					Description: "Optional: Title for the thread",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "personality",
					Description: "Optional: Choose a personality for this chat",
					Choices:     personaChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "visibility",
					Description: "Optional: Who can see this thread (public or private)",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Public (everyone can see)", Value: "public"},
						{Name: "Private (only invited can see)", Value: "private"},
					},
				},
			},
		},
		{
			Name:        cmdPersonality,
			Description: "Select a personality for this chat",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "personality",
					Description: "Choose a personality",
					Required:    true,
					Choices:     personaChoices,
				},
			},
		},
		{
			Name:        cmdCall,
			Description: "Start a voice call: bot will join your voice channel and speak replies",
		},
		{
			Name:        cmdLeave,
			Description: "Disconnect the bot from the voice channel for this thread",
		},
		{
			Name:        cmdClear,
			Description: "Delete this thread",
		},
		{
			Name:        cmdModel,
			Description: "Switch between DeepSeek models",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "model",
					Description:  "Model to use",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        cmdDebug,
			Description: "Show conversation storage (admin only)",
		},
	}
}

// optionString 返回指定名称的字符串选项，不存在时返回空串。
func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

// focusedString 返回自动补全时用户正在输入的内容。
func focusedString(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, o := range opts {
		if o.Focused && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

func autocompleteChoices(values []string) []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(values))
	for _, v := range values {
		if len(choices) == maxChoices {
			break
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v})
	}
	return choices
}
