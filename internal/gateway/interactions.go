package gateway

import (
	"context"
	"fmt"

	"aiko-go/internal/service"
	"aiko-go/pkg/log"

	"github.com/bwmarrin/discordgo"
)

func (g *Gateway) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommandAutocomplete:
		g.handleAutocomplete(s, i.Interaction)
	case discordgo.InteractionApplicationCommand:
		g.handleCommand(s, i.Interaction)
	}
}

func (g *Gateway) handleAutocomplete(s *discordgo.Session, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	if data.Name != cmdModel {
		return
	}
	err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: autocompleteChoices(g.commands.ModelChoices(focusedString(data.Options))),
		},
	})
	if err != nil {
		log.Warnf("自动补全响应失败: %v", err)
	}
}

func (g *Gateway) handleCommand(s *discordgo.Session, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	inv := interactionEvent(i, g.isThread(i.ChannelID))
	log.Infow("收到斜杠命令", "command", data.Name, "user", inv.AuthorID, "key", service.ResolveKey(inv))

	switch data.Name {
	case cmdChat:
		req := service.ChatRequest{
			Title:      optionString(data.Options, "title"),
			Persona:    optionString(data.Options, "personality"),
			Visibility: optionString(data.Options, "visibility"),
		}
		g.deferred(s, i, func(ctx context.Context) service.CommandReply {
			return g.commands.OpenChat(ctx, g, inv, req)
		})
	case cmdCall:
		g.deferred(s, i, func(ctx context.Context) service.CommandReply {
			return g.commands.StartCall(ctx, g, inv)
		})
	case cmdPersonality:
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		g.respond(s, i, g.commands.SelectPersona(ctx, g, inv, optionString(data.Options, "personality")))
	case cmdLeave:
		g.respond(s, i, g.commands.StopCall(context.Background(), inv))
	case cmdClear:
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		reply, ok := g.commands.Clear(ctx, inv, g.channelName(i.ChannelID))
		g.respond(s, i, reply)
		if ok {
			reason := fmt.Sprintf("/clear command used by %s", inv.AuthorDisplayName)
			if err := g.deleteThread(i.ChannelID, reason); err != nil {
				log.Errorf("删除子区失败: thread=%s, err=%v", i.ChannelID, err)
				g.followup(s, i, fmt.Sprintf("Failed to delete thread: %v", err))
			}
		}
	case cmdModel:
		g.respond(s, i, g.commands.SwitchModel(inv, optionString(data.Options, "model")))
	case cmdDebug:
		g.respond(s, i, g.commands.Debug(inv))
	default:
		log.Warnf("未知命令: %s", data.Name)
	}
}

func (g *Gateway) respond(s *discordgo.Session, i *discordgo.Interaction, reply service.CommandReply) {
	resp := &discordgo.InteractionResponseData{Content: reply.Text}
	if reply.Ephemeral {
		resp.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: resp,
	})
	if err != nil {
		log.Errorf("命令响应失败: %v", err)
	}
}

// deferred 先确认交互，耗时操作在后台完成后再编辑响应，避免超过平台的 3 秒限制。
func (g *Gateway) deferred(s *discordgo.Session, i *discordgo.Interaction, run func(ctx context.Context) service.CommandReply) {
	err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Errorf("延迟响应失败: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		reply := run(ctx)
		if _, err := s.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &reply.Text}); err != nil {
			log.Errorf("编辑命令响应失败: %v", err)
		}
	}()
}

func (g *Gateway) followup(s *discordgo.Session, i *discordgo.Interaction, text string) {
	_, err := s.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
		Content: text,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		log.Warnf("发送后续消息失败: %v", err)
	}
}
